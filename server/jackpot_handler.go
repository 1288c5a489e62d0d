package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/brightspin-gaming/slot-engine/pkg/jackpot"
)

const (
	streamHeartbeatInterval = 30 * time.Second
	wsWriteTimeout          = 10 * time.Second
)

// JackpotHandler serves pool amounts and pushes live updates over SSE
// and WebSocket.
type JackpotHandler struct {
	service  *jackpot.Service
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

func NewJackpotHandler(app *App, service *jackpot.Service) *JackpotHandler {
	return &JackpotHandler{
		service: service,
		logger:  app.logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Clients connect from game frames on other origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Amounts returns a snapshot of every pool.
func (h *JackpotHandler) Amounts(c *gin.Context) {
	OK(c, h.service.Amounts())
}

type streamEvent struct {
	Type    string            `json:"type"`
	Update  *jackpot.Update   `json:"update,omitempty"`
	Amounts map[string]string `json:"amounts,omitempty"`
}

func snapshotEvent(service *jackpot.Service) streamEvent {
	amounts := make(map[string]string)
	for gameID, amount := range service.Amounts() {
		amounts[gameID] = amount.String()
	}
	return streamEvent{Type: "connected", Amounts: amounts}
}

// StreamUpdates pushes pool updates as server-sent events.
func (h *JackpotHandler) StreamUpdates(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		ErrorWithMessage(c, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, cancel := h.service.Listen(c.Request.Context())
	defer cancel()

	writeEvent := func(event streamEvent) bool {
		payload, err := json.Marshal(event)
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !writeEvent(snapshotEvent(h.service)) {
		return
	}

	heartbeat := time.NewTicker(streamHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case update, open := <-updates:
			if !open {
				return
			}
			if !writeEvent(streamEvent{Type: "update", Update: &update}) {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(c.Writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// StreamUpdatesWebSocket pushes pool updates over a WebSocket connection.
func (h *JackpotHandler) StreamUpdatesWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := h.service.Listen(c.Request.Context())
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Drain client frames so pings/pongs and close frames are processed.
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writeJSON := func(v interface{}) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(v)
	}

	if err := writeJSON(snapshotEvent(h.service)); err != nil {
		return
	}

	ping := time.NewTicker(streamHeartbeatInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case update, open := <-updates:
			if !open {
				return
			}
			if err := writeJSON(streamEvent{Type: "update", Update: &update}); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
