package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/brightspin-gaming/slot-engine/wallet"
)

// SessionHandler exposes session lifecycle and spin endpoints.
type SessionHandler struct {
	app *App
}

func NewSessionHandler(app *App) *SessionHandler {
	return &SessionHandler{app: app}
}

type openSessionRequest struct {
	UserID   string `json:"userId" binding:"required"`
	GameID   string `json:"gameId" binding:"required"`
	Currency string `json:"currency" binding:"required"`
}

type spinRequest struct {
	Bet decimal.Decimal `json:"bet" binding:"required"`
}

// Open creates a session after debit-free balance validation.
func (h *SessionHandler) Open(c *gin.Context) {
	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}

	currency, err := wallet.ParseCurrency(req.Currency)
	if err != nil {
		BadRequest(c, err)
		return
	}

	sess, err := h.app.ledger.Open(c.Request.Context(), req.UserID, req.GameID, currency)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	Created(c, sess.Snapshot())
}

// Get returns the current session snapshot.
func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.app.ledger.Get(c.Param("id"))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, sess.Snapshot())
}

// Spin runs one wager cycle and returns the outcome with the new balance.
func (h *SessionHandler) Spin(c *gin.Context) {
	var req spinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err)
		return
	}

	result, balance, err := h.app.ledger.Spin(c.Request.Context(), c.Param("id"), req.Bet)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	OK(c, gin.H{
		"result":  result,
		"balance": balance,
	})
}

// History returns the most recent spins for a session, newest first.
func (h *SessionHandler) History(c *gin.Context) {
	limit := int64(50)
	if raw := c.Query("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit < 1 || limit > 500 {
			ErrorWithMessage(c, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
	}

	spins, err := h.app.ledger.SpinHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, spins)
}

// End closes the session and returns the final totals.
func (h *SessionHandler) End(c *gin.Context) {
	sess, err := h.app.ledger.End(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, sess.Snapshot())
}

// ListGames returns the registered game identifiers.
func (h *SessionHandler) ListGames(c *gin.Context) {
	OK(c, gin.H{"games": h.app.ledger.GameIDs()})
}

// GameConfig returns the client-facing view of a game definition.
func (h *SessionHandler) GameConfig(c *gin.Context) {
	def, err := h.app.ledger.GameDefinition(c.Param("id"))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	OK(c, def.Normalize())
}
