package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/brightspin-gaming/slot-engine/config"
	"github.com/brightspin-gaming/slot-engine/middleware"
	"github.com/brightspin-gaming/slot-engine/pkg/jackpot"
	"github.com/brightspin-gaming/slot-engine/session"
)

// App wires the session ledger and jackpot service to HTTP routes.
type App struct {
	engine         *gin.Engine
	config         *config.Config
	logger         zerolog.Logger
	ledger         *session.Ledger
	jackpotService *jackpot.Service
	httpServer     *http.Server
	onShutdown     []func()

	sessionHandler *SessionHandler
	jackpotHandler *JackpotHandler
	sweepCancel    context.CancelFunc
}

// Options holds server construction options
type Options struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Ledger   *session.Ledger
	Jackpots *jackpot.Service
}

// New creates the application around an already-built ledger.
func New(opts Options) *App {
	// Amounts go over the wire as JSON numbers, matching what game clients
	// expect.
	decimal.MarshalJSONWithoutQuotes = true

	if opts.Config.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	app := &App{
		engine:         gin.New(),
		config:         opts.Config,
		logger:         opts.Logger,
		ledger:         opts.Ledger,
		jackpotService: opts.Jackpots,
	}
	app.sessionHandler = NewSessionHandler(app)
	app.jackpotHandler = NewJackpotHandler(app, opts.Jackpots)
	return app
}

// UseCommonMiddlewares adds the standard middleware chain.
func (a *App) UseCommonMiddlewares() {
	a.engine.Use(middleware.Recovery(a.logger))
	a.engine.Use(middleware.TraceID())
	a.engine.Use(middleware.Logging(a.logger))
	if a.config.Server.EnableCORS {
		a.engine.Use(middleware.CORS())
	}
}

// RegisterRoutes registers the engine's API surface.
func (a *App) RegisterRoutes() {
	a.engine.GET("/health", a.healthCheck)

	api := a.engine.Group("/api/v1")
	{
		sessions := api.Group("/sessions")
		// Spin paths call out to the wallet; bound them so a stalled
		// gateway cannot pin connections.
		if a.config.Server.WriteTimeout > 0 {
			sessions.Use(middleware.Timeout(a.config.Server.WriteTimeout))
		}
		{
			sessions.POST("", a.sessionHandler.Open)
			sessions.GET("/:id", a.sessionHandler.Get)
			sessions.POST("/:id/spin", a.sessionHandler.Spin)
			sessions.GET("/:id/spins", a.sessionHandler.History)
			sessions.DELETE("/:id", a.sessionHandler.End)
		}

		games := api.Group("/games")
		{
			games.GET("", a.sessionHandler.ListGames)
			games.GET("/:id/config", a.sessionHandler.GameConfig)
		}

		jackpots := api.Group("/jackpots")
		{
			jackpots.GET("", a.jackpotHandler.Amounts)
			jackpots.GET("/updates", a.jackpotHandler.StreamUpdates)
			jackpots.GET("/updates/ws", a.jackpotHandler.StreamUpdatesWebSocket)
		}
	}

	a.logger.Info().Msg("API routes registered under /api/v1")
}

func (a *App) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"games":     a.ledger.GameIDs(),
	})
}

// Router returns the Gin engine, used by tests.
func (a *App) Router() *gin.Engine {
	return a.engine
}

// OnShutdown registers a function to be called on shutdown
func (a *App) OnShutdown(fn func()) {
	a.onShutdown = append(a.onShutdown, fn)
}

// Run starts the HTTP server and the idle-session sweeper, blocking until
// SIGINT/SIGTERM.
func (a *App) Run() error {
	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.engine,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}

	sweepCtx, cancel := context.WithCancel(context.Background())
	a.sweepCancel = cancel
	go a.ledger.RunSweeper(sweepCtx, a.config.Session.IdleTimeout/4)

	go func() {
		a.logger.Info().
			Int("port", a.config.Server.Port).
			Str("environment", a.config.Environment).
			Msg("starting HTTP server")

		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return a.shutdown()
}

func (a *App) shutdown() error {
	a.logger.Info().Msg("shutting down server")

	if a.sweepCancel != nil {
		a.sweepCancel()
	}
	for _, fn := range a.onShutdown {
		fn()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("forced shutdown")
		return err
	}

	a.logger.Info().Msg("server stopped")
	return nil
}
