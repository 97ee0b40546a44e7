// Package api is the HTTP interface to the paper trading engine.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"paper-trade-bot-go/internal/binance"
	"paper-trade-bot-go/internal/database"
	"paper-trade-bot-go/internal/lifecycle"
	"paper-trade-bot-go/internal/models"
	"paper-trade-bot-go/internal/trader"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Engine runs ticks, lifecycle commands and manual trades.
type Engine interface {
	ExecuteBotTick(ctx context.Context, botID string) (*trader.TickResult, error)
	Transition(ctx context.Context, botID string, event lifecycle.Event) (*models.Bot, error)
	PlaceManualTrade(ctx context.Context, order trader.ManualOrder) (*trader.ManualTradeResult, error)
}

// Store serves the read side and bot creation.
type Store interface {
	CreateBot(ctx context.Context, bot *models.Bot) error
	FindBot(ctx context.Context, botID string) (*models.Bot, error)
	GetBalance(ctx context.Context, userID string) (*models.Balance, error)
	ListTrades(ctx context.Context, f database.TradeFilter) ([]models.Trade, error)
	ListBotLogs(ctx context.Context, botID string, limit int) ([]models.BotLog, error)
}

var (
	_ Engine = (*trader.Engine)(nil)
	_ Store  = (*database.Repository)(nil)
)

// Handler holds dependencies for the API endpoints.
type Handler struct {
	logger     *zap.Logger
	engine     Engine
	store      Store
	oracle     binance.PriceOracle
	instanceID string
	startTime  time.Time
}

// NewRouter wires all routes onto a new gin engine.
func NewRouter(logger *zap.Logger, engine Engine, store Store, oracle binance.PriceOracle) *gin.Engine {
	h := &Handler{
		logger:     logger.Named("api"),
		engine:     engine,
		store:      store,
		oracle:     oracle,
		instanceID: uuid.NewString(),
		startTime:  time.Now().UTC(),
	}

	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger())

	router.GET("/health", h.health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", h.status)

		v1.POST("/orders/validate", h.validateOrder)
		v1.POST("/orders/quote", h.quoteOrder)

		v1.POST("/trades", h.placeTrade)
		v1.GET("/trades", h.listTrades)
		v1.GET("/statistics", h.statistics)
		v1.GET("/balances/:user_id", h.getBalance)

		bots := v1.Group("/bots")
		bots.POST("", h.createBot)
		bots.GET("/:id", h.getBot)
		bots.POST("/:id/start", h.transition(lifecycle.Start))
		bots.POST("/:id/pause", h.transition(lifecycle.Pause))
		bots.POST("/:id/stop", h.transition(lifecycle.Stop))
		bots.POST("/:id/reset", h.transition(lifecycle.Reset))
		bots.POST("/:id/execute", h.executeBot)
		bots.GET("/:id/logs", h.botLogs)
	}

	return router
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("Request served",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uuid":       h.instanceID,
		"name":       "paper-trade-bot",
		"start_time": h.startTime.Format(time.RFC3339),
		"uptime":     time.Since(h.startTime).Round(time.Second).String(),
	})
}

// writeError maps engine and store errors onto HTTP status codes.
func (h *Handler) writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, trader.ErrBotNotFound), errors.Is(err, database.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, trader.ErrBotNotActive),
		errors.Is(err, trader.ErrTickInFlight),
		errors.Is(err, lifecycle.ErrInvalidTransition):
		code = http.StatusConflict
	case errors.Is(err, trader.ErrPriceUnavailable):
		code = http.StatusBadGateway
	}
	if code == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func queryLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}
