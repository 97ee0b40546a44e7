package api

import (
	"fmt"
	"net/http"
	"strings"

	"paper-trade-bot-go/internal/lifecycle"
	"paper-trade-bot-go/internal/models"
	"paper-trade-bot-go/internal/paper"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var knownStrategies = map[models.StrategyType]bool{
	models.StrategyDCA:           true,
	models.StrategyGrid:          true,
	models.StrategyMomentum:      true,
	models.StrategyMeanReversion: true,
}

type createBotRequest struct {
	UserID       string                 `json:"user_id" binding:"required"`
	Name         string                 `json:"name"`
	StrategyType models.StrategyType    `json:"strategy_type" binding:"required"`
	Pair         string                 `json:"pair" binding:"required"`
	Capital      decimal.Decimal        `json:"capital"`
	Risk         models.RiskParams      `json:"risk"`
	Params       map[string]interface{} `json:"params"`
}

func (r createBotRequest) check() error {
	if !knownStrategies[r.StrategyType] {
		return fmt.Errorf("unknown strategy type %q", r.StrategyType)
	}
	if !paper.NewValidator(nil).Supports(r.Pair) {
		return fmt.Errorf("trading pair %s is not supported", r.Pair)
	}
	if !r.Capital.IsPositive() {
		return fmt.Errorf("capital must be positive")
	}
	return nil
}

// createBot deploys a new paper bot in draft status.
func (h *Handler) createBot(c *gin.Context) {
	var req createBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Pair = strings.ToUpper(strings.TrimSpace(req.Pair))
	if err := req.check(); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	bot := &models.Bot{
		UserID:       req.UserID,
		Name:         req.Name,
		StrategyType: req.StrategyType,
		Pair:         req.Pair,
		Capital:      req.Capital.Round(2),
		Mode:         models.ModePaper,
		Risk:         req.Risk,
		Params:       req.Params,
	}
	if err := h.store.CreateBot(c.Request.Context(), bot); err != nil {
		h.writeError(c, err)
		return
	}

	h.logger.Info("Bot created",
		zap.String("bot_id", bot.BotID),
		zap.String("user_id", bot.UserID),
		zap.String("strategy", string(bot.StrategyType)),
	)
	c.JSON(http.StatusCreated, bot)
}

func (h *Handler) getBot(c *gin.Context) {
	bot, err := h.store.FindBot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (h *Handler) transition(event lifecycle.Event) gin.HandlerFunc {
	return func(c *gin.Context) {
		bot, err := h.engine.Transition(c.Request.Context(), c.Param("id"), event)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, bot)
	}
}

// executeBot runs one tick now, outside the schedule.
func (h *Handler) executeBot(c *gin.Context) {
	res, err := h.engine.ExecuteBotTick(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) botLogs(c *gin.Context) {
	logs, err := h.store.ListBotLogs(c.Request.Context(), c.Param("id"), queryLimit(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
