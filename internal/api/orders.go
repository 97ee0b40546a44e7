package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"paper-trade-bot-go/internal/database"
	"paper-trade-bot-go/internal/paper"
	"paper-trade-bot-go/internal/trader"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type orderRequest struct {
	Side             string  `json:"side"`
	Pair             string  `json:"pair"`
	Quantity         float64 `json:"quantity"`
	Price            float64 `json:"price"`
	AvailableBalance float64 `json:"available_balance"`
}

func (r orderRequest) toPaper() paper.OrderRequest {
	side, ok := paper.ParseSide(r.Side)
	if !ok {
		side = paper.Side(r.Side)
	}
	return paper.OrderRequest{
		Side:             side,
		Pair:             strings.ToUpper(strings.TrimSpace(r.Pair)),
		Quantity:         r.Quantity,
		Price:            r.Price,
		AvailableBalance: r.AvailableBalance,
	}
}

// validateOrder runs the pre-trade checks. Rejections are 200 responses with
// valid=false; only malformed JSON is a 400.
func (h *Handler) validateOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, paper.Validate(req.toPaper()))
}

type quoteRequest struct {
	Side     string          `json:"side" binding:"required"`
	Pair     string          `json:"pair" binding:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	// Price is optional; the current market price is used when it is zero.
	Price decimal.Decimal `json:"price"`
}

// quoteOrder simulates a fill without recording it.
func (h *Handler) quoteOrder(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	side, ok := paper.ParseSide(req.Side)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown side %q", req.Side)})
		return
	}
	pair := strings.ToUpper(strings.TrimSpace(req.Pair))

	price := req.Price
	if price.IsZero() {
		var err error
		price, err = h.oracle.Price(c.Request.Context(), pair)
		if err != nil {
			h.logger.Warn("Price lookup for quote failed", zap.String("pair", pair), zap.Error(err))
			h.writeError(c, fmt.Errorf("%w: %w", trader.ErrPriceUnavailable, err))
			return
		}
	}

	quote, err := paper.Calculate(side, pair, req.Quantity, price)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, quote)
}

// placeTrade fills a manual paper order. Rejected orders are 422 with the
// validation result in the body.
func (h *Handler) placeTrade(c *gin.Context) {
	var order trader.ManualOrder
	if err := c.ShouldBindJSON(&order); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.engine.PlaceManualTrade(c.Request.Context(), order)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !res.Validation.Valid {
		c.JSON(http.StatusUnprocessableEntity, res)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// listTrades returns trades, most recent first, optionally filtered by bot or user.
func (h *Handler) listTrades(c *gin.Context) {
	trades, err := h.store.ListTrades(c.Request.Context(), database.TradeFilter{
		UserID: c.Query("user_id"),
		BotID:  c.Query("bot_id"),
		Limit:  queryLimit(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trades)
}

// StatsDetail holds trade statistics for one period.
type StatsDetail struct {
	TotalTrades int64           `json:"total_trades"`
	Buys        int64           `json:"buys"`
	Sells       int64           `json:"sells"`
	Volume      decimal.Decimal `json:"volume"`
	Fees        decimal.Decimal `json:"fees"`
}

func (s *StatsDetail) add(side string, totalValue, fee decimal.Decimal) {
	s.TotalTrades++
	if side == string(paper.SideSell) {
		s.Sells++
	} else {
		s.Buys++
	}
	s.Volume = s.Volume.Add(totalValue)
	s.Fees = s.Fees.Add(fee)
}

// StatisticsResponse is the body of GET /api/v1/statistics.
type StatisticsResponse struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
}

// statistics aggregates a user's (or everyone's) trades over the last 24 hours
// and all time.
func (h *Handler) statistics(c *gin.Context) {
	trades, err := h.store.ListTrades(c.Request.Context(), database.TradeFilter{UserID: c.Query("user_id")})
	if err != nil {
		h.writeError(c, err)
		return
	}

	since24h := time.Now().Add(-24 * time.Hour)
	resp := StatisticsResponse{
		Since24h: StatsDetail{Volume: decimal.Zero, Fees: decimal.Zero},
		AllTime:  StatsDetail{Volume: decimal.Zero, Fees: decimal.Zero},
	}
	for _, t := range trades {
		resp.AllTime.add(t.Side, t.TotalValue, t.Fee)
		if t.ExecutedAt.After(since24h) {
			resp.Since24h.add(t.Side, t.TotalValue, t.Fee)
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getBalance(c *gin.Context) {
	bal, err := h.store.GetBalance(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}
