package trader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"paper-trade-bot-go/internal/database"
	"paper-trade-bot-go/internal/models"
	"paper-trade-bot-go/internal/paper"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ManualOrder is a user-placed paper order filled at the current market price.
type ManualOrder struct {
	UserID   string     `json:"user_id" binding:"required"`
	Side     paper.Side `json:"side" binding:"required"`
	Pair     string     `json:"pair" binding:"required"`
	Quantity float64    `json:"quantity"`
}

// ManualTradeResult is the outcome of a manual order. Trade is nil when the order
// was rejected by validation.
type ManualTradeResult struct {
	Validation paper.Result     `json:"validation"`
	Quote      *paper.Quote     `json:"quote,omitempty"`
	Trade      *models.Trade    `json:"trade,omitempty"`
	Balance    *decimal.Decimal `json:"balance,omitempty"`
}

// PlaceManualTrade validates and fills a manual paper order. Rule violations are
// reported in the result's Validation, not as errors. A buy debits the quote's net
// amount and a sell credits it.
func (e *Engine) PlaceManualTrade(ctx context.Context, order ManualOrder) (*ManualTradeResult, error) {
	order.Pair = strings.ToUpper(strings.TrimSpace(order.Pair))
	if side, ok := paper.ParseSide(string(order.Side)); ok {
		order.Side = side
	}
	req := paper.OrderRequest{Side: order.Side, Pair: order.Pair, Quantity: order.Quantity}

	if !e.validator.Supports(order.Pair) {
		return &ManualTradeResult{Validation: e.validator.Validate(req)}, nil
	}

	l := e.logger.With(zap.String("user_id", order.UserID), zap.String("pair", order.Pair))

	price, err := e.fetchPrice(ctx, order.Pair)
	if err != nil {
		l.Error("Failed to fetch price for manual trade", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrPriceUnavailable, err)
	}

	balance, err := e.store.EnsureBalance(ctx, order.UserID)
	if err != nil {
		return nil, err
	}

	req.Price = price.InexactFloat64()
	req.AvailableBalance = balance.Amount.InexactFloat64()
	if res := e.validator.Validate(req); !res.Valid {
		l.Info("Manual order rejected", zap.String("code", string(res.Code)), zap.String("reason", res.Error))
		return &ManualTradeResult{Validation: res}, nil
	}

	quote, err := paper.Calculate(order.Side, order.Pair, decimal.NewFromFloat(order.Quantity), price)
	if err != nil {
		return nil, err
	}

	trade := e.newTrade(nil, order.UserID, "manual", "Manual trade", quote, e.now())
	newBalance, err := e.store.RecordTrade(ctx, trade, quote.BalanceDelta(), nil)
	if errors.Is(err, database.ErrInsufficientFunds) {
		return &ManualTradeResult{
			Validation: paper.Result{Code: paper.InsufficientBalance, Error: err.Error()},
			Quote:      &quote,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	l.Info("Manual paper trade executed",
		zap.Uint("trade_id", trade.ID),
		zap.String("side", string(quote.Side)),
		zap.String("quantity", quote.Quantity.String()),
		zap.String("executed_price", quote.ExecutedPrice.String()),
		zap.String("balance", newBalance.Amount.StringFixed(2)),
	)

	return &ManualTradeResult{
		Validation: paper.Result{Valid: true},
		Quote:      &quote,
		Trade:      trade,
		Balance:    &newBalance.Amount,
	}, nil
}
