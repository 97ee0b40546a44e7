package strategy

import (
	"errors"
	"fmt"
	"time"

	"paper-trade-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

const (
	ParamBuyAmount         = "buyAmount"
	ParamBuyInterval       = "buyInterval" // hours
	ParamGridLevels        = "gridLevels"
	ParamInvestmentPerGrid = "investmentPerGrid"
)

var (
	defaultBuyFraction = decimal.RequireFromString("0.05")
	defaultBuyInterval = 24 * time.Hour
	minBuyInterval     = time.Minute
	maxBuyInterval     = 365 * 24 * time.Hour

	ErrNoBuyAmount = errors.New("strategy has no positive buy amount")
)

// DCA buys a fixed amount on a fixed interval regardless of price.
type DCA struct{}

func (DCA) Name() models.StrategyType { return models.StrategyDCA }

// Decide buys buyAmount, or 5% of the allocated capital when it is not set.
func (DCA) Decide(bot *models.Bot, _ decimal.Decimal) (Action, error) {
	amount, ok := bot.Param(ParamBuyAmount)
	if !ok {
		amount = bot.Capital.Mul(defaultBuyFraction).Round(2)
	}
	amount = capPosition(bot, amount)
	if !amount.IsPositive() {
		return Action{}, fmt.Errorf("dca bot %s: %w", bot.BotID, ErrNoBuyAmount)
	}

	return Action{
		Kind:   ActionBuy,
		Amount: amount,
		Label:  "DCA",
		Reason: "DCA scheduled buy",
		Next:   buyInterval(bot),
	}, nil
}

// buyInterval reads the interval in hours, clamped to [1m, 1y].
func buyInterval(bot *models.Bot) time.Duration {
	hours, ok := bot.Param(ParamBuyInterval)
	if !ok {
		return defaultBuyInterval
	}
	if hours.GreaterThan(decimal.NewFromInt(int64(maxBuyInterval / time.Hour))) {
		return maxBuyInterval
	}
	interval := time.Duration(hours.Mul(decimal.NewFromInt(int64(time.Hour))).IntPart())
	if interval < minBuyInterval {
		return minBuyInterval
	}
	return interval
}
