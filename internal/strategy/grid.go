package strategy

import (
	"fmt"
	"time"

	"paper-trade-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

const (
	defaultGridLevels = 10
	gridInterval      = 15 * time.Minute
)

// Grid buys one grid slice per tick.
//
// Grid levels and open positions are not tracked: every tick with enough balance
// buys investmentPerGrid, exactly like DCA with a different label and cadence.
// A level-aware grid would need its own persisted state.
type Grid struct{}

func (Grid) Name() models.StrategyType { return models.StrategyGrid }

func (Grid) Decide(bot *models.Bot, _ decimal.Decimal) (Action, error) {
	amount, ok := bot.Param(ParamInvestmentPerGrid)
	if !ok {
		levels, ok := bot.Param(ParamGridLevels)
		if !ok {
			levels = decimal.NewFromInt(defaultGridLevels)
		}
		amount = bot.Capital.DivRound(levels, 2)
	}
	amount = capPosition(bot, amount)
	if !amount.IsPositive() {
		return Action{}, fmt.Errorf("grid bot %s: %w", bot.BotID, ErrNoBuyAmount)
	}

	return Action{
		Kind:   ActionBuy,
		Amount: amount,
		Label:  "grid",
		Reason: "Grid level buy",
		Next:   gridInterval,
	}, nil
}
