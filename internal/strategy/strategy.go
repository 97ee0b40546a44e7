// Package strategy decides what a bot does on a tick. Strategies are pure: they see
// the bot and the current price and return an Action; the executor carries it out.
package strategy

import (
	"fmt"
	"time"

	"paper-trade-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// ActionKind is what a strategy wants done this tick.
type ActionKind int

const (
	// ActionNone does nothing and still counts as a successful tick.
	ActionNone ActionKind = iota
	// ActionBuy buys Amount of quote currency worth of the bot's pair.
	ActionBuy
)

// Action is a strategy decision.
type Action struct {
	Kind ActionKind
	// Amount is the quote-currency amount to spend on a buy.
	Amount decimal.Decimal
	// Label names the buy in skip messages, e.g. "DCA" or "grid".
	Label string
	// Reason is the audit note written on the trade, or why nothing happened.
	Reason string
	// Next is the delay until the bot's next tick.
	Next time.Duration
}

// Strategy is implemented once per strategy type.
type Strategy interface {
	// Name returns the strategy type this implementation handles.
	Name() models.StrategyType

	// Decide returns the action for one tick of bot at price.
	Decide(bot *models.Bot, price decimal.Decimal) (Action, error)
}

// Registry maps strategy types to implementations.
type Registry struct {
	strategies map[models.StrategyType]Strategy
}

// NewRegistry returns a registry with DCA and Grid implemented and momentum and
// mean-reversion registered as unsupported.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[models.StrategyType]Strategy)}
	r.Register(DCA{})
	r.Register(Grid{})
	r.Register(Unsupported{Type: models.StrategyMomentum})
	r.Register(Unsupported{Type: models.StrategyMeanReversion})
	return r
}

// Register adds or replaces s.
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Name()] = s
}

// For returns the strategy for t. Unknown types get an Unsupported strategy so
// dispatch never falls through silently.
func (r *Registry) For(t models.StrategyType) Strategy {
	if s, ok := r.strategies[t]; ok {
		return s
	}
	return Unsupported{Type: t}
}

// Unsupported is a strategy type without an implementation.
type Unsupported struct {
	Type models.StrategyType
}

const unsupportedInterval = time.Hour

func (u Unsupported) Name() models.StrategyType { return u.Type }

func (u Unsupported) Decide(*models.Bot, decimal.Decimal) (Action, error) {
	return Action{
		Kind:   ActionNone,
		Reason: fmt.Sprintf("Strategy %s not implemented", u.Type),
		Next:   unsupportedInterval,
	}, nil
}

// capPosition limits amount to the bot's max position size, when one is set.
func capPosition(bot *models.Bot, amount decimal.Decimal) decimal.Decimal {
	pct := bot.Risk.MaxPositionSizePct
	if pct <= 0 {
		return amount
	}
	limit := bot.Capital.Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100)).Round(2)
	if limit.IsPositive() && amount.GreaterThan(limit) {
		return limit
	}
	return amount
}
