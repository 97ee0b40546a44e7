package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"paper-trade-bot-go/internal/binance"
	"paper-trade-bot-go/internal/config"
	"paper-trade-bot-go/internal/database"
	"paper-trade-bot-go/internal/lifecycle"
	"paper-trade-bot-go/internal/models"
	"paper-trade-bot-go/internal/paper"
	"paper-trade-bot-go/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrBotNotFound      = errors.New("bot not found")
	ErrBotNotActive     = errors.New("bot must be active")
	ErrTickInFlight     = errors.New("bot tick already in progress")
	ErrPriceUnavailable = errors.New("price unavailable")
)

const (
	defaultOracleTimeout = 5 * time.Second
	bookkeepingTimeout   = 5 * time.Second
)

// Store is the persistence the engine needs.
type Store interface {
	FindBot(ctx context.Context, botID string) (*models.Bot, error)
	SaveBotState(ctx context.Context, bot *models.Bot, from models.BotStatus) error
	EnsureBalance(ctx context.Context, userID string) (*models.Balance, error)
	RecordTrade(ctx context.Context, trade *models.Trade, delta decimal.Decimal, bot *models.Bot) (*models.Balance, error)
	AppendBotLog(ctx context.Context, entry *models.BotLog) error
	Currency() string
}

var _ Store = (*database.Repository)(nil)

// Engine executes bot ticks and manual paper trades.
type Engine struct {
	logger     *zap.Logger
	cfg        config.Executor
	store      Store
	oracle     binance.PriceOracle
	strategies *strategy.Registry
	validator  *paper.Validator
	slippage   decimal.Decimal
	inFlight   *tickGuard
	now        func() time.Time
}

// NewEngine creates a new execution engine.
func NewEngine(logger *zap.Logger, cfg config.Executor, store Store, oracle binance.PriceOracle) *Engine {
	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = defaultOracleTimeout
	}
	if cfg.ErrorThreshold < 1 {
		cfg.ErrorThreshold = lifecycle.DefaultErrorThreshold
	}
	slippage := decimal.NewFromFloat(cfg.SlippageRate)
	if cfg.SlippageRate <= 0 {
		slippage = paper.SlippageRate("BTCUSDT")
	}

	return &Engine{
		logger:     logger.Named("executor"),
		cfg:        cfg,
		store:      store,
		oracle:     oracle,
		strategies: strategy.NewRegistry(),
		validator:  paper.NewValidator(nil),
		slippage:   slippage,
		inFlight:   newTickGuard(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// TickResult reports what a tick did.
type TickResult struct {
	BotID           string           `json:"bot_id"`
	Executed        bool             `json:"executed"`
	Side            paper.Side       `json:"side,omitempty"`
	Quantity        *decimal.Decimal `json:"quantity,omitempty"`
	Reason          string           `json:"reason"`
	Trade           *models.Trade    `json:"trade,omitempty"`
	Balance         *decimal.Decimal `json:"balance,omitempty"`
	NextExecutionAt *time.Time       `json:"next_execution_at,omitempty"`
}

// ExecuteBotTick runs one strategy tick for the bot.
//
// Skipped ticks (insufficient balance, unimplemented strategy) return a result
// with Executed false and no error. Errors from strategy or persistence count toward
// the bot's consecutive failure limit; price failures do not touch the bot.
func (e *Engine) ExecuteBotTick(ctx context.Context, botID string) (*TickResult, error) {
	if !e.inFlight.acquire(botID) {
		return nil, fmt.Errorf("bot %s: %w", botID, ErrTickInFlight)
	}
	defer e.inFlight.release(botID)

	bot, err := e.loadBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	if !lifecycle.Tradable(bot.Status) {
		return nil, fmt.Errorf("bot %s is %s: %w", botID, bot.Status, ErrBotNotActive)
	}

	l := e.logger.With(
		zap.String("bot_id", bot.BotID),
		zap.String("strategy", string(bot.StrategyType)),
		zap.String("pair", bot.Pair),
	)

	price, err := e.fetchPrice(ctx, bot.Pair)
	if err != nil {
		l.Error("Failed to fetch price, skipping tick", zap.Error(err))
		e.appendLog(ctx, bot.BotID, "error", "price_unavailable", err.Error())
		return nil, fmt.Errorf("bot %s: %w: %w", botID, ErrPriceUnavailable, err)
	}

	result, err := e.runStrategy(ctx, bot, price, l)
	if errors.Is(err, database.ErrBotStateChanged) {
		// Paused or stopped elsewhere mid-tick; the trade was rolled back.
		l.Info("Bot status changed during tick, discarding result", zap.Error(err))
		return nil, fmt.Errorf("bot %s changed while ticking: %w", botID, ErrBotNotActive)
	}
	if err != nil {
		return nil, e.recordFailure(ctx, bot, err, l)
	}
	return result, nil
}

func (e *Engine) loadBot(ctx context.Context, botID string) (*models.Bot, error) {
	bot, err := e.store.FindBot(ctx, botID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("bot %s: %w", botID, ErrBotNotFound)
	}
	if err != nil {
		return nil, err
	}
	return bot, nil
}

func (e *Engine) fetchPrice(ctx context.Context, pair string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.OracleTimeout)
	defer cancel()

	price, err := e.oracle.Price(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price %s for %s", price, pair)
	}
	return price, nil
}

// runStrategy decides and carries out the tick. bot is left untouched; all writes
// go through a copy so a failure is counted from the loaded state.
func (e *Engine) runStrategy(ctx context.Context, bot *models.Bot, price decimal.Decimal, l *zap.Logger) (*TickResult, error) {
	action, err := e.strategies.For(bot.StrategyType).Decide(bot, price)
	if err != nil {
		return nil, err
	}

	next, err := lifecycle.Apply(lifecycle.Of(bot), lifecycle.TickSucceeded, e.cfg.ErrorThreshold)
	if err != nil {
		return nil, err
	}
	now := e.now()
	nextRun := now.Add(action.Next)
	updated := *bot
	next.Into(&updated)
	updated.LastExecutionAt = &now
	updated.NextExecutionAt = &nextRun

	result := &TickResult{BotID: bot.BotID, NextExecutionAt: &nextRun}

	if action.Kind != strategy.ActionBuy {
		if err := e.store.SaveBotState(ctx, &updated, bot.Status); err != nil {
			return nil, err
		}
		result.Reason = action.Reason
		l.Info("Tick completed without trade", zap.String("reason", action.Reason))
		e.appendLog(ctx, bot.BotID, "info", "tick_noop", action.Reason)
		return result, nil
	}

	// A skip reschedules the bot but is neither a success nor a failure for the
	// consecutive error count.
	skip := func() (*TickResult, error) {
		updated.TotalTrades = bot.TotalTrades
		lifecycle.Of(bot).Into(&updated)
		if err := e.store.SaveBotState(ctx, &updated, bot.Status); err != nil {
			return nil, err
		}
		result.Reason = fmt.Sprintf("Insufficient balance for %s buy", action.Label)
		l.Info("Skipping buy, insufficient balance", zap.String("amount", action.Amount.String()))
		e.appendLog(ctx, bot.BotID, "info", "tick_skipped", result.Reason)
		return result, nil
	}

	balance, err := e.store.EnsureBalance(ctx, bot.UserID)
	if err != nil {
		return nil, err
	}
	if balance.Amount.LessThan(action.Amount) {
		return skip()
	}

	quantity := paper.QuantityFor(action.Amount, price)
	quote, err := paper.CalculateWithRate(paper.SideBuy, bot.Pair, quantity, price, e.slippage)
	if err != nil {
		return nil, err
	}
	if balance.Amount.LessThan(quote.NetAmount) {
		return skip()
	}

	trade := e.newTrade(&bot.BotID, bot.UserID, string(bot.StrategyType), action.Reason, quote, now)
	updated.TotalTrades = bot.TotalTrades + 1

	newBalance, err := e.store.RecordTrade(ctx, trade, quote.BalanceDelta(), &updated)
	if errors.Is(err, database.ErrInsufficientFunds) {
		// Another trade for this user spent the balance after it was read.
		return skip()
	}
	if err != nil {
		return nil, err
	}

	l.Info("Paper trade executed",
		zap.Uint("trade_id", trade.ID),
		zap.String("quantity", quote.Quantity.String()),
		zap.String("executed_price", quote.ExecutedPrice.String()),
		zap.String("total_value", quote.TotalValue.StringFixed(2)),
		zap.String("fee", quote.Fee.StringFixed(2)),
		zap.String("balance", newBalance.Amount.StringFixed(2)),
	)
	e.appendLog(ctx, bot.BotID, "info", "trade_executed",
		fmt.Sprintf("%s: bought %s %s at %s", action.Reason, quote.Quantity, bot.Pair, quote.ExecutedPrice))

	result.Executed = true
	result.Side = paper.SideBuy
	result.Quantity = &quote.Quantity
	result.Reason = action.Reason
	result.Trade = trade
	result.Balance = &newBalance.Amount
	return result, nil
}

// recordFailure counts a failed tick against the bot and returns the error to report.
func (e *Engine) recordFailure(ctx context.Context, bot *models.Bot, cause error, l *zap.Logger) error {
	l.Error("Bot tick failed", zap.Error(cause), zap.Int("previous_error_count", bot.ErrorCount))

	// The tick's context may be what failed; bookkeeping still has to land.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	from := bot.Status
	state, err := lifecycle.Failed(lifecycle.Of(bot), cause.Error(), e.cfg.ErrorThreshold)
	if err != nil {
		l.Error("Cannot apply failure transition", zap.Error(err))
	} else {
		state.Into(bot)
		if err := e.store.SaveBotState(ctx, bot, from); err != nil {
			l.Error("Failed to persist bot error state", zap.Error(err))
			bot.Status = from
		}
	}

	e.appendLog(ctx, bot.BotID, "error", "tick_failed", cause.Error())
	if bot.Status == models.StatusError && from != models.StatusError {
		l.Warn("Bot disabled after consecutive failures", zap.Int("error_count", bot.ErrorCount))
		e.appendLog(ctx, bot.BotID, "error", "bot_disabled",
			fmt.Sprintf("disabled after %d consecutive failures", bot.ErrorCount))
	}

	return fmt.Errorf("bot %s tick failed: %w", bot.BotID, cause)
}

func (e *Engine) newTrade(botID *string, userID, strategyType, reason string, q paper.Quote, at time.Time) *models.Trade {
	return &models.Trade{
		BotID:        botID,
		UserID:       userID,
		Side:         string(q.Side),
		Pair:         q.Pair,
		Mode:         models.ModePaper,
		Price:        q.ExecutedPrice,
		Quantity:     q.Quantity,
		TotalValue:   q.TotalValue,
		Fee:          q.Fee,
		FeeCurrency:  e.store.Currency(),
		StrategyType: strategyType,
		Reason:       reason,
		ExecutedAt:   at,
	}
}

func (e *Engine) appendLog(ctx context.Context, botID, level, event, msg string) {
	entry := &models.BotLog{BotID: botID, Level: level, Event: event, Message: msg}
	if err := e.store.AppendBotLog(ctx, entry); err != nil {
		e.logger.Warn("Failed to append bot log", zap.String("bot_id", botID), zap.String("event", event), zap.Error(err))
	}
}

// tickGuard admits at most one tick per bot at a time.
type tickGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newTickGuard() *tickGuard {
	return &tickGuard{running: make(map[string]struct{})}
}

func (g *tickGuard) acquire(botID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.running[botID]; busy {
		return false
	}
	g.running[botID] = struct{}{}
	return true
}

func (g *tickGuard) release(botID string) {
	g.mu.Lock()
	delete(g.running, botID)
	g.mu.Unlock()
}
