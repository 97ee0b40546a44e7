package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paper-trade-bot-go/internal/config"
	"paper-trade-bot-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrBalanceConflict   = errors.New("balance was modified concurrently")
	ErrInsufficientFunds = errors.New("insufficient paper balance")
	ErrBotStateChanged   = errors.New("bot status changed concurrently")
)

const defaultBalanceRetries = 3

// Repository persists bots, trades, balances and bot logs.
type Repository struct {
	db              *gorm.DB
	startingBalance decimal.Decimal
	currency        string
	retries         int
}

// NewRepository creates a repository. retries bounds how often RecordTrade retries
// after losing a balance update race.
func NewRepository(db *gorm.DB, paper config.Paper, retries int) *Repository {
	if retries < 1 {
		retries = defaultBalanceRetries
	}
	currency := paper.QuoteCurrency
	if currency == "" {
		currency = "USDT"
	}
	return &Repository{
		db:              db,
		startingBalance: decimal.NewFromFloat(paper.StartingBalance).Round(2),
		currency:        currency,
		retries:         retries,
	}
}

// Currency is the quote currency balances are kept in.
func (r *Repository) Currency() string { return r.currency }

// CreateBot inserts a new bot. A missing BotID is generated and a missing status
// defaults to draft.
func (r *Repository) CreateBot(ctx context.Context, bot *models.Bot) error {
	if bot.BotID == "" {
		bot.BotID = uuid.NewString()
	}
	if bot.Status == "" {
		bot.Status = models.StatusDraft
	}
	if bot.Mode == "" {
		bot.Mode = models.ModePaper
	}
	if err := r.db.WithContext(ctx).Create(bot).Error; err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	return nil
}

// FindBot loads a bot by its business id.
func (r *Repository) FindBot(ctx context.Context, botID string) (*models.Bot, error) {
	var bot models.Bot
	err := r.db.WithContext(ctx).Where("bot_id = ?", botID).First(&bot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("bot %s: %w", botID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bot %s: %w", botID, err)
	}
	return &bot, nil
}

// ListDueBots returns active bots whose next execution time has passed or was never set.
func (r *Repository) ListDueBots(ctx context.Context, now time.Time, limit int) ([]models.Bot, error) {
	var bots []models.Bot
	q := r.db.WithContext(ctx).
		Where("status = ?", models.StatusActive).
		Where("next_execution_at IS NULL OR next_execution_at <= ?", now).
		Order("next_execution_at")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&bots).Error; err != nil {
		return nil, fmt.Errorf("failed to list due bots: %w", err)
	}
	return bots, nil
}

func botStateColumns(bot *models.Bot) map[string]interface{} {
	return map[string]interface{}{
		"status":            bot.Status,
		"error_count":       bot.ErrorCount,
		"error_message":     bot.ErrorMessage,
		"last_execution_at": bot.LastExecutionAt,
		"next_execution_at": bot.NextExecutionAt,
		"total_trades":      bot.TotalTrades,
		"total_pnl":         bot.TotalPnL,
		"win_rate":          bot.WinRate,
	}
}

// SaveBotState writes the lifecycle, scheduling and performance columns of bot,
// provided the stored status is still from. Configuration columns are left alone.
// A bot whose status moved on fails with ErrBotStateChanged.
func (r *Repository) SaveBotState(ctx context.Context, bot *models.Bot, from models.BotStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Bot{}).
		Where("bot_id = ? AND status = ?", bot.BotID, from).
		Updates(botStateColumns(bot))
	if res.Error != nil {
		return fmt.Errorf("failed to save bot %s: %w", bot.BotID, res.Error)
	}
	if res.RowsAffected == 0 {
		return staleBot(r.db.WithContext(ctx), bot.BotID)
	}
	return nil
}

// staleBot explains a guarded bot update that matched no row.
func staleBot(db *gorm.DB, botID string) error {
	var n int64
	if err := db.Model(&models.Bot{}).Where("bot_id = ?", botID).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to load bot %s: %w", botID, err)
	}
	if n == 0 {
		return fmt.Errorf("bot %s: %w", botID, ErrNotFound)
	}
	return fmt.Errorf("bot %s: %w", botID, ErrBotStateChanged)
}

// EnsureBalance returns the user's balance, creating it with the starting amount
// on first use.
func (r *Repository) EnsureBalance(ctx context.Context, userID string) (*models.Balance, error) {
	initial := models.Balance{UserID: userID, Amount: r.startingBalance, Currency: r.currency}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&initial).Error
	if err != nil {
		return nil, fmt.Errorf("failed to initialize balance for %s: %w", userID, err)
	}
	return r.GetBalance(ctx, userID)
}

// GetBalance loads the user's balance.
func (r *Repository) GetBalance(ctx context.Context, userID string) (*models.Balance, error) {
	var bal models.Balance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("balance for %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load balance for %s: %w", userID, err)
	}
	return &bal, nil
}

// RecordTrade persists an executed trade in one transaction: the trade row is
// inserted, then the user's balance is moved by delta with a version check, then
// the bot's state columns are written when bot is not nil. A lost version race
// retries the whole transaction. A debit that would overdraw the balance fails
// with ErrInsufficientFunds, and a bot that is no longer active fails with
// ErrBotStateChanged; either way nothing is written.
func (r *Repository) RecordTrade(ctx context.Context, trade *models.Trade, delta decimal.Decimal, bot *models.Bot) (*models.Balance, error) {
	var bal *models.Balance
	var err error
	for attempt := 0; attempt < r.retries; attempt++ {
		trade.ID = 0
		bal, err = r.recordTradeOnce(ctx, trade, delta, bot)
		if !errors.Is(err, ErrBalanceConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return bal, nil
}

func (r *Repository) recordTradeOnce(ctx context.Context, trade *models.Trade, delta decimal.Decimal, bot *models.Bot) (*models.Balance, error) {
	var bal models.Balance
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(trade).Error; err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}

		if err := tx.Where("user_id = ?", trade.UserID).First(&bal).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("balance for %s: %w", trade.UserID, ErrNotFound)
			}
			return fmt.Errorf("failed to read balance: %w", err)
		}

		amount := bal.Amount.Add(delta).Round(2)
		if amount.IsNegative() {
			return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, bal.Amount.StringFixed(2), delta.Neg().StringFixed(2))
		}
		res := tx.Model(&models.Balance{}).
			Where("user_id = ? AND version = ?", bal.UserID, bal.Version).
			Updates(map[string]interface{}{
				"amount":     amount,
				"version":    bal.Version + 1,
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update balance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrBalanceConflict
		}
		bal.Amount = amount
		bal.Version++

		if bot != nil {
			res := tx.Model(&models.Bot{}).
				Where("bot_id = ? AND status = ?", bot.BotID, models.StatusActive).
				Updates(botStateColumns(bot))
			if res.Error != nil {
				return fmt.Errorf("failed to update bot %s: %w", bot.BotID, res.Error)
			}
			if res.RowsAffected == 0 {
				return staleBot(tx, bot.BotID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

// TradeFilter narrows ListTrades. Zero fields are ignored.
type TradeFilter struct {
	UserID string
	BotID  string
	Since  time.Time
	Limit  int
}

// ListTrades returns trades, most recent first.
func (r *Repository) ListTrades(ctx context.Context, f TradeFilter) ([]models.Trade, error) {
	q := r.db.WithContext(ctx).Order("executed_at desc, id desc")
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.BotID != "" {
		q = q.Where("bot_id = ?", f.BotID)
	}
	if !f.Since.IsZero() {
		q = q.Where("executed_at >= ?", f.Since)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var trades []models.Trade
	if err := q.Find(&trades).Error; err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return trades, nil
}

// AppendBotLog stores a bot audit event.
func (r *Repository) AppendBotLog(ctx context.Context, entry *models.BotLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append bot log: %w", err)
	}
	return nil
}

// ListBotLogs returns a bot's most recent audit events.
func (r *Repository) ListBotLogs(ctx context.Context, botID string, limit int) ([]models.BotLog, error) {
	var logs []models.BotLog
	q := r.db.WithContext(ctx).Where("bot_id = ?", botID).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to list bot logs: %w", err)
	}
	return logs, nil
}
