package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"paper-trade-bot-go/internal/config"
	"paper-trade-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTest creates a migrated in-memory database and a repository on top of it.
func setupTest(t *testing.T) (*gorm.DB, *Repository) {
	db, err := NewDatabase(config.Database{Driver: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db, NewRepository(db, config.Paper{StartingBalance: 1000, QuoteCurrency: "USDT"}, 3)
}

func newTrade(userID string, botID *string) *models.Trade {
	return &models.Trade{
		BotID:       botID,
		UserID:      userID,
		Side:        "BUY",
		Pair:        "BTCUSDT",
		Mode:        models.ModePaper,
		Price:       decimal.RequireFromString("50050"),
		Quantity:    decimal.RequireFromString("0.01"),
		TotalValue:  decimal.RequireFromString("500.5"),
		Fee:         decimal.RequireFromString("0.5"),
		FeeCurrency: "USDT",
		Reason:      "test",
		ExecutedAt:  time.Now(),
	}
}

func TestNewDatabase_UnknownDriver(t *testing.T) {
	_, err := NewDatabase(config.Database{Driver: "oracle"})
	assert.Error(t, err)
}

func TestRepository_Bots(t *testing.T) {
	ctx := context.Background()
	_, repo := setupTest(t)

	bot := &models.Bot{
		UserID:       "user-1",
		StrategyType: models.StrategyDCA,
		Pair:         "BTCUSDT",
		Capital:      decimal.NewFromInt(1000),
		Params:       map[string]interface{}{"buyAmount": 50},
	}
	require.NoError(t, repo.CreateBot(ctx, bot))
	assert.NotEmpty(t, bot.BotID)
	assert.Equal(t, models.StatusDraft, bot.Status)

	loaded, err := repo.FindBot(ctx, bot.BotID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", loaded.UserID)
	amount, ok := loaded.Param("buyAmount")
	assert.True(t, ok)
	assert.Equal(t, "50", amount.String())

	_, err = repo.FindBot(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	// Draft bots are never due.
	due, err := repo.ListDueBots(ctx, time.Now(), 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	loaded.Status = models.StatusActive
	require.NoError(t, repo.SaveBotState(ctx, loaded, models.StatusDraft))
	due, err = repo.ListDueBots(ctx, time.Now(), 0)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	later := time.Now().Add(time.Hour)
	loaded.NextExecutionAt = &later
	require.NoError(t, repo.SaveBotState(ctx, loaded, models.StatusActive))
	due, err = repo.ListDueBots(ctx, time.Now(), 0)
	require.NoError(t, err)
	assert.Empty(t, due)

	assert.ErrorIs(t, repo.SaveBotState(ctx, &models.Bot{BotID: "missing"}, models.StatusActive), ErrNotFound)
}

func TestRepository_SaveBotState_StatusMoved(t *testing.T) {
	ctx := context.Background()
	_, repo := setupTest(t)

	bot := &models.Bot{UserID: "user-1", StrategyType: models.StrategyDCA, Pair: "BTCUSDT", Capital: decimal.NewFromInt(1000), Status: models.StatusPaused}
	require.NoError(t, repo.CreateBot(ctx, bot))

	// A writer that still believes the bot is active must not resurrect it.
	stale := *bot
	stale.Status = models.StatusActive
	stale.TotalTrades = 3
	err := repo.SaveBotState(ctx, &stale, models.StatusActive)
	assert.ErrorIs(t, err, ErrBotStateChanged)

	stored, err := repo.FindBot(ctx, bot.BotID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, stored.Status)
	assert.Equal(t, 0, stored.TotalTrades)
}

func TestRepository_EnsureBalance(t *testing.T) {
	ctx := context.Background()
	_, repo := setupTest(t)

	_, err := repo.GetBalance(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)

	bal, err := repo.EnsureBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, bal.Amount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "USDT", bal.Currency)

	// A second call keeps the existing row.
	_, err = repo.RecordTrade(ctx, newTrade("user-1", nil), decimal.NewFromInt(-100), nil)
	require.NoError(t, err)
	bal, err = repo.EnsureBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, bal.Amount.Equal(decimal.NewFromInt(900)))
}

func TestRepository_RecordTrade(t *testing.T) {
	ctx := context.Background()

	t.Run("Writes trade, balance and bot together", func(t *testing.T) {
		db, repo := setupTest(t)
		bot := &models.Bot{UserID: "user-1", StrategyType: models.StrategyDCA, Pair: "BTCUSDT", Capital: decimal.NewFromInt(1000), Status: models.StatusActive}
		require.NoError(t, repo.CreateBot(ctx, bot))
		_, err := repo.EnsureBalance(ctx, "user-1")
		require.NoError(t, err)

		bot.TotalTrades = 1
		now := time.Now()
		bot.LastExecutionAt = &now
		bal, err := repo.RecordTrade(ctx, newTrade("user-1", &bot.BotID), decimal.RequireFromString("-501"), bot)
		require.NoError(t, err)
		assert.True(t, bal.Amount.Equal(decimal.NewFromInt(499)))
		assert.Equal(t, int64(1), bal.Version)

		var count int64
		db.Model(&models.Trade{}).Where("bot_id = ?", bot.BotID).Count(&count)
		assert.Equal(t, int64(1), count)

		stored, err := repo.FindBot(ctx, bot.BotID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.TotalTrades)
		assert.NotNil(t, stored.LastExecutionAt)
	})

	t.Run("Bot no longer active writes nothing", func(t *testing.T) {
		db, repo := setupTest(t)
		bot := &models.Bot{UserID: "user-1", StrategyType: models.StrategyDCA, Pair: "BTCUSDT", Capital: decimal.NewFromInt(1000), Status: models.StatusPaused}
		require.NoError(t, repo.CreateBot(ctx, bot))
		_, err := repo.EnsureBalance(ctx, "user-1")
		require.NoError(t, err)

		ticked := *bot
		ticked.Status = models.StatusActive
		ticked.TotalTrades = 1
		_, err = repo.RecordTrade(ctx, newTrade("user-1", &bot.BotID), decimal.NewFromInt(-100), &ticked)
		assert.ErrorIs(t, err, ErrBotStateChanged)

		var count int64
		db.Model(&models.Trade{}).Count(&count)
		assert.Equal(t, int64(0), count, "trade insert must roll back")
		bal, err := repo.GetBalance(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, bal.Amount.Equal(decimal.NewFromInt(1000)))
		assert.Equal(t, int64(0), bal.Version)

		stored, err := repo.FindBot(ctx, bot.BotID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPaused, stored.Status)
		assert.Equal(t, 0, stored.TotalTrades)
	})

	t.Run("Overdraw writes nothing", func(t *testing.T) {
		db, repo := setupTest(t)
		_, err := repo.EnsureBalance(ctx, "user-1")
		require.NoError(t, err)

		_, err = repo.RecordTrade(ctx, newTrade("user-1", nil), decimal.NewFromInt(-1001), nil)
		assert.ErrorIs(t, err, ErrInsufficientFunds)

		var count int64
		db.Model(&models.Trade{}).Count(&count)
		assert.Equal(t, int64(0), count, "trade insert must roll back")
		bal, err := repo.GetBalance(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, bal.Amount.Equal(decimal.NewFromInt(1000)))
	})

	t.Run("Missing balance", func(t *testing.T) {
		_, repo := setupTest(t)
		_, err := repo.RecordTrade(ctx, newTrade("ghost", nil), decimal.NewFromInt(-1), nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Credit on sell", func(t *testing.T) {
		_, repo := setupTest(t)
		_, err := repo.EnsureBalance(ctx, "user-1")
		require.NoError(t, err)
		trade := newTrade("user-1", nil)
		trade.Side = "SELL"
		bal, err := repo.RecordTrade(ctx, trade, decimal.RequireFromString("499.99"), nil)
		require.NoError(t, err)
		assert.True(t, bal.Amount.Equal(decimal.RequireFromString("1499.99")))
	})

	t.Run("Concurrent debits are all applied", func(t *testing.T) {
		_, repo := setupTest(t)
		_, err := repo.EnsureBalance(ctx, "user-1")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.RecordTrade(ctx, newTrade("user-1", nil), decimal.NewFromInt(-10), nil)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		bal, err := repo.GetBalance(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, bal.Amount.Equal(decimal.NewFromInt(900)), "got %s", bal.Amount)
		assert.Equal(t, int64(10), bal.Version)

		trades, err := repo.ListTrades(ctx, TradeFilter{UserID: "user-1"})
		require.NoError(t, err)
		assert.Len(t, trades, 10)
	})
}

func TestRepository_ListTradesAndLogs(t *testing.T) {
	ctx := context.Background()
	_, repo := setupTest(t)
	_, err := repo.EnsureBalance(ctx, "user-1")
	require.NoError(t, err)

	botID := "bot-a"
	_, err = repo.RecordTrade(ctx, newTrade("user-1", &botID), decimal.NewFromInt(-10), nil)
	require.NoError(t, err)
	_, err = repo.RecordTrade(ctx, newTrade("user-1", nil), decimal.NewFromInt(-10), nil)
	require.NoError(t, err)

	trades, err := repo.ListTrades(ctx, TradeFilter{BotID: botID})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, botID, *trades[0].BotID)

	trades, err = repo.ListTrades(ctx, TradeFilter{UserID: "user-1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	require.NoError(t, repo.AppendBotLog(ctx, &models.BotLog{BotID: botID, Level: "info", Event: "tick", Message: "first"}))
	require.NoError(t, repo.AppendBotLog(ctx, &models.BotLog{BotID: botID, Level: "error", Event: "tick_failed", Message: "second"}))
	logs, err := repo.ListBotLogs(ctx, botID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "second", logs[0].Message)
}
