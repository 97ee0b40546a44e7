package trader

import (
	"context"
	"testing"
	"time"

	"paper-trade-bot-go/internal/lifecycle"
	"paper-trade-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEngine_Transition(t *testing.T) {
	ctx := context.Background()

	t.Run("Full lifecycle", func(t *testing.T) {
		engine, repo, _, _ := setupTest(t)
		bot := createBot(t, repo, models.Bot{StrategyType: models.StrategyDCA, Capital: decimal.NewFromInt(1000), Status: models.StatusDraft})

		steps := []struct {
			event lifecycle.Event
			want  models.BotStatus
		}{
			{lifecycle.Start, models.StatusActive},
			{lifecycle.Pause, models.StatusPaused},
			{lifecycle.Start, models.StatusActive},
			{lifecycle.Stop, models.StatusStopped},
		}
		for _, step := range steps {
			updated, err := engine.Transition(ctx, bot.BotID, step.event)
			require.NoError(t, err, "event %s", step.event)
			assert.Equal(t, step.want, updated.Status)
			assert.Equal(t, step.want, reloadBot(t, repo, bot.BotID).Status)
		}

		_, err := engine.Transition(ctx, bot.BotID, lifecycle.Start)
		assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)

		logs, err := repo.ListBotLogs(ctx, bot.BotID, 0)
		require.NoError(t, err)
		assert.Len(t, logs, len(steps))
		assert.Equal(t, "status_changed", logs[0].Event)
	})

	t.Run("Start makes the bot due now", func(t *testing.T) {
		engine, repo, _, _ := setupTest(t)
		bot := createBot(t, repo, models.Bot{StrategyType: models.StrategyDCA, Capital: decimal.NewFromInt(1000), Status: models.StatusPaused})

		_, err := engine.Transition(ctx, bot.BotID, lifecycle.Start)
		require.NoError(t, err)

		due, err := repo.ListDueBots(ctx, testNow.Add(time.Second), 0)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, bot.BotID, due[0].BotID)
	})

	t.Run("Reset clears errors", func(t *testing.T) {
		engine, repo, _, _ := setupTest(t)
		bot := createBot(t, repo, models.Bot{
			StrategyType: models.StrategyDCA,
			Capital:      decimal.NewFromInt(1000),
			Status:       models.StatusError,
			ErrorCount:   5,
			ErrorMessage: "boom",
		})

		updated, err := engine.Transition(ctx, bot.BotID, lifecycle.Reset)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPaused, updated.Status)

		stored := reloadBot(t, repo, bot.BotID)
		assert.Equal(t, 0, stored.ErrorCount)
		assert.Empty(t, stored.ErrorMessage)
	})

	t.Run("Tick events are not commands", func(t *testing.T) {
		engine, repo, _, _ := setupTest(t)
		bot := createBot(t, repo, models.Bot{StrategyType: models.StrategyDCA, Capital: decimal.NewFromInt(1000)})

		_, err := engine.Transition(ctx, bot.BotID, lifecycle.TickFailed)
		assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
		assert.Equal(t, 0, reloadBot(t, repo, bot.BotID).ErrorCount)
	})

	t.Run("Unknown bot", func(t *testing.T) {
		engine, _, _, _ := setupTest(t)
		_, err := engine.Transition(ctx, "missing", lifecycle.Start)
		assert.ErrorIs(t, err, ErrBotNotFound)
	})

	t.Run("Refused while ticking", func(t *testing.T) {
		engine, repo, _, oracle := setupTest(t)
		bot := createBot(t, repo, models.Bot{
			StrategyType: models.StrategyDCA,
			Capital:      decimal.NewFromInt(1000),
			Params:       map[string]interface{}{"buyAmount": 100},
		})
		started := make(chan struct{})
		release := make(chan struct{})
		oracle.On("Price", mock.Anything, "BTCUSDT").
			Run(func(mock.Arguments) {
				close(started)
				<-release
			}).
			Return(testPrice, nil).Once()

		done := make(chan error, 1)
		go func() {
			_, err := engine.ExecuteBotTick(ctx, bot.BotID)
			done <- err
		}()
		<-started
		_, err := engine.Transition(ctx, bot.BotID, lifecycle.Pause)
		close(release)

		assert.ErrorIs(t, err, ErrTickInFlight)
		assert.NoError(t, <-done)
		assert.Equal(t, models.StatusActive, reloadBot(t, repo, bot.BotID).Status)
	})
}
