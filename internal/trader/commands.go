package trader

import (
	"context"
	"errors"
	"fmt"

	"paper-trade-bot-go/internal/database"
	"paper-trade-bot-go/internal/lifecycle"
	"paper-trade-bot-go/internal/models"

	"go.uber.org/zap"
)

var userEvents = map[lifecycle.Event]bool{
	lifecycle.Start: true,
	lifecycle.Pause: true,
	lifecycle.Stop:  true,
	lifecycle.Reset: true,
}

// Transition applies a user command (start, pause, stop, reset) to a bot.
// A started bot is due for its first tick immediately. Commands are refused with
// ErrTickInFlight while the bot is ticking in this process; a status changed by
// another process between load and save is reported as ErrInvalidTransition.
func (e *Engine) Transition(ctx context.Context, botID string, event lifecycle.Event) (*models.Bot, error) {
	if !userEvents[event] {
		return nil, fmt.Errorf("%w: %s is not a bot command", lifecycle.ErrInvalidTransition, event)
	}
	if !e.inFlight.acquire(botID) {
		return nil, fmt.Errorf("bot %s: %w", botID, ErrTickInFlight)
	}
	defer e.inFlight.release(botID)

	bot, err := e.loadBot(ctx, botID)
	if err != nil {
		return nil, err
	}

	from := bot.Status
	next, err := lifecycle.Apply(lifecycle.Of(bot), event, e.cfg.ErrorThreshold)
	if err != nil {
		return nil, fmt.Errorf("bot %s: %w", botID, err)
	}
	next.Into(bot)
	if event == lifecycle.Start {
		now := e.now()
		bot.NextExecutionAt = &now
	}

	if err := e.store.SaveBotState(ctx, bot, from); err != nil {
		if errors.Is(err, database.ErrBotStateChanged) {
			return nil, fmt.Errorf("bot %s: %w: %w", botID, lifecycle.ErrInvalidTransition, err)
		}
		return nil, err
	}

	e.logger.Info("Bot status changed",
		zap.String("bot_id", botID),
		zap.String("from", string(from)),
		zap.String("to", string(bot.Status)),
	)
	e.appendLog(ctx, botID, "info", "status_changed", fmt.Sprintf("%s: %s -> %s", event, from, bot.Status))
	return bot, nil
}
