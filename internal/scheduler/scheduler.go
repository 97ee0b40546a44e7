// Package scheduler periodically runs ticks for active bots that are due.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"paper-trade-bot-go/internal/config"
	"paper-trade-bot-go/internal/models"
	"paper-trade-bot-go/internal/trader"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultInterval    = 30 * time.Second
	defaultConcurrency = 4
	defaultTickTimeout = 30 * time.Second
)

// Executor runs one bot tick.
type Executor interface {
	ExecuteBotTick(ctx context.Context, botID string) (*trader.TickResult, error)
}

// BotSource lists bots whose next tick is due.
type BotSource interface {
	ListDueBots(ctx context.Context, now time.Time, limit int) ([]models.Bot, error)
}

// Summary counts the outcomes of one dispatch cycle.
type Summary struct {
	Due      int
	Executed int
	Skipped  int
	Failed   int
}

// Scheduler dispatches due bots to the executor on a fixed interval.
type Scheduler struct {
	logger *zap.Logger
	cfg    config.Scheduler
	bots   BotSource
	exec   Executor
	now    func() time.Time
}

// New creates a scheduler.
func New(logger *zap.Logger, cfg config.Scheduler, bots BotSource, exec Executor) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = defaultTickTimeout
	}
	return &Scheduler{
		logger: logger.Named("scheduler"),
		cfg:    cfg,
		bots:   bots,
		exec:   exec,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run dispatches a cycle immediately and then on every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Starting scheduler loop",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("concurrency", s.cfg.Concurrency),
	)

	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Dispatch cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Stopping scheduler...")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce ticks every due bot once, at most Concurrency at a time. Tick failures
// are logged and counted; they never stop the other ticks in the cycle.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	due, err := s.bots.ListDueBots(ctx, s.now(), 0)
	if err != nil {
		return Summary{}, err
	}
	if len(due) == 0 {
		return Summary{}, nil
	}

	var executed, skipped, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)

	for _, bot := range due {
		botID := bot.BotID
		g.Go(func() error {
			if ctx.Err() != nil {
				skipped.Add(1)
				return nil
			}
			tickCtx, cancel := context.WithTimeout(ctx, s.cfg.TickTimeout)
			defer cancel()

			res, err := s.exec.ExecuteBotTick(tickCtx, botID)
			switch {
			case errors.Is(err, trader.ErrTickInFlight), errors.Is(err, trader.ErrBotNotActive):
				// Ticked or changed by someone else since it was listed.
				s.logger.Debug("Bot no longer eligible", zap.String("bot_id", botID), zap.Error(err))
				skipped.Add(1)
			case err != nil:
				s.logger.Error("Bot tick failed", zap.String("bot_id", botID), zap.Error(err))
				failed.Add(1)
			case res.Executed:
				executed.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{
		Due:      len(due),
		Executed: int(executed.Load()),
		Skipped:  int(skipped.Load()),
		Failed:   int(failed.Load()),
	}
	s.logger.Info("Dispatch cycle finished",
		zap.Int("due", summary.Due),
		zap.Int("executed", summary.Executed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}
