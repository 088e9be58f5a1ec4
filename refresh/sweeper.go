package refresh

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInitialDelay is how long Start waits before the first sweep.
const DefaultInitialDelay = 5 * time.Second

// Sweepable is anything that can delete expired refresh tokens.
type Sweepable interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SweepFunc adapts a function to Sweepable.
type SweepFunc func(ctx context.Context) (int64, error)

// SweepExpired calls f.
func (f SweepFunc) SweepExpired(ctx context.Context) (int64, error) {
	return f(ctx)
}

// Sweeper runs a Sweepable on a fixed interval.
type Sweeper struct {
	target       Sweepable
	interval     time.Duration
	logger       *slog.Logger
	InitialDelay time.Duration
}

// NewSweeper creates a Sweeper. A nil logger discards output.
func NewSweeper(target Sweepable, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Sweeper{
		target:       target,
		interval:     interval,
		logger:       logger,
		InitialDelay: DefaultInitialDelay,
	}
}

// Start blocks until ctx is cancelled, sweeping once after InitialDelay and then
// every interval.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("refresh token sweeper started",
		slog.Duration("interval", s.interval),
		slog.Duration("initial_delay", s.InitialDelay),
	)

	if s.InitialDelay > 0 {
		timer := time.NewTimer(s.InitialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("refresh token sweeper stopped")
			return
		case <-timer.C:
		}
	}
	_, _ = s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh token sweeper stopped")
			return
		case <-ticker.C:
			_, _ = s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and logs the outcome.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()

	deleted, err := s.target.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("refresh token sweep failed",
			slog.String("error", err.Error()),
		)
		return 0, err
	}

	s.logger.Info("refresh token sweep completed",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}
