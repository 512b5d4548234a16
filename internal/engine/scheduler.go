// internal/engine/scheduler.go
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler runs reconciliation cycles on a fixed interval until the
// context is cancelled.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	logger   *logrus.Entry
}

func NewScheduler(engine *Engine, interval time.Duration, logger *logrus.Entry) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Scheduler{engine: engine, interval: interval, logger: logger}
}

// Run blocks, executing one cycle immediately and then one per interval.
// Cycle errors are logged and the schedule continues; transient failures
// retry at the next natural cycle boundary, never in a tight loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.WithField("interval", s.interval.String()).Info("reconciliation scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconciliation scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.engine.RunCycle(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) && !errors.Is(err, context.Canceled) {
		s.logger.WithError(err).Error("reconciliation cycle failed")
	}
}
