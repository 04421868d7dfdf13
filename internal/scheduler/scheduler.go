// Package scheduler drives the ingestion pipeline on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sheetcart-ai/ops-platform/pkg/logger"
)

// TickFunc runs one poll cycle.
type TickFunc func(ctx context.Context)

// Scheduler runs one active poller per deployment: ticks never overlap,
// a slow cycle simply delays the next one.
type Scheduler struct {
	interval time.Duration
	tick     TickFunc
	log      *logger.Logger
}

// New creates a scheduler.
func New(interval time.Duration, tick TickFunc, log *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{interval: interval, tick: tick, log: log.Component("scheduler")}
}

// Run blocks until ctx is cancelled, invoking the tick on the interval.
// The first tick fires immediately.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("ingestion scheduler started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("ingestion scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}
