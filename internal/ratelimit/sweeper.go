package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tickwise/tickwise/internal/metrics"
)

// Sweeper periodically purges counter rows older than the retention horizon.
// The sweep is best effort and never blocks live traffic: it runs on its own
// schedule and only logs failures.
type Sweeper struct {
	store     CounterStore
	retention time.Duration
	logger    *slog.Logger
	cron      *cron.Cron
}

// NewSweeper creates a Sweeper that keeps retentionDays of counter history.
func NewSweeper(store CounterStore, retentionDays int, logger *slog.Logger) *Sweeper {
	if retentionDays <= 0 {
		retentionDays = 7
	}
	return &Sweeper{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
		cron:      cron.New(),
	}
}

// Start registers the sweep on the given cron schedule and starts the
// scheduler. An immediate sweep is not run; the first pass happens at the
// next scheduled tick.
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("quota retention sweep scheduled", "schedule", schedule, "retention", s.retention)
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.retention)
	deleted, err := s.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("quota retention sweep failed", "error", err)
		return
	}

	metrics.QuotaSweepDeleted.Add(float64(deleted))
	s.logger.Info("quota retention sweep complete", "deleted", deleted, "cutoff", cutoff)
}
