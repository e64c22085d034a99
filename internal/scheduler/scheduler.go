// Package scheduler runs periodic fetch-and-process cycles.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"mailrules/internal/processor"
)

// Fetcher pulls new mail into storage.
type Fetcher interface {
	FetchAndStore(ctx context.Context, limit int64) (int, error)
}

// Runner applies the rules to stored mail.
type Runner interface {
	ProcessInBatches(ctx context.Context) (processor.Stats, error)
}

// Notifier is told about every finished run.
type Notifier interface {
	NotifyRun(stats processor.Stats, err error)
}

// Scheduler periodically fetches mail and applies the rules.
type Scheduler struct {
	fetcher  Fetcher
	runner   Runner
	notifier Notifier
	limit    int64
	log      *slog.Logger
	tick     time.Duration
}

// New creates a Scheduler. fetcher and notifier may be nil.
func New(fetcher Fetcher, runner Runner, notifier Notifier, limit int64, log *slog.Logger) *Scheduler {
	return &Scheduler{
		fetcher:  fetcher,
		runner:   runner,
		notifier: notifier,
		limit:    limit,
		log:      log,
		tick:     15 * time.Minute,
	}
}

// SetTickInterval overrides the default 15-minute interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.runOnce(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if s.fetcher != nil {
		n, err := s.fetcher.FetchAndStore(ctx, s.limit)
		if err != nil {
			s.log.Error("fetch emails", "error", err)
		} else {
			s.log.Debug("fetched emails", "count", n)
		}
	}
	if ctx.Err() != nil {
		return
	}

	stats, err := s.runner.ProcessInBatches(ctx)
	switch {
	case errors.Is(err, processor.ErrRunInProgress):
		s.log.Info("skip scheduled run", "reason", err)
		return
	case err != nil && ctx.Err() != nil:
		return
	case err != nil:
		s.log.Error("process emails", "error", err)
	default:
		s.log.Info("scheduled run finished", "run_id", stats.RunID, "matched", stats.Matched, "actions", stats.ActionsExecuted)
	}

	if s.notifier != nil {
		s.notifier.NotifyRun(stats, err)
	}
}
