package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d28khalil/Bidnology-sub001/internal/store"
)

// Scheduler periodically syncs every enabled source. Sources run in
// parallel with each other; the per-source lock keeps a slow run from
// overlapping its own next tick.
type Scheduler struct {
	orc      *Orchestrator
	store    store.Store
	interval time.Duration
	runOpts  RunOpts
}

// NewScheduler wires a periodic scheduler. interval <= 0 selects hourly.
func NewScheduler(orc *Orchestrator, st store.Store, interval time.Duration, runOpts RunOpts) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{orc: orc, store: st, interval: interval, runOpts: runOpts}
}

// Run ticks until the context is canceled. The first pass starts
// immediately rather than waiting out an interval.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	sources, err := s.store.ListSources(ctx, true)
	if err != nil {
		zap.L().Error("scheduler: failed to list sources", zap.Error(err))
		return
	}

	var wg sync.WaitGroup
	for _, src := range sources {
		src := src
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.orc.SyncSource(ctx, src, s.runOpts); err != nil {
				zap.L().Error("scheduled sync failed",
					zap.String("source", src.TriggerName()),
					zap.Error(err),
				)
			}
		}()
	}
	wg.Wait()
}
