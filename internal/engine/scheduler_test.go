package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
	"github.com/d28khalil/Bidnology-sub001/internal/store"
)

func TestScheduler_SyncsEnabledSourcesImmediately(t *testing.T) {
	h := newHarness(t, Options{})
	ctx := context.Background()

	// A disabled source must never be scheduled.
	_, err := h.store.CreateSource(ctx, model.Source{
		Platform:  "RealForeclose",
		Name:      "Dormant",
		PortalURL: "https://dormant.example.org",
	})
	require.NoError(t, err)

	h.col.previews = []model.ListingPreview{preview("F-1", "8 Clock Tower Rd", "2026-09-01", "scheduled")}
	h.col.details["F-1"] = detail("F-1", "8 Clock Tower Rd", "2026-09-01", "scheduled")

	sched := NewScheduler(h.orc, h.store, time.Hour, RunOpts{})
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- sched.Run(runCtx) }()

	// The first pass runs without waiting out the interval.
	require.Eventually(t, func() bool {
		runs, err := h.store.ListRunSummaries(ctx, store.RunFilter{})
		return err == nil && len(runs) == 1 && runs[0].CompletedAt != nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	runs, err := h.store.ListRunSummaries(ctx, store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, h.src.ID, runs[0].SourceID)
	assert.Equal(t, model.RunStatusCompleted, runs[0].Status)
}
