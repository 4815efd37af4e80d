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

func seedSweepSource(t *testing.T, s store.Store, name string) int64 {
	t.Helper()
	src, err := s.CreateSource(context.Background(), model.Source{
		Platform: "RealForeclose",
		Name:     name,
		Enabled:  true,
	})
	require.NoError(t, err)
	return src.ID
}

func seedListing(t *testing.T, s store.Store, sourceID int64, address string) model.ListingIdentity {
	t.Helper()
	id := model.NewIdentity(sourceID, address)
	now := time.Now().UTC()
	rec := &model.ListingRecord{
		Identity:    id,
		PreviewHash: "hash-" + id.NormalizedAddress,
		Address:     address,
		Status:      "scheduled",
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	rec.AppendStatus(model.StatusEntry{Status: "scheduled", Outcome: model.OutcomeNew, ObservedAt: now})
	require.NoError(t, s.InsertListing(context.Background(), rec))
	return id
}

func TestSweeper_TombstonesUnobserved(t *testing.T) {
	s := newGateStore(t)
	ctx := context.Background()

	srcID := seedSweepSource(t, s, "Essex")
	kept := seedListing(t, s, srcID, "1 Kept St")
	gone := seedListing(t, s, srcID, "2 Gone St")

	sw := NewSweeper(s)
	removed, failed, err := sw.Sweep(ctx, srcID, map[string]struct{}{
		kept.NormalizedAddress: {},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Zero(t, failed)

	rec, err := s.GetListing(ctx, gone)
	require.NoError(t, err)
	assert.True(t, rec.IsRemoved)
	require.Len(t, rec.StatusHistory, 2)
	assert.Equal(t, model.OutcomeRemoved, rec.StatusHistory[1].Outcome)
	assert.Equal(t, "scheduled", rec.StatusHistory[1].Status)

	rec, err = s.GetListing(ctx, kept)
	require.NoError(t, err)
	assert.False(t, rec.IsRemoved)
}

func TestSweeper_ScopedToSource(t *testing.T) {
	s := newGateStore(t)
	ctx := context.Background()

	mineID := seedSweepSource(t, s, "Essex")
	otherID := seedSweepSource(t, s, "Bergen")
	mine := seedListing(t, s, mineID, "1 Mine St")
	other := seedListing(t, s, otherID, "1 Other St")

	sw := NewSweeper(s)
	removed, failed, err := sw.Sweep(ctx, mineID, map[string]struct{}{})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Zero(t, failed)

	rec, err := s.GetListing(ctx, mine)
	require.NoError(t, err)
	assert.True(t, rec.IsRemoved)

	rec, err = s.GetListing(ctx, other)
	require.NoError(t, err)
	assert.False(t, rec.IsRemoved, "another source's listing must never be swept")
}

func TestSweeper_IdempotentOnTombstoned(t *testing.T) {
	s := newGateStore(t)
	ctx := context.Background()

	srcID := seedSweepSource(t, s, "Essex")
	id := seedListing(t, s, srcID, "3 Twice St")
	sw := NewSweeper(s)

	removed, _, err := sw.Sweep(ctx, srcID, map[string]struct{}{})
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	// A second sweep sees no active listings and changes nothing.
	removed, failed, err := sw.Sweep(ctx, srcID, map[string]struct{}{})
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Zero(t, failed)

	rec, err := s.GetListing(ctx, id)
	require.NoError(t, err)
	assert.Len(t, rec.StatusHistory, 2)
}
