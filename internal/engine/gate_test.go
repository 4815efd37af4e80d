package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
	"github.com/d28khalil/Bidnology-sub001/internal/store"
)

func newGateStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "gate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestGate_NewAlwaysEmits(t *testing.T) {
	s := newGateStore(t)
	em := &captureEmitter{}
	g := NewGate(s, em)
	id := model.ListingIdentity{SourceID: 1, NormalizedAddress: "12 high st"}

	emitted, err := g.MaybeEnrich(context.Background(), id, model.OutcomeNew, "hash-a")
	require.NoError(t, err)
	assert.True(t, emitted)
	require.Len(t, em.emitted(), 1)
	assert.Equal(t, "hash-a", em.emitted()[0].DetailHash)
}

func TestGate_ChangedEmitsOnlyOnNewHash(t *testing.T) {
	s := newGateStore(t)
	em := &captureEmitter{}
	g := NewGate(s, em)
	ctx := context.Background()
	id := model.ListingIdentity{SourceID: 1, NormalizedAddress: "12 high st"}

	emitted, err := g.MaybeEnrich(ctx, id, model.OutcomeNew, "hash-a")
	require.NoError(t, err)
	require.True(t, emitted)

	// Preview moved but the detail content did not: no emission.
	emitted, err = g.MaybeEnrich(ctx, id, model.OutcomeChanged, "hash-a")
	require.NoError(t, err)
	assert.False(t, emitted)

	// Content actually changed: emit.
	emitted, err = g.MaybeEnrich(ctx, id, model.OutcomeChanged, "hash-b")
	require.NoError(t, err)
	assert.True(t, emitted)
	assert.Len(t, em.emitted(), 2)
}

func TestGate_SkipsNonEnrichableOutcomes(t *testing.T) {
	s := newGateStore(t)
	em := &captureEmitter{}
	g := NewGate(s, em)
	ctx := context.Background()
	id := model.ListingIdentity{SourceID: 1, NormalizedAddress: "12 high st"}

	for _, outcome := range []model.Outcome{model.OutcomeUnchanged, model.OutcomeRemoved} {
		emitted, err := g.MaybeEnrich(ctx, id, outcome, "hash-a")
		require.NoError(t, err)
		assert.False(t, emitted, "outcome %s must not emit", outcome)
	}

	// A new listing without detail content has nothing to enrich.
	emitted, err := g.MaybeEnrich(ctx, id, model.OutcomeNew, "")
	require.NoError(t, err)
	assert.False(t, emitted)
	assert.Empty(t, em.emitted())
}

func TestGate_RecordsBeforeEmitting(t *testing.T) {
	s := newGateStore(t)
	em := &captureEmitter{err: eris.New("endpoint down")}
	g := NewGate(s, em)
	ctx := context.Background()
	id := model.ListingIdentity{SourceID: 1, NormalizedAddress: "12 high st"}

	_, err := g.MaybeEnrich(ctx, id, model.OutcomeNew, "hash-a")
	require.Error(t, err)

	// The failed emission was recorded, so the same content version is
	// never offered again: at most one delivery per (identity, hash).
	em.mu.Lock()
	em.err = nil
	em.mu.Unlock()
	emitted, err := g.MaybeEnrich(ctx, id, model.OutcomeNew, "hash-a")
	require.NoError(t, err)
	assert.False(t, emitted)
	assert.Empty(t, em.emitted())
}
