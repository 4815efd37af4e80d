package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/d28khalil/Bidnology-sub001/internal/enrich"
	"github.com/d28khalil/Bidnology-sub001/internal/model"
	"github.com/d28khalil/Bidnology-sub001/internal/store"
)

// Gate decides whether a listing transition warrants an enrichment request.
// Enrichment is expensive, so the gate guarantees at most one emission per
// (identity, detail hash) pair: new listings always emit, changed listings
// emit only when their content version actually moved.
type Gate struct {
	store   store.Store
	emitter enrich.Emitter
	now     func() time.Time
}

// NewGate wires a cascade gate.
func NewGate(st store.Store, em enrich.Emitter) *Gate {
	return &Gate{store: st, emitter: em, now: time.Now}
}

// MaybeEnrich emits an enrichment request when the outcome and content
// version call for one. The emission is recorded before delivery: a crash
// between the two drops at most one request rather than risking a duplicate.
func (g *Gate) MaybeEnrich(ctx context.Context, id model.ListingIdentity, outcome model.Outcome, detailHash string) (bool, error) {
	switch outcome {
	case model.OutcomeNew, model.OutcomeChanged:
	default:
		return false, nil
	}
	if detailHash == "" {
		// No detail content to enrich against.
		return false, nil
	}

	if outcome == model.OutcomeChanged {
		last, err := g.store.LastEmittedHash(ctx, id)
		if err != nil {
			return false, eris.Wrap(err, "engine: look up last emitted hash")
		}
		if last == detailHash {
			// Preview moved but detail content did not; nothing new to
			// enrich.
			return false, nil
		}
	}

	req := model.EnrichmentRequest{
		Identity:   id,
		DetailHash: detailHash,
		Outcome:    outcome,
		EmittedAt:  g.now().UTC(),
	}

	inserted, err := g.store.RecordEmission(ctx, req)
	if err != nil {
		return false, eris.Wrap(err, "engine: record emission")
	}
	if !inserted {
		// This content version was already emitted, possibly by an earlier
		// run that crashed after recording.
		return false, nil
	}

	if err := g.emitter.Emit(ctx, req); err != nil {
		return false, eris.Wrapf(err, "engine: emit enrichment %s", req.DedupKey())
	}
	return true, nil
}
