package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
	"github.com/d28khalil/Bidnology-sub001/internal/store"
)

// Sweeper tombstones listings that were active for a source but absent
// from a run's observed set. Tombstoning is soft: the record and its
// history survive, so a re-listed property resumes where it left off.
type Sweeper struct {
	store store.Store
	now   func() time.Time
}

// NewSweeper wires a tombstone sweeper.
func NewSweeper(st store.Store) *Sweeper {
	return &Sweeper{store: st, now: time.Now}
}

// Sweep computes the set difference between the source's active listings
// and the identities observed this run, tombstoning the leftovers. It is
// strictly source-scoped; other sources' listings are never touched. It
// returns the number of listings tombstoned and the number that failed;
// failures are retried by the next sweep. A non-nil error means the sweep
// could not run at all.
func (s *Sweeper) Sweep(ctx context.Context, sourceID int64, observed map[string]struct{}) (removed, failed int, err error) {
	active, err := s.store.ActiveIdentities(ctx, sourceID)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "engine: list active identities for source %d", sourceID)
	}

	for _, addr := range active {
		if _, ok := observed[addr]; ok {
			continue
		}
		id := model.ListingIdentity{SourceID: sourceID, NormalizedAddress: addr}
		if err := s.tombstone(ctx, id); err != nil {
			zap.L().Warn("tombstone failed",
				zap.Int64("source_id", sourceID),
				zap.String("address", addr),
				zap.Error(err),
			)
			failed++
			continue
		}
		removed++
	}
	return removed, failed, nil
}

func (s *Sweeper) tombstone(ctx context.Context, id model.ListingIdentity) error {
	at := s.now().UTC()
	apply := func(rec *model.ListingRecord) {
		rec.IsRemoved = true
		rec.AppendStatus(model.StatusEntry{Status: rec.Status, Outcome: model.OutcomeRemoved, ObservedAt: at})
	}

	rec, err := s.store.GetListing(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil || rec.IsRemoved {
		// Already gone or tombstoned by a concurrent writer.
		return nil
	}

	apply(rec)
	err = s.store.UpdateListing(ctx, rec)
	if !eris.Is(err, store.ErrConflict) {
		return err
	}

	// Lost a version race; re-read and retry once.
	fresh, err := s.store.GetListing(ctx, id)
	if err != nil {
		return err
	}
	if fresh == nil || fresh.IsRemoved {
		return nil
	}
	apply(fresh)
	return s.store.UpdateListing(ctx, fresh)
}
