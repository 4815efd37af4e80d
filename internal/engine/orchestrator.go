// Package engine drives incremental sync runs: one source at a time under
// a per-source lock, classifying observed previews against stored state,
// fetching detail pages only for new or changed listings, and cascading
// enrichment requests through the dedup gate.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d28khalil/Bidnology-sub001/internal/classify"
	"github.com/d28khalil/Bidnology-sub001/internal/collector"
	"github.com/d28khalil/Bidnology-sub001/internal/fingerprint"
	"github.com/d28khalil/Bidnology-sub001/internal/lock"
	"github.com/d28khalil/Bidnology-sub001/internal/model"
	"github.com/d28khalil/Bidnology-sub001/internal/store"
)

// Options tunes orchestrator behavior.
type Options struct {
	// DetailConcurrency bounds parallel detail fetches within one run.
	DetailConcurrency int
	// DetailTimeout bounds each individual detail fetch.
	DetailTimeout time.Duration
	// RunTimeout bounds a whole run, sized for worst-case detail volume.
	RunTimeout time.Duration
	// RecordUnchanged appends a history entry on plain touches. Off by
	// default to bound history growth.
	RecordUnchanged bool
}

func (o Options) withDefaults() Options {
	if o.DetailConcurrency <= 0 {
		o.DetailConcurrency = 4
	}
	if o.DetailTimeout <= 0 {
		o.DetailTimeout = 30 * time.Second
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = 15 * time.Minute
	}
	return o
}

// RunOpts configures a single run.
type RunOpts struct {
	// Sweep tombstones previously-active listings absent from this run's
	// preview set. Only enable when the listing set is trusted to be
	// complete; a transient scrape failure must not read as removal.
	Sweep bool
}

// Orchestrator executes sync runs end to end.
type Orchestrator struct {
	store     store.Store
	collector collector.Collector
	locks     *lock.Manager
	gate      *Gate
	sweeper   *Sweeper
	opts      Options
	now       func() time.Time
}

// NewOrchestrator wires a sync orchestrator.
func NewOrchestrator(st store.Store, col collector.Collector, locks *lock.Manager, gate *Gate, opts Options) *Orchestrator {
	return &Orchestrator{
		store:     st,
		collector: col,
		locks:     locks,
		gate:      gate,
		sweeper:   NewSweeper(st),
		opts:      opts.withDefaults(),
		now:       time.Now,
	}
}

// workItem is one preview that needs a detail fetch.
type workItem struct {
	preview     model.ListingPreview
	identity    model.ListingIdentity
	previewHash string
	result      classify.Result
}

// counters aggregates run outcomes across detail-fetch goroutines.
type counters struct {
	mu        sync.Mutex
	new       int
	changed   int
	unchanged int
	errors    int
}

func (c *counters) add(outcome model.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch outcome {
	case model.OutcomeNew:
		c.new++
	case model.OutcomeChanged:
		c.changed++
	case model.OutcomeUnchanged:
		c.unchanged++
	}
}

func (c *counters) fail() {
	c.mu.Lock()
	c.errors++
	c.mu.Unlock()
}

// SyncSource runs one synchronization for a source. A refused lock is the
// expected outcome of overlapping triggers and yields a skipped_locked
// summary, not an error. The lock is released on every exit path.
func (o *Orchestrator) SyncSource(ctx context.Context, src model.Source, run RunOpts) (*model.RunSummary, error) {
	log := zap.L().With(zap.Int64("source_id", src.ID), zap.String("source", src.TriggerName()))

	token, err := o.locks.TryAcquire(src.ID)
	if err != nil {
		if eris.Is(err, lock.ErrRefused) {
			log.Info("sync already in flight, skipping")
			now := o.now().UTC()
			return &model.RunSummary{
				SourceID:    src.ID,
				Status:      model.RunStatusSkippedLocked,
				StartedAt:   now,
				CompletedAt: &now,
			}, nil
		}
		return nil, eris.Wrapf(err, "engine: acquire lock for source %d", src.ID)
	}
	defer func() {
		if relErr := o.locks.Release(src.ID, token); relErr != nil {
			log.Error("failed to release source lock", zap.Error(relErr))
		}
	}()

	sum := &model.RunSummary{
		SourceID:  src.ID,
		Status:    model.RunStatusRunning,
		StartedAt: o.now().UTC(),
	}
	if err := o.store.CreateRunSummary(ctx, sum); err != nil {
		return nil, eris.Wrap(err, "engine: create run summary")
	}

	runCtx, cancel := context.WithTimeout(ctx, o.opts.RunTimeout)
	defer cancel()

	log.Info("sync run starting", zap.String("run_id", sum.ID), zap.Bool("sweep", run.Sweep))

	previews, err := o.collector.ListPreviews(runCtx, src)
	if err != nil {
		log.Error("collector unavailable", zap.Error(err))
		return o.finalize(ctx, sum, model.RunStatusFailed, err.Error(), log), nil
	}

	var cnt counters
	observed := make(map[string]struct{}, len(previews))
	work := o.classifyPreviews(runCtx, src, previews, observed, &cnt, log)

	o.fetchDetails(runCtx, src, work, &cnt, log)

	removed := 0
	if run.Sweep {
		if runCtx.Err() != nil {
			log.Warn("run interrupted, skipping sweep")
		} else {
			var failed int
			removed, failed, err = o.sweeper.Sweep(runCtx, src.ID, observed)
			if err != nil {
				log.Error("sweep failed", zap.Error(err))
				cnt.fail()
			}
			cnt.errors += failed
		}
	}

	sum.New = cnt.new
	sum.Changed = cnt.changed
	sum.Unchanged = cnt.unchanged
	sum.Removed = removed
	sum.Errors = cnt.errors

	status := model.RunStatusCompleted
	if runCtx.Err() != nil {
		status = model.RunStatusPartial
	}
	return o.finalize(ctx, sum, status, "", log), nil
}

// classifyPreviews deduplicates and classifies the preview set, touching
// unchanged listings immediately and returning work items that need a
// detail fetch.
func (o *Orchestrator) classifyPreviews(
	ctx context.Context,
	src model.Source,
	previews []model.ListingPreview,
	observed map[string]struct{},
	cnt *counters,
	log *zap.Logger,
) []workItem {
	var work []workItem
	for _, p := range previews {
		id := model.NewIdentity(src.ID, p.Address)
		if id.NormalizedAddress == "" {
			log.Warn("preview without usable address", zap.String("case_number", p.CaseNumber))
			cnt.fail()
			continue
		}
		if _, dup := observed[id.NormalizedAddress]; dup {
			// A run counts each listing once, however often the portal
			// repeats the row.
			log.Debug("duplicate preview", zap.String("address", id.NormalizedAddress))
			continue
		}
		observed[id.NormalizedAddress] = struct{}{}

		hash := fingerprint.Preview(p)
		stored, err := o.store.GetListing(ctx, id)
		if err != nil {
			log.Warn("listing lookup failed", zap.String("address", id.NormalizedAddress), zap.Error(err))
			cnt.fail()
			continue
		}

		res := classify.Classify(stored, hash)
		if res.Outcome == model.OutcomeUnchanged {
			if err := o.touch(ctx, stored, id); err != nil {
				log.Warn("touch failed", zap.String("address", id.NormalizedAddress), zap.Error(err))
				cnt.fail()
				continue
			}
			cnt.add(model.OutcomeUnchanged)
			continue
		}
		work = append(work, workItem{preview: p, identity: id, previewHash: hash, result: res})
	}
	return work
}

// touch advances last_seen_at for an unchanged listing. When configured to
// record unchanged observations it appends a history entry instead of a
// plain touch.
func (o *Orchestrator) touch(ctx context.Context, stored *model.ListingRecord, id model.ListingIdentity) error {
	seenAt := o.now().UTC()
	if !o.opts.RecordUnchanged {
		return o.store.TouchListing(ctx, id, seenAt)
	}

	apply := func(rec *model.ListingRecord) {
		rec.LastSeenAt = seenAt
		rec.AppendStatus(model.StatusEntry{Status: rec.Status, Outcome: model.OutcomeUnchanged, ObservedAt: seenAt})
	}
	apply(stored)
	err := o.store.UpdateListing(ctx, stored)
	if eris.Is(err, store.ErrConflict) {
		return o.retryTransition(ctx, id, apply)
	}
	return err
}

// fetchDetails runs the detail stage with bounded concurrency. Individual
// fetch failures are recorded and never abort the run; the listing keeps
// its prior stored state and is retried on the next run.
func (o *Orchestrator) fetchDetails(ctx context.Context, src model.Source, work []workItem, cnt *counters, log *zap.Logger) {
	if len(work) == 0 {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(o.opts.DetailConcurrency)
	for _, it := range work {
		it := it
		g.Go(func() error {
			if ctx.Err() != nil {
				// Cancellation: stop taking new fetches; the run summary
				// is finalized as partial.
				return nil
			}
			o.processListing(ctx, src, it, cnt, log)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) processListing(ctx context.Context, src model.Source, it workItem, cnt *counters, log *zap.Logger) {
	fetchCtx, cancel := context.WithTimeout(ctx, o.opts.DetailTimeout)
	defer cancel()

	detail, err := o.collector.FetchDetail(fetchCtx, src, it.preview)
	if err != nil {
		log.Warn("detail fetch failed",
			zap.String("address", it.identity.NormalizedAddress),
			zap.Error(err),
		)
		cnt.fail()
		return
	}

	detailHash := fingerprint.Detail(detail)
	if err := o.persist(ctx, it, detail, detailHash); err != nil {
		log.Warn("persist failed",
			zap.String("address", it.identity.NormalizedAddress),
			zap.Error(err),
		)
		cnt.fail()
		return
	}
	cnt.add(it.result.Outcome)

	emitted, err := o.gate.MaybeEnrich(ctx, it.identity, it.result.Outcome, detailHash)
	if err != nil {
		log.Warn("enrichment emission failed",
			zap.String("address", it.identity.NormalizedAddress),
			zap.Error(err),
		)
		cnt.fail()
		return
	}
	if emitted {
		log.Debug("enrichment emitted",
			zap.String("address", it.identity.NormalizedAddress),
			zap.String("detail_hash", detailHash),
		)
	}
}

// persist applies exactly one transition: insert for a fresh NEW,
// update-with-history for CHANGED and re-activated listings.
func (o *Orchestrator) persist(ctx context.Context, it workItem, detail *model.DetailPayload, detailHash string) error {
	now := o.now().UTC()

	if it.result.Outcome == model.OutcomeNew && !it.result.Reactivated {
		rec := &model.ListingRecord{
			Identity:    it.identity,
			PreviewHash: it.previewHash,
			DetailHash:  detailHash,
			FirstSeenAt: now,
			LastSeenAt:  now,
		}
		rec.ApplyDetail(detail)
		rec.AppendStatus(model.StatusEntry{Status: rec.Status, Outcome: model.OutcomeNew, ObservedAt: now})
		return o.store.InsertListing(ctx, rec)
	}

	apply := func(rec *model.ListingRecord) {
		rec.ApplyDetail(detail)
		rec.PreviewHash = it.previewHash
		rec.DetailHash = detailHash
		rec.LastSeenAt = now
		rec.IsRemoved = false
		rec.AppendStatus(model.StatusEntry{Status: rec.Status, Outcome: it.result.Outcome, ObservedAt: now})
	}

	stored, err := o.store.GetListing(ctx, it.identity)
	if err != nil {
		return err
	}
	if stored == nil {
		// Classified as re-activation or change but the record vanished;
		// treat as a fresh insert.
		rec := &model.ListingRecord{
			Identity:    it.identity,
			PreviewHash: it.previewHash,
			DetailHash:  detailHash,
			FirstSeenAt: now,
			LastSeenAt:  now,
		}
		rec.ApplyDetail(detail)
		rec.AppendStatus(model.StatusEntry{Status: rec.Status, Outcome: model.OutcomeNew, ObservedAt: now})
		return o.store.InsertListing(ctx, rec)
	}

	apply(stored)
	err = o.store.UpdateListing(ctx, stored)
	if eris.Is(err, store.ErrConflict) {
		return o.retryTransition(ctx, it.identity, apply)
	}
	return err
}

// retryTransition re-reads a record and retries a transition once after a
// concurrent-modification conflict. A second conflict surfaces as a
// listing-level error.
func (o *Orchestrator) retryTransition(ctx context.Context, id model.ListingIdentity, apply func(*model.ListingRecord)) error {
	fresh, err := o.store.GetListing(ctx, id)
	if err != nil {
		return err
	}
	if fresh == nil {
		return eris.Wrapf(store.ErrNotFound, "engine: record disappeared during retry %s", id.NormalizedAddress)
	}
	apply(fresh)
	return eris.Wrapf(o.store.UpdateListing(ctx, fresh), "engine: retry transition %s", id.NormalizedAddress)
}

// finalize stamps and persists the run summary. It uses a non-cancelable
// context so a timed-out run still records its outcome.
func (o *Orchestrator) finalize(ctx context.Context, sum *model.RunSummary, status model.RunStatus, errMsg string, log *zap.Logger) *model.RunSummary {
	completed := o.now().UTC()
	sum.Status = status
	sum.Error = errMsg
	sum.CompletedAt = &completed

	if err := o.store.FinalizeRunSummary(context.WithoutCancel(ctx), sum); err != nil {
		log.Error("failed to finalize run summary", zap.String("run_id", sum.ID), zap.Error(err))
	}

	log.Info("sync run finished",
		zap.String("run_id", sum.ID),
		zap.String("status", string(status)),
		zap.Int("new", sum.New),
		zap.Int("changed", sum.Changed),
		zap.Int("unchanged", sum.Unchanged),
		zap.Int("removed", sum.Removed),
		zap.Int("errors", sum.Errors),
	)
	return sum
}
