// Package store persists listing records, run summaries, the source
// registry, and enrichment emission tracking.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
)

// ErrConflict signals that a write lost an optimistic concurrency race:
// the record was modified since it was read. Callers re-read and retry
// the transition once.
var ErrConflict = eris.New("store: concurrent modification")

// ErrNotFound signals that the targeted record does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter selects run summaries for listing.
type RunFilter struct {
	SourceID int64           `json:"source_id,omitempty"`
	Status   model.RunStatus `json:"status,omitempty"`
	Limit    int             `json:"limit,omitempty"`
}

// Store defines the persistence interface for the sync engine. Lookup
// methods return (nil, nil) when the row does not exist.
type Store interface {
	// Source registry
	CreateSource(ctx context.Context, src model.Source) (*model.Source, error)
	GetSource(ctx context.Context, id int64) (*model.Source, error)
	GetSourceByName(ctx context.Context, platform, name string) (*model.Source, error)
	ListSources(ctx context.Context, enabledOnly bool) ([]model.Source, error)

	// Listings. UpdateListing and TouchListing guard on the record version
	// and return ErrConflict when the stored version has moved.
	GetListing(ctx context.Context, id model.ListingIdentity) (*model.ListingRecord, error)
	InsertListing(ctx context.Context, rec *model.ListingRecord) error
	UpdateListing(ctx context.Context, rec *model.ListingRecord) error
	TouchListing(ctx context.Context, id model.ListingIdentity, seenAt time.Time) error
	ActiveIdentities(ctx context.Context, sourceID int64) ([]string, error)

	// Enrichment emission tracking, kept separate from detail_hash storage
	// so emission policy can diverge from record state.
	LastEmittedHash(ctx context.Context, id model.ListingIdentity) (string, error)
	RecordEmission(ctx context.Context, req model.EnrichmentRequest) (bool, error)

	// Run summaries
	CreateRunSummary(ctx context.Context, sum *model.RunSummary) error
	FinalizeRunSummary(ctx context.Context, sum *model.RunSummary) error
	ListRunSummaries(ctx context.Context, filter RunFilter) ([]model.RunSummary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
