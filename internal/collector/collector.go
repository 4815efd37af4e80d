// Package collector obtains listing previews and detail payloads from
// county portals. The sync engine treats it as an opaque, possibly slow,
// possibly-failing dependency; HTML extraction itself is delegated to a
// PageParser implementation.
package collector

import (
	"context"
	"fmt"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
)

// Collector is the external data dependency of the sync engine.
type Collector interface {
	// ListPreviews returns the current set of listing previews for a source.
	ListPreviews(ctx context.Context, src model.Source) ([]model.ListingPreview, error)
	// FetchDetail retrieves the full detail payload for one listing.
	FetchDetail(ctx context.Context, src model.Source, preview model.ListingPreview) (*model.DetailPayload, error)
}

// FetchError describes a failed portal fetch.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// PageParser turns raw portal pages into structured listing data. DOM
// traversal and AI-assisted extraction live behind this interface.
type PageParser interface {
	ParseIndex(body []byte) ([]model.ListingPreview, error)
	ParseDetail(body []byte) (*model.DetailPayload, error)
}
