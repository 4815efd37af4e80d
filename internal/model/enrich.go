package model

import (
	"fmt"
	"time"
)

// EnrichmentRequest asks the enrichment subsystem to look up market data
// for one content version of a listing. The cascade gate guarantees that
// no two requests ever share the same dedup key.
type EnrichmentRequest struct {
	Identity   ListingIdentity `json:"identity"`
	DetailHash string          `json:"detail_hash"`
	Outcome    Outcome         `json:"outcome"`
	EmittedAt  time.Time       `json:"emitted_at"`
}

// DedupKey identifies one content version of one listing.
func (r EnrichmentRequest) DedupKey() string {
	return fmt.Sprintf("%d|%s|%s", r.Identity.SourceID, r.Identity.NormalizedAddress, r.DetailHash)
}
