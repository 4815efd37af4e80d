// Package model defines the core domain types for foreclosure listing sync.
package model

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Outcome classifies one observation of a listing against stored state.
type Outcome string

const (
	OutcomeNew       Outcome = "new"
	OutcomeChanged   Outcome = "changed"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeRemoved   Outcome = "removed"
)

// Source is a county portal the sync engine scrapes.
type Source struct {
	ID        int64     `json:"id"`
	Platform  string    `json:"platform"`
	Name      string    `json:"name"`
	PortalURL string    `json:"portal_url"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

// TriggerName returns the stable textual identifier used by inbound
// change notifications, e.g. "RealForeclose | Essex".
func (s Source) TriggerName() string {
	return s.Platform + " | " + s.Name
}

// ListingIdentity is the composite key for a property within a source.
type ListingIdentity struct {
	SourceID          int64  `json:"source_id"`
	NormalizedAddress string `json:"normalized_address"`
}

// NewIdentity builds an identity from a raw scraped address.
func NewIdentity(sourceID int64, rawAddress string) ListingIdentity {
	return ListingIdentity{
		SourceID:          sourceID,
		NormalizedAddress: NormalizeAddress(rawAddress),
	}
}

// NormalizeAddress lowercases, collapses whitespace, and strips punctuation
// so that "123  Main St." and "123 Main St" key the same record. Unicode
// input is NFKC-normalized and case-folded before filtering.
func NormalizeAddress(addr string) string {
	folded := cases.Fold().String(norm.NFKC.String(addr))

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		default:
			// Whitespace and punctuation both act as separators.
			pendingSpace = true
		}
	}
	return b.String()
}

// ListingPreview is one row scraped from a source's index page. It is
// transient: previews are hashed and classified but never stored directly.
type ListingPreview struct {
	Address    string            `json:"address"`
	SaleDate   string            `json:"sale_date"`
	Status     string            `json:"status"`
	CaseNumber string            `json:"case_number"`
	DetailURL  string            `json:"detail_url,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// DetailPayload is the full set of fields scraped from a listing's detail
// page. Values are kept as scraped text; parsing into typed fields is the
// enrichment subsystem's job.
type DetailPayload struct {
	Address    string            `json:"address"`
	SaleDate   string            `json:"sale_date"`
	Status     string            `json:"status"`
	CaseNumber string            `json:"case_number"`
	Court      string            `json:"court,omitempty"`
	Plaintiff  string            `json:"plaintiff,omitempty"`
	Defendant  string            `json:"defendant,omitempty"`
	OpeningBid string            `json:"opening_bid,omitempty"`
	Judgment   string            `json:"judgment,omitempty"`
	ParcelID   string            `json:"parcel_id,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// StatusEntry is one observation in a listing's append-only history.
type StatusEntry struct {
	Status     string    `json:"status"`
	Outcome    Outcome   `json:"outcome"`
	ObservedAt time.Time `json:"observed_at"`
}

// MaxStatusHistory bounds history growth. Entries are only appended on
// state-changing transitions, so the cap is rarely reached; when it is,
// the oldest entry is evicted.
const MaxStatusHistory = 200

// ListingRecord is the durable per-property entity. At most one
// non-tombstoned record exists per identity.
type ListingRecord struct {
	Identity      ListingIdentity `json:"identity"`
	PreviewHash   string          `json:"preview_hash"`
	DetailHash    string          `json:"detail_hash,omitempty"` // empty until first detail fetch
	StatusHistory []StatusEntry   `json:"status_history"`
	FirstSeenAt   time.Time       `json:"first_seen_at"`
	LastSeenAt    time.Time       `json:"last_seen_at"`
	IsRemoved     bool            `json:"is_removed"`
	Version       int64           `json:"version"` // optimistic concurrency guard

	// Business fields, filled from the last successful detail fetch.
	Address    string            `json:"address"`
	SaleDate   string            `json:"sale_date"`
	Status     string            `json:"status"`
	CaseNumber string            `json:"case_number"`
	Court      string            `json:"court,omitempty"`
	Plaintiff  string            `json:"plaintiff,omitempty"`
	Defendant  string            `json:"defendant,omitempty"`
	OpeningBid string            `json:"opening_bid,omitempty"`
	Judgment   string            `json:"judgment,omitempty"`
	ParcelID   string            `json:"parcel_id,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// AppendStatus appends a history entry, evicting the oldest entry once the
// cap is reached.
func (r *ListingRecord) AppendStatus(entry StatusEntry) {
	r.StatusHistory = append(r.StatusHistory, entry)
	if len(r.StatusHistory) > MaxStatusHistory {
		r.StatusHistory = r.StatusHistory[len(r.StatusHistory)-MaxStatusHistory:]
	}
}

// ApplyDetail replaces the business fields from a fresh detail payload.
func (r *ListingRecord) ApplyDetail(d *DetailPayload) {
	r.Address = d.Address
	r.SaleDate = d.SaleDate
	r.Status = d.Status
	r.CaseNumber = d.CaseNumber
	r.Court = d.Court
	r.Plaintiff = d.Plaintiff
	r.Defendant = d.Defendant
	r.OpeningBid = d.OpeningBid
	r.Judgment = d.Judgment
	r.ParcelID = d.ParcelID
	r.Extra = d.Extra
}
