// Package fingerprint computes deterministic content hashes for listing
// previews and detail payloads. Hashes are stable across incidental
// formatting differences: inputs are reduced to a canonical ordered tuple
// of normalized field values before hashing.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
)

// SchemaVersion is folded into every hash so that changing the canonical
// field list invalidates stored fingerprints instead of silently colliding
// with them.
const SchemaVersion = 1

// absentSentinel stands in for missing fields. Substituting a fixed value
// (rather than skipping the field) keeps hashes stable across partial data.
const absentSentinel = "\x00absent"

// previewFields is the schema-versioned canonical field order for previews.
var previewFields = []string{"address", "sale_date", "status", "case_number"}

// detailFields is the canonical field order for detail payloads. Extra
// fields are appended in sorted key order after these.
var detailFields = []string{
	"address", "sale_date", "status", "case_number",
	"court", "plaintiff", "defendant", "opening_bid", "judgment", "parcel_id",
}

// Preview fingerprints the cheap index-page fields of a listing.
func Preview(p model.ListingPreview) string {
	values := map[string]string{
		"address":     p.Address,
		"sale_date":   canonicalDate(p.SaleDate),
		"status":      p.Status,
		"case_number": p.CaseNumber,
	}
	return hashTuple(previewFields, values, nil)
}

// Detail fingerprints the full detail payload of a listing.
func Detail(d *model.DetailPayload) string {
	values := map[string]string{
		"address":     d.Address,
		"sale_date":   canonicalDate(d.SaleDate),
		"status":      d.Status,
		"case_number": d.CaseNumber,
		"court":       d.Court,
		"plaintiff":   d.Plaintiff,
		"defendant":   d.Defendant,
		"opening_bid": d.OpeningBid,
		"judgment":    d.Judgment,
		"parcel_id":   d.ParcelID,
	}
	return hashTuple(detailFields, values, d.Extra)
}

func hashTuple(fields []string, values map[string]string, extra map[string]string) string {
	h := sha256.New()
	h.Write([]byte("v1\n"))
	for _, f := range fields {
		writeField(h, f, values[f])
	}
	if len(extra) > 0 {
		keys := make([]string, 0, len(extra))
		for k := range extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeField(h, "x:"+canonicalValue(k), extra[k])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h interface{ Write(p []byte) (int, error) }, name, value string) {
	v := canonicalValue(value)
	if v == "" {
		v = absentSentinel
	}
	h.Write([]byte(name))
	h.Write([]byte{'='})
	h.Write([]byte(v))
	h.Write([]byte{'\n'})
}

// canonicalValue trims, collapses internal whitespace, and lowercases.
func canonicalValue(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// dateLayouts covers the formats county portals are known to emit.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"01/02/2006 15:04",
	time.RFC3339,
}

// canonicalDate reduces date string variants to ISO form so that
// "01/15/2025" and "2025-01-15" hash identically. Unparseable values pass
// through for normal string canonicalization.
func canonicalDate(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return trimmed
}
