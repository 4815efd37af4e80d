package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
)

func TestPreviewIgnoresIncidentalFormatting(t *testing.T) {
	a := model.ListingPreview{
		Address:    "123 Main St",
		SaleDate:   "2025-01-15",
		Status:     "Scheduled",
		CaseNumber: "F-2024-001",
	}
	b := model.ListingPreview{
		Address:    "  123   Main St ",
		SaleDate:   "01/15/2025",
		Status:     "scheduled",
		CaseNumber: "f-2024-001",
	}
	assert.Equal(t, Preview(a), Preview(b))
}

func TestPreviewDetectsFieldChange(t *testing.T) {
	a := model.ListingPreview{Address: "123 Main St", SaleDate: "2025-01-15", Status: "scheduled"}
	b := a
	b.Status = "postponed"
	assert.NotEqual(t, Preview(a), Preview(b))
}

func TestPreviewMissingFieldIsStable(t *testing.T) {
	// A missing field hashes as a sentinel, not as an error, so two
	// partial previews with the same present fields agree.
	a := model.ListingPreview{Address: "123 Main St"}
	b := model.ListingPreview{Address: "123 Main St", SaleDate: "", Status: ""}
	assert.Equal(t, Preview(a), Preview(b))

	// But a missing field is distinguishable from any real value.
	c := model.ListingPreview{Address: "123 Main St", Status: "scheduled"}
	assert.NotEqual(t, Preview(a), Preview(c))
}

func TestDetailDeterministicAcrossExtraOrder(t *testing.T) {
	d1 := &model.DetailPayload{
		Address: "123 Main St",
		Extra:   map[string]string{"b": "2", "a": "1", "c": "3"},
	}
	d2 := &model.DetailPayload{
		Address: "123 Main St",
		Extra:   map[string]string{"c": "3", "a": "1", "b": "2"},
	}
	assert.Equal(t, Detail(d1), Detail(d2))
}

func TestDetailDiffersFromPreviewSpace(t *testing.T) {
	p := model.ListingPreview{Address: "123 Main St", Status: "scheduled"}
	d := &model.DetailPayload{Address: "123 Main St", Status: "scheduled"}
	assert.NotEqual(t, Preview(p), Detail(d))
}

func TestCanonicalDate(t *testing.T) {
	tests := []struct{ in, want string }{
		{"2025-01-15", "2025-01-15"},
		{"01/15/2025", "2025-01-15"},
		{"1/15/2025", "2025-01-15"},
		{"January 15, 2025", "2025-01-15"},
		{" 2025-01-15 ", "2025-01-15"},
		{"TBD", "TBD"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, canonicalDate(tt.in), "input %q", tt.in)
	}
}
