package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase", "123 MAIN ST", "123 main st"},
		{"collapse whitespace", "123   Main\t St", "123 main st"},
		{"strip punctuation", "123 Main St., Apt. #4", "123 main st apt 4"},
		{"leading and trailing", "  123 Main St.  ", "123 main st"},
		{"hyphenated", "123-A Main St", "123 a main st"},
		{"unicode fold", "123 MaÏn St", "123 maïn st"},
		{"empty", "", ""},
		{"punctuation only", "...", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAddress(tt.input))
		})
	}
}

func TestNewIdentity(t *testing.T) {
	a := NewIdentity(7, "123  Main St.")
	b := NewIdentity(7, "123 MAIN ST")
	assert.Equal(t, a, b)

	c := NewIdentity(8, "123 Main St")
	assert.NotEqual(t, a, c)
}

func TestSourceTriggerName(t *testing.T) {
	s := Source{Platform: "RealForeclose", Name: "Essex"}
	assert.Equal(t, "RealForeclose | Essex", s.TriggerName())
}

func TestAppendStatusCap(t *testing.T) {
	var rec ListingRecord
	for i := 0; i < MaxStatusHistory+10; i++ {
		rec.AppendStatus(StatusEntry{Status: "scheduled", Outcome: OutcomeChanged, ObservedAt: time.Unix(int64(i), 0)})
	}
	assert.Len(t, rec.StatusHistory, MaxStatusHistory)
	// Oldest entries were evicted.
	assert.Equal(t, time.Unix(10, 0), rec.StatusHistory[0].ObservedAt)
}

func TestApplyDetail(t *testing.T) {
	rec := ListingRecord{Status: "scheduled"}
	rec.ApplyDetail(&DetailPayload{
		Address:    "123 Main St",
		Status:     "postponed",
		OpeningBid: "$100,000",
		Extra:      map[string]string{"sheriff_number": "24-001234"},
	})
	assert.Equal(t, "postponed", rec.Status)
	assert.Equal(t, "$100,000", rec.OpeningBid)
	assert.Equal(t, "24-001234", rec.Extra["sheriff_number"])
}

func TestEnrichmentDedupKey(t *testing.T) {
	req := EnrichmentRequest{
		Identity:   ListingIdentity{SourceID: 3, NormalizedAddress: "123 main st"},
		DetailHash: "abc",
	}
	assert.Equal(t, "3|123 main st|abc", req.DedupKey())
}
