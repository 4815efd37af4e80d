package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/d28khalil/Bidnology-sub001/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		stored      *model.ListingRecord
		previewHash string
		want        model.Outcome
		reactivated bool
	}{
		{
			name:        "never seen is new",
			stored:      nil,
			previewHash: "h1",
			want:        model.OutcomeNew,
		},
		{
			name:        "same hash is unchanged",
			stored:      &model.ListingRecord{PreviewHash: "h1"},
			previewHash: "h1",
			want:        model.OutcomeUnchanged,
		},
		{
			name:        "different hash is changed",
			stored:      &model.ListingRecord{PreviewHash: "h1"},
			previewHash: "h2",
			want:        model.OutcomeChanged,
		},
		{
			name:        "tombstoned reappearance is new",
			stored:      &model.ListingRecord{PreviewHash: "h1", IsRemoved: true},
			previewHash: "h1",
			want:        model.OutcomeNew,
			reactivated: true,
		},
		{
			name:        "missing stored hash forces refresh",
			stored:      &model.ListingRecord{},
			previewHash: "h1",
			want:        model.OutcomeChanged,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.stored, tt.previewHash)
			assert.Equal(t, tt.want, got.Outcome)
			assert.Equal(t, tt.reactivated, got.Reactivated)
		})
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	stored := &model.ListingRecord{PreviewHash: "h1"}
	first := Classify(stored, "h1")
	second := Classify(stored, "h1")
	assert.Equal(t, first, second)
	assert.Equal(t, model.OutcomeUnchanged, second.Outcome)
}
