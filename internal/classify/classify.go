// Package classify decides whether an observed listing is new, changed, or
// unchanged relative to its stored record. Classification uses only the
// cheap preview fingerprint; it never requires a detail fetch.
package classify

import "github.com/d28khalil/Bidnology-sub001/internal/model"

// Result is the outcome of classifying one observed preview.
type Result struct {
	Outcome model.Outcome
	// Reactivated is set when a tombstoned listing reappears. The record's
	// history is preserved rather than started anew.
	Reactivated bool
}

// Classify compares an incoming preview hash against the stored record for
// the same identity. A nil stored record means the identity has never been
// seen. Tombstoned records are treated as absent.
func Classify(stored *model.ListingRecord, previewHash string) Result {
	if stored == nil {
		return Result{Outcome: model.OutcomeNew}
	}
	if stored.IsRemoved {
		return Result{Outcome: model.OutcomeNew, Reactivated: true}
	}
	if stored.PreviewHash == "" {
		// Should not occur with deterministic fingerprinting; force a
		// refresh rather than silently skipping.
		return Result{Outcome: model.OutcomeChanged}
	}
	if stored.PreviewHash == previewHash {
		return Result{Outcome: model.OutcomeUnchanged}
	}
	return Result{Outcome: model.OutcomeChanged}
}
