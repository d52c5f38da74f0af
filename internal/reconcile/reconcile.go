// Package reconcile decides how a freshly extracted finding relates to
// the matter's existing recorded value for that field.
package reconcile

import (
	"strings"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
)

// DefaultAutoApplyThreshold is the confidence floor for auto-applying a
// value when the field has no reconciliation rule.
const DefaultAutoApplyThreshold = 0.85

// Decide applies the reconciliation decision table:
//
//  1. no existing value, confidence >= threshold  -> auto_applied
//  2. no existing value, confidence <  threshold  -> pending
//  3. existing value matches under the rule's mode -> auto_applied
//     (a confirmation; the existing value is never overwritten)
//  4. existing value differs                       -> conflict
//  5. rule requires human review -> pending, overriding all of the above
//
// A nil rule means exact comparison at the default threshold. existing is
// nil when the matter has no recorded value for the field.
func Decide(newValue string, existing *string, confidence float64, rule *model.ReconciliationRule) model.FindingStatus {
	mode := model.ModeExact
	threshold := DefaultAutoApplyThreshold
	requiresReview := false

	if rule != nil {
		if rule.Mode.Valid() {
			mode = rule.Mode
		}
		if rule.AutoApplyThreshold > 0 {
			threshold = rule.AutoApplyThreshold
		}
		requiresReview = rule.RequiresHumanReview
	}

	if requiresReview {
		return model.FindingPending
	}

	if existing == nil || strings.TrimSpace(*existing) == "" {
		if confidence >= threshold {
			return model.FindingAutoApplied
		}
		return model.FindingPending
	}

	if ValuesMatch(newValue, *existing, mode) {
		return model.FindingAutoApplied
	}
	return model.FindingConflict
}
