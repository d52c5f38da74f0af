package findings

import (
	"strings"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
)

// criticalKeyPatterns match field keys whose value going wrong can sink a
// case: limitation/deadline/filing/injury/death dates, damages and
// settlement amounts.
var criticalKeyPatterns = []string{
	"limitation",
	"deadline",
	"filing_date",
	"injury_date",
	"death",
	"damages",
	"settlement",
}

// highKeyPatterns match field keys that identify parties, policy/claim
// references, cause of action, liability, and diagnosis.
var highKeyPatterns = []string{
	"party",
	"claimant",
	"defendant",
	"plaintiff",
	"role",
	"policy_number",
	"claim_number",
	"cause_of_action",
	"liability",
	"diagnosis",
}

// ClassifyImpact assigns an impact severity to a finding. Rules apply in
// order: critical key patterns, high key patterns, field-level
// requires-human-review, a field-configured confidence floor, then the
// default confidence floors (<0.5 high, <0.7 medium). Everything else is
// medium.
func ClassifyImpact(f model.RawFinding, field *model.TaxonomyField) model.Impact {
	key := strings.ToLower(f.FieldKey)

	for _, p := range criticalKeyPatterns {
		if strings.Contains(key, p) {
			return model.ImpactCritical
		}
	}
	for _, p := range highKeyPatterns {
		if strings.Contains(key, p) {
			return model.ImpactHigh
		}
	}
	if field != nil && field.RequiresHumanReview {
		return model.ImpactHigh
	}
	if field != nil && field.ConfidenceThreshold > 0 && f.Confidence < field.ConfidenceThreshold {
		return model.ImpactHigh
	}
	if f.Confidence < 0.5 {
		return model.ImpactHigh
	}
	if f.Confidence < 0.7 {
		return model.ImpactMedium
	}
	return model.ImpactMedium
}
