// Package risk aggregates a matter's persisted findings into a single
// 0-100 risk score with itemized contributing factors.
package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
)

// Per-factor weights and caps. Each factor contributes independently up
// to its cap; the summed score is clamped to [0, 100].
const (
	criticalPendingWeight = 15
	criticalPendingCap    = 30

	conflictWeight = 12
	conflictCap    = 25

	highImpactRatioCap = 20

	lowConfidenceMajor     = 15 // avg confidence < 0.75
	lowConfidenceMinor     = 8  // avg confidence < 0.85
	lowConfidenceFloor     = 0.75
	lowConfidenceSoftFloor = 0.85

	pendingWeight = 2
	pendingCap    = 10

	maxScore = 100
)

// Calculate recomputes the matter's risk score wholesale from all of its
// persisted findings. An empty set scores 0 with no factors;
// zero-contribution factors are omitted.
func Calculate(fs []model.PersistedFinding) model.RiskResult {
	result := model.RiskResult{ComputedAt: time.Now().UTC()}
	if len(fs) == 0 {
		return result
	}

	var (
		criticalPending int
		conflicts       int
		highImpact      int
		pending         int
		confidenceSum   float64
	)
	for _, f := range fs {
		if f.Impact == model.ImpactCritical &&
			(f.Status == model.FindingPending || f.Status == model.FindingConflict) {
			criticalPending++
		}
		if f.Status == model.FindingConflict {
			conflicts++
		}
		if f.Impact == model.ImpactHigh || f.Impact == model.ImpactCritical {
			highImpact++
		}
		if f.Status == model.FindingPending {
			pending++
		}
		confidenceSum += f.Confidence
	}

	addFactor := func(key, label string, contribution int, detail string) {
		if contribution <= 0 {
			return
		}
		result.Factors = append(result.Factors, model.RiskFactor{
			Key:          key,
			Label:        label,
			Contribution: contribution,
			Detail:       detail,
		})
		result.Score += contribution
	}

	addFactor("critical_pending", "Critical findings awaiting review",
		capped(criticalPending*criticalPendingWeight, criticalPendingCap),
		fmt.Sprintf("%d critical findings pending or in conflict", criticalPending))

	addFactor("conflicts", "Conflicting findings",
		capped(conflicts*conflictWeight, conflictCap),
		fmt.Sprintf("%d findings conflict with recorded case data", conflicts))

	ratio := float64(highImpact) / float64(len(fs))
	addFactor("high_impact_ratio", "High-impact finding ratio",
		int(math.Round(ratio*highImpactRatioCap)),
		fmt.Sprintf("%d of %d findings are high or critical impact", highImpact, len(fs)))

	avgConfidence := confidenceSum / float64(len(fs))
	lowConf := 0
	switch {
	case avgConfidence < lowConfidenceFloor:
		lowConf = lowConfidenceMajor
	case avgConfidence < lowConfidenceSoftFloor:
		lowConf = lowConfidenceMinor
	}
	addFactor("low_confidence", "Low extraction confidence",
		lowConf,
		fmt.Sprintf("average confidence %.2f", avgConfidence))

	addFactor("unresolved_pending", "Unresolved pending findings",
		capped(pending*pendingWeight, pendingCap),
		fmt.Sprintf("%d findings awaiting resolution", pending))

	if result.Score > maxScore {
		result.Score = maxScore
	}
	return result
}

func capped(v, limit int) int {
	if v > limit {
		return limit
	}
	return v
}
