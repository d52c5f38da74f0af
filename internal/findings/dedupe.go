package findings

import "github.com/mountee32/legalcopilot-sub009/internal/model"

// dedupeIndex maps each identity key to the index of the raw finding
// retained for it: the highest-confidence occurrence, first-seen winning
// ties. Overlapping extraction windows report the same fact more than
// once, and chunk results arrive in no guaranteed order, so retention is
// confidence-based rather than first-write-wins.
func dedupeIndex(raw []model.RawFinding) map[string]int {
	retained := make(map[string]int, len(raw))
	for i, f := range raw {
		key := identityKey(f.CategoryKey, f.FieldKey, NormalizeValue(f.Value))
		prev, ok := retained[key]
		if !ok || f.Confidence > raw[prev].Confidence {
			retained[key] = i
		}
	}
	return retained
}

// Deduplicate returns the retained finding for each distinct
// (categoryKey, fieldKey, normalizedValue) identity, in first-seen key
// order. Idempotent: deduplicating the result again is a no-op.
func Deduplicate(raw []model.RawFinding) []model.RawFinding {
	retained := dedupeIndex(raw)

	seen := make(map[string]bool, len(retained))
	out := make([]model.RawFinding, 0, len(retained))
	for _, f := range raw {
		key := identityKey(f.CategoryKey, f.FieldKey, NormalizeValue(f.Value))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, raw[retained[key]])
	}
	return out
}
