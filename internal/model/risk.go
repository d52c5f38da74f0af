package model

import "time"

// RiskFactor is one itemized contribution to a matter's risk score.
type RiskFactor struct {
	Key          string `json:"key"`
	Label        string `json:"label"`
	Contribution int    `json:"contribution"`
	Detail       string `json:"detail,omitempty"`
}

// RiskResult is the aggregate risk score for a matter, 0-100, with the
// factors that produced it. Recomputed wholesale from all persisted
// findings; never updated incrementally.
type RiskResult struct {
	Score      int          `json:"score"`
	Factors    []RiskFactor `json:"factors,omitempty"`
	ComputedAt time.Time    `json:"computed_at,omitempty"`
}
