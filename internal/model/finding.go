package model

import "time"

// Impact classifies how consequential a finding is for the matter.
type Impact string

const (
	ImpactCritical Impact = "critical"
	ImpactHigh     Impact = "high"
	ImpactMedium   Impact = "medium"
	ImpactLow      Impact = "low"
	ImpactInfo     Impact = "info"
)

// FindingStatus is the reconciliation outcome of a persisted finding.
// The pipeline only ever writes pending, auto_applied, or conflict; the
// remaining statuses are set later by the human-review path.
type FindingStatus string

const (
	FindingPending     FindingStatus = "pending"
	FindingAccepted    FindingStatus = "accepted"
	FindingRejected    FindingStatus = "rejected"
	FindingRevised     FindingStatus = "revised"
	FindingAutoApplied FindingStatus = "auto_applied"
	FindingConflict    FindingStatus = "conflict"
)

// RawFinding is a single labeled tuple returned by the extraction
// capability for one text chunk. Ephemeral, never persisted as-is.
type RawFinding struct {
	CategoryKey string  `json:"category_key"`
	FieldKey    string  `json:"field_key"`
	Value       string  `json:"value"`
	SourceQuote string  `json:"source_quote,omitempty"`
	Confidence  float64 `json:"confidence"`
}

// ProcessedFinding is a raw finding after dedup and impact classification.
// Duplicates are retained for audit but flagged so persistence skips them.
type ProcessedFinding struct {
	RawFinding
	Label       string `json:"label"`
	Impact      Impact `json:"impact"`
	IsDuplicate bool   `json:"is_duplicate"`
}

// PersistedFinding is a finding written by the reconcile stage. The
// pipeline appends these and never mutates them afterwards; resolution is
// an external write path.
type PersistedFinding struct {
	ID              string        `json:"id"`
	FirmID          string        `json:"firm_id"`
	MatterID        string        `json:"matter_id"`
	CategoryKey     string        `json:"category_key"`
	FieldKey        string        `json:"field_key"`
	Value           string        `json:"value"`
	NormalizedValue string        `json:"normalized_value"`
	Confidence      float64       `json:"confidence"`
	Impact          Impact        `json:"impact"`
	Status          FindingStatus `json:"status"`
	SourceQuote     string        `json:"source_quote,omitempty"`
	ResolvedBy      string        `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}
