package model

// ConflictMode selects the comparison used when reconciling a newly
// extracted value against the matter's existing value. Closed set;
// unconfigured fields default to exact.
type ConflictMode string

const (
	ModeExact       ConflictMode = "exact"
	ModeFuzzyText   ConflictMode = "fuzzy_text"
	ModeFuzzyNumber ConflictMode = "fuzzy_number"
	ModeDateRange   ConflictMode = "date_range"
	ModeSemantic    ConflictMode = "semantic"
)

// Valid reports whether m is a known conflict-detection mode.
func (m ConflictMode) Valid() bool {
	switch m {
	case ModeExact, ModeFuzzyText, ModeFuzzyNumber, ModeDateRange, ModeSemantic:
		return true
	}
	return false
}

// TaxonomyField is a resolved field definition from the firm's taxonomy
// configuration. Only resolved records are consumed here; the
// configuration UI lives elsewhere.
type TaxonomyField struct {
	CategoryKey         string  `json:"category_key" yaml:"category_key"`
	FieldKey            string  `json:"field_key" yaml:"field_key"`
	Label               string  `json:"label" yaml:"label"`
	DataType            string  `json:"data_type" yaml:"data_type"`
	RequiresHumanReview bool    `json:"requires_human_review" yaml:"requires_human_review"`
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
}

// ReconciliationRule configures how one taxonomy field reconciles against
// the matter's existing case data.
type ReconciliationRule struct {
	CategoryKey         string       `json:"category_key" yaml:"category_key"`
	FieldKey            string       `json:"field_key" yaml:"field_key"`
	CaseFieldMapping    string       `json:"case_field_mapping" yaml:"case_field_mapping"`
	Mode                ConflictMode `json:"conflict_detection_mode" yaml:"conflict_detection_mode"`
	AutoApplyThreshold  float64      `json:"auto_apply_threshold" yaml:"auto_apply_threshold"`
	RequiresHumanReview bool         `json:"requires_human_review" yaml:"requires_human_review"`
}
