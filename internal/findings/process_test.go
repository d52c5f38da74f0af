package findings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
)

func TestNormalizeValue(t *testing.T) {
	assert.Equal(t, "john smith", NormalizeValue("John Smith."))
	assert.Equal(t, "john smith", NormalizeValue("  john   SMITH  "))
	assert.Equal(t, "john smith", NormalizeValue(`"John, Smith!"`))
	assert.Equal(t, "", NormalizeValue("  .,;  "))
	assert.Equal(t, "12 march 2024", NormalizeValue("12 March 2024"))
	// Case folding, not lowercasing: eszett folds to ss.
	assert.Equal(t, "strasse", NormalizeValue("Straße"))
	assert.Equal(t, NormalizeValue("STRASSE"), NormalizeValue("straße"))
}

func TestDeduplicate_KeepsHighestConfidence(t *testing.T) {
	raw := []model.RawFinding{
		{CategoryKey: "parties", FieldKey: "claimant_name", Value: "John Smith", Confidence: 0.7},
		{CategoryKey: "parties", FieldKey: "claimant_name", Value: "john smith.", Confidence: 0.9},
		{CategoryKey: "parties", FieldKey: "claimant_name", Value: "John  Smith", Confidence: 0.8},
	}

	out := Deduplicate(raw)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.9, out[0].Confidence, 0.001)
	assert.Equal(t, "john smith.", out[0].Value)
}

func TestDeduplicate_FirstSeenWinsTies(t *testing.T) {
	raw := []model.RawFinding{
		{CategoryKey: "dates", FieldKey: "injury_date", Value: "2024-03-12", Confidence: 0.8},
		{CategoryKey: "dates", FieldKey: "injury_date", Value: "2024-03-12", Confidence: 0.8, SourceQuote: "later"},
	}

	out := Deduplicate(raw)
	require.Len(t, out, 1)
	assert.Empty(t, out[0].SourceQuote)
}

func TestDeduplicate_DistinctIdentitiesKept(t *testing.T) {
	raw := []model.RawFinding{
		{CategoryKey: "parties", FieldKey: "claimant_name", Value: "John Smith", Confidence: 0.9},
		{CategoryKey: "parties", FieldKey: "defendant_name", Value: "John Smith", Confidence: 0.9},
		{CategoryKey: "parties", FieldKey: "claimant_name", Value: "Jane Doe", Confidence: 0.9},
	}

	out := Deduplicate(raw)
	assert.Len(t, out, 3)
}

func TestDeduplicate_Idempotent(t *testing.T) {
	raw := []model.RawFinding{
		{CategoryKey: "a", FieldKey: "b", Value: "v1", Confidence: 0.5},
		{CategoryKey: "a", FieldKey: "b", Value: "V1.", Confidence: 0.6},
		{CategoryKey: "a", FieldKey: "c", Value: "v2", Confidence: 0.4},
	}
	once := Deduplicate(raw)
	twice := Deduplicate(once)
	assert.Equal(t, once, twice)
}

func TestClassifyImpact_CriticalKeys(t *testing.T) {
	for _, key := range []string{"limitation_date", "filing_date", "settlement_amount", "general_damages"} {
		f := model.RawFinding{FieldKey: key, Confidence: 0.95}
		assert.Equal(t, model.ImpactCritical, ClassifyImpact(f, nil), key)
	}
}

func TestClassifyImpact_HighKeys(t *testing.T) {
	for _, key := range []string{"claimant_name", "defendant_name", "policy_number", "diagnosis_primary"} {
		f := model.RawFinding{FieldKey: key, Confidence: 0.95}
		assert.Equal(t, model.ImpactHigh, ClassifyImpact(f, nil), key)
	}
}

func TestClassifyImpact_CriticalBeatsHigh(t *testing.T) {
	// Key matches both pattern lists; critical wins.
	f := model.RawFinding{FieldKey: "claimant_injury_date", Confidence: 0.95}
	assert.Equal(t, model.ImpactCritical, ClassifyImpact(f, nil))
}

func TestClassifyImpact_ReviewFieldIsHigh(t *testing.T) {
	f := model.RawFinding{FieldKey: "incident_location", Confidence: 0.95}
	field := &model.TaxonomyField{RequiresHumanReview: true}
	assert.Equal(t, model.ImpactHigh, ClassifyImpact(f, field))
}

func TestClassifyImpact_FieldConfidenceFloor(t *testing.T) {
	field := &model.TaxonomyField{ConfidenceThreshold: 0.9}

	below := model.RawFinding{FieldKey: "incident_location", Confidence: 0.85}
	assert.Equal(t, model.ImpactHigh, ClassifyImpact(below, field))

	at := model.RawFinding{FieldKey: "incident_location", Confidence: 0.9}
	assert.Equal(t, model.ImpactMedium, ClassifyImpact(at, field))
}

func TestClassifyImpact_ConfidenceFloors(t *testing.T) {
	low := model.RawFinding{FieldKey: "incident_location", Confidence: 0.4}
	assert.Equal(t, model.ImpactHigh, ClassifyImpact(low, nil))

	mid := model.RawFinding{FieldKey: "incident_location", Confidence: 0.65}
	assert.Equal(t, model.ImpactMedium, ClassifyImpact(mid, nil))

	high := model.RawFinding{FieldKey: "incident_location", Confidence: 0.95}
	assert.Equal(t, model.ImpactMedium, ClassifyImpact(high, nil))
}

func TestProcess_Empty(t *testing.T) {
	assert.Nil(t, Process(nil, nil))
}

func TestProcess_LabelsAndFlagsDuplicates(t *testing.T) {
	raw := []model.RawFinding{
		{CategoryKey: "parties", FieldKey: "claimant_name", Value: "John Smith", Confidence: 0.7},
		{CategoryKey: "parties", FieldKey: "claimant_name", Value: "john smith", Confidence: 0.9},
		{CategoryKey: "dates", FieldKey: "injury_date", Value: "2024-03-12", Confidence: 0.85},
	}

	lookup := func(categoryKey, fieldKey string) *model.TaxonomyField {
		if fieldKey == "claimant_name" {
			return &model.TaxonomyField{Label: "Claimant"}
		}
		return nil
	}

	out := Process(raw, lookup)
	require.Len(t, out, 3)

	// The lower-confidence duplicate loses the dedup.
	assert.True(t, out[0].IsDuplicate)
	assert.False(t, out[1].IsDuplicate)
	assert.False(t, out[2].IsDuplicate)

	assert.Equal(t, "Claimant", out[0].Label)
	assert.Equal(t, "Claimant", out[1].Label)
	// No taxonomy entry falls back to the field key.
	assert.Equal(t, "injury_date", out[2].Label)

	assert.Equal(t, model.ImpactHigh, out[1].Impact)
	assert.Equal(t, model.ImpactCritical, out[2].Impact)
}
