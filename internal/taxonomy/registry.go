// Package taxonomy holds the resolved field and reconciliation-rule
// records the pipeline consumes. The taxonomy-configuration UI that
// produces them lives outside this repository.
package taxonomy

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/mountee32/legalcopilot-sub009/internal/model"
)

// Registry is an indexed collection of taxonomy fields and rules, keyed
// by (categoryKey, fieldKey).
type Registry struct {
	Fields []model.TaxonomyField
	Rules  []model.ReconciliationRule

	fieldsByKey map[string]*model.TaxonomyField
	rulesByKey  map[string]*model.ReconciliationRule
}

// NewRegistry builds an indexed registry from resolved records.
func NewRegistry(fields []model.TaxonomyField, rules []model.ReconciliationRule) *Registry {
	r := &Registry{
		Fields:      fields,
		Rules:       rules,
		fieldsByKey: make(map[string]*model.TaxonomyField, len(fields)),
		rulesByKey:  make(map[string]*model.ReconciliationRule, len(rules)),
	}
	for i := range r.Fields {
		f := &r.Fields[i]
		r.fieldsByKey[f.CategoryKey+"|"+f.FieldKey] = f
	}
	for i := range r.Rules {
		rule := &r.Rules[i]
		r.rulesByKey[rule.CategoryKey+"|"+rule.FieldKey] = rule
	}
	return r
}

// Field returns the field definition for (categoryKey, fieldKey), or nil.
func (r *Registry) Field(categoryKey, fieldKey string) *model.TaxonomyField {
	return r.fieldsByKey[categoryKey+"|"+fieldKey]
}

// RuleFor returns the reconciliation rule for (categoryKey, fieldKey),
// or nil when the field is unconfigured (callers fall back to exact
// comparison at the default threshold).
func (r *Registry) RuleFor(categoryKey, fieldKey string) *model.ReconciliationRule {
	return r.rulesByKey[categoryKey+"|"+fieldKey]
}

// file is the on-disk YAML shape for resolved taxonomy records.
type file struct {
	Fields []model.TaxonomyField      `yaml:"fields"`
	Rules  []model.ReconciliationRule `yaml:"rules"`
}

// LoadFile reads resolved taxonomy records from a YAML file.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "taxonomy: read %s", path)
	}
	return Parse(data)
}

// Parse builds a registry from YAML bytes.
func Parse(data []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "taxonomy: parse yaml")
	}
	return NewRegistry(f.Fields, f.Rules), nil
}
