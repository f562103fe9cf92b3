package rules

import (
	"fmt"
	"strings"

	"github.com/pharmds-ddi-server/internal/domain"
)

// File is the serialized form of a single rule, shared by the YAML and TOML
// encodings and by the JSON views served over the API.
type File struct {
	ID                  string             `json:"id" yaml:"id" toml:"id"`
	Name                string             `json:"name" yaml:"name" toml:"name"`
	Domain              string             `json:"domain" yaml:"domain" toml:"domain"`
	Severity            string             `json:"severity" yaml:"severity" toml:"severity"`
	RuleClass           string             `json:"rule_class" yaml:"rule_class" toml:"rule_class"`
	Tags                []string           `json:"tags,omitempty" yaml:"tags,omitempty" toml:"tags,omitempty"`
	Exposure            string             `json:"exposure,omitempty" yaml:"exposure,omitempty" toml:"exposure,omitempty"`
	Enzyme              *EnzymeBlock       `json:"enzyme,omitempty" yaml:"enzyme,omitempty" toml:"enzyme,omitempty"`
	Transporter         *TransporterBlock  `json:"transporter,omitempty" yaml:"transporter,omitempty" toml:"transporter,omitempty"`
	PDOverlap           *PDOverlapBlock    `json:"pd_overlap,omitempty" yaml:"pd_overlap,omitempty" toml:"pd_overlap,omitempty"`
	Guards              *GuardsBlock       `json:"guards,omitempty" yaml:"guards,omitempty" toml:"guards,omitempty"`
	ExplanationTemplate string             `json:"explanation_template" yaml:"explanation_template" toml:"explanation_template"`
	Rationale           []string           `json:"rationale,omitempty" yaml:"rationale,omitempty" toml:"rationale,omitempty"`
	Actions             []string           `json:"actions,omitempty" yaml:"actions,omitempty" toml:"actions,omitempty"`
	References          []domain.Reference `json:"references,omitempty" yaml:"references,omitempty" toml:"references,omitempty"`
}

// EnzymeBlock is the enzyme mechanism of a rule file.
type EnzymeBlock struct {
	ID          string   `json:"id" yaml:"id" toml:"id"`
	ARole       string   `json:"a_role" yaml:"a_role" toml:"a_role"`
	BRole       string   `json:"b_role" yaml:"b_role" toml:"b_role"`
	BStrength   string   `json:"b_strength,omitempty" yaml:"b_strength,omitempty" toml:"b_strength,omitempty"`
	BStrengthIn []string `json:"b_strength_in,omitempty" yaml:"b_strength_in,omitempty" toml:"b_strength_in,omitempty"`
}

// TransporterBlock is the transporter mechanism of a rule file.
type TransporterBlock struct {
	ID          string   `json:"id,omitempty" yaml:"id,omitempty" toml:"id,omitempty"`
	Family      string   `json:"family,omitempty" yaml:"family,omitempty" toml:"family,omitempty"`
	ARole       string   `json:"a_role" yaml:"a_role" toml:"a_role"`
	BRole       string   `json:"b_role" yaml:"b_role" toml:"b_role"`
	BStrength   string   `json:"b_strength,omitempty" yaml:"b_strength,omitempty" toml:"b_strength,omitempty"`
	BStrengthIn []string `json:"b_strength_in,omitempty" yaml:"b_strength_in,omitempty" toml:"b_strength_in,omitempty"`
}

// PDOverlapBlock is the PD overlap mechanism of a rule file.
type PDOverlapBlock struct {
	EffectID     string `json:"effect_id" yaml:"effect_id" toml:"effect_id"`
	MinMagnitude string `json:"min_magnitude,omitempty" yaml:"min_magnitude,omitempty" toml:"min_magnitude,omitempty"`
}

// GuardsBlock holds optional affected-drug conditions.
type GuardsBlock struct {
	ATherapeuticIndex string `json:"a_ti,omitempty" yaml:"a_ti,omitempty" toml:"a_ti,omitempty"`
	AProdrug          *bool  `json:"a_prodrug,omitempty" yaml:"a_prodrug,omitempty" toml:"a_prodrug,omitempty"`
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func strengthRequirement(exact string, anyOf []string) domain.StrengthRequirement {
	req := domain.StrengthRequirement{Exact: domain.Strength(lower(exact))}
	for _, s := range anyOf {
		req.AnyOf = append(req.AnyOf, domain.Strength(lower(s)))
	}
	return req
}

// Rule converts the file into a domain rule. Enumerations are lowercased and
// transporter and effect ids normalized; the result still needs Validate.
// Declaring zero or several mechanism blocks is reported here, since the
// domain rule can only hold one.
func (f *File) Rule() (*domain.Rule, error) {
	r := &domain.Rule{
		ID:                  strings.TrimSpace(f.ID),
		Name:                strings.TrimSpace(f.Name),
		Domain:              domain.Domain(lower(f.Domain)),
		Severity:            domain.Severity(lower(f.Severity)),
		Class:               domain.RuleClass(lower(f.RuleClass)),
		Tags:                f.Tags,
		Exposure:            domain.Exposure(lower(f.Exposure)),
		ExplanationTemplate: f.ExplanationTemplate,
		Rationale:           f.Rationale,
		Actions:             f.Actions,
		References:          f.References,
	}

	count := 0
	if b := f.Enzyme; b != nil {
		count++
		r.Mechanism = domain.EnzymeMechanism{
			EnzymeID: strings.TrimSpace(b.ID),
			ARole:    domain.Role(lower(b.ARole)),
			BRole:    domain.Role(lower(b.BRole)),
			Strength: strengthRequirement(b.BStrength, b.BStrengthIn),
		}
	}
	if b := f.Transporter; b != nil {
		count++
		id := ""
		if b.ID != "" {
			id = domain.NormalizeTransporterID(b.ID)
		}
		r.Mechanism = domain.TransporterMechanism{
			TransporterID: id,
			Family:        strings.ToUpper(strings.TrimSpace(b.Family)),
			ARole:         domain.Role(lower(b.ARole)),
			BRole:         domain.Role(lower(b.BRole)),
			Strength:      strengthRequirement(b.BStrength, b.BStrengthIn),
		}
	}
	if b := f.PDOverlap; b != nil {
		count++
		r.Mechanism = domain.PDOverlapMechanism{
			EffectID:     domain.NormalizeEffectID(b.EffectID),
			MinMagnitude: domain.Magnitude(lower(b.MinMagnitude)),
		}
	}
	if count > 1 {
		return nil, fmt.Errorf("rule %s: %w", r.ID, domain.NewValidationError(
			"mechanism", "exactly one of enzyme, transporter or pd_overlap is allowed", count))
	}

	if g := f.Guards; g != nil {
		r.Guards = domain.RuleGuards{
			ATherapeuticIndex: domain.TherapeuticIndex(lower(g.ATherapeuticIndex)),
			AProdrug:          g.AProdrug,
		}
	}
	return r, nil
}

// FileFromRule is the inverse of File.Rule.
func FileFromRule(r *domain.Rule) *File {
	f := &File{
		ID:                  r.ID,
		Name:                r.Name,
		Domain:              string(r.Domain),
		Severity:            string(r.Severity),
		RuleClass:           string(r.Class),
		Tags:                r.Tags,
		Exposure:            string(r.Exposure),
		ExplanationTemplate: r.ExplanationTemplate,
		Rationale:           r.Rationale,
		Actions:             r.Actions,
		References:          r.References,
	}

	switch m := r.Mechanism.(type) {
	case domain.EnzymeMechanism:
		f.Enzyme = &EnzymeBlock{
			ID:          m.EnzymeID,
			ARole:       string(m.ARole),
			BRole:       string(m.BRole),
			BStrength:   string(m.Strength.Exact),
			BStrengthIn: strengthStrings(m.Strength.AnyOf),
		}
	case domain.TransporterMechanism:
		f.Transporter = &TransporterBlock{
			ID:          m.TransporterID,
			Family:      m.Family,
			ARole:       string(m.ARole),
			BRole:       string(m.BRole),
			BStrength:   string(m.Strength.Exact),
			BStrengthIn: strengthStrings(m.Strength.AnyOf),
		}
	case domain.PDOverlapMechanism:
		f.PDOverlap = &PDOverlapBlock{
			EffectID:     m.EffectID,
			MinMagnitude: string(m.MinMagnitude),
		}
	}

	if r.Guards != (domain.RuleGuards{}) {
		f.Guards = &GuardsBlock{
			ATherapeuticIndex: string(r.Guards.ATherapeuticIndex),
			AProdrug:          r.Guards.AProdrug,
		}
	}
	return f
}

func strengthStrings(in []domain.Strength) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
