package domain

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// MechanismKind identifies the variant held by a rule's mechanism.
type MechanismKind string

const (
	MechanismEnzyme      MechanismKind = "enzyme"
	MechanismTransporter MechanismKind = "transporter"
	MechanismPDOverlap   MechanismKind = "pd_overlap"
)

// Mechanism is the predicate a rule matches against knowledge base facts.
// It is a closed set: EnzymeMechanism, TransporterMechanism and
// PDOverlapMechanism are the only implementations.
type Mechanism interface {
	Kind() MechanismKind
	validate() ValidationErrors
	sealed()
}

// StrengthRequirement constrains the perpetrator's strength. An empty
// requirement accepts any strength, including none.
type StrengthRequirement struct {
	Exact Strength   `json:"b_strength,omitempty"`
	AnyOf []Strength `json:"b_strength_in,omitempty"`
}

// Accepts reports whether a role with strength s satisfies the requirement.
func (r StrengthRequirement) Accepts(s Strength) bool {
	if len(r.AnyOf) > 0 {
		return slices.Contains(r.AnyOf, s)
	}
	if r.Exact != "" {
		return s == r.Exact
	}
	return true
}

// IsZero reports whether no strength is required.
func (r StrengthRequirement) IsZero() bool {
	return r.Exact == "" && len(r.AnyOf) == 0
}

// String renders the requirement for explanations, e.g. "strong" or
// "moderate or strong".
func (r StrengthRequirement) String() string {
	if len(r.AnyOf) > 0 {
		parts := make([]string, len(r.AnyOf))
		for i, s := range r.AnyOf {
			parts[i] = string(s)
		}
		return strings.Join(parts, " or ")
	}
	return string(r.Exact)
}

func (r StrengthRequirement) validate() ValidationErrors {
	var errs ValidationErrors
	if r.Exact != "" && len(r.AnyOf) > 0 {
		errs.Add("b_strength", "b_strength and b_strength_in are mutually exclusive", nil)
	}
	if r.Exact != "" && !r.Exact.IsValid() {
		errs.Add("b_strength", "invalid strength", r.Exact)
	}
	for _, s := range r.AnyOf {
		if !s.IsValid() {
			errs.Add("b_strength_in", "invalid strength", s)
		}
	}
	return errs
}

// EnzymeMechanism matches A as a substrate and B as a perpetrator of the same
// enzyme.
type EnzymeMechanism struct {
	EnzymeID string              `json:"id"`
	ARole    Role                `json:"a_role"`
	BRole    Role                `json:"b_role"`
	Strength StrengthRequirement `json:"strength"`
}

func (EnzymeMechanism) Kind() MechanismKind { return MechanismEnzyme }
func (EnzymeMechanism) sealed()             {}

func (m EnzymeMechanism) validate() ValidationErrors {
	var errs ValidationErrors
	if m.EnzymeID == "" {
		errs.Add("enzyme.id", "enzyme id is required", nil)
	}
	errs = append(errs, validateRoles(m.ARole, m.BRole).Prefix("enzyme")...)
	errs = append(errs, m.Strength.validate().Prefix("enzyme")...)
	return errs
}

// TransporterMechanism matches A as a substrate and B as a perpetrator of the
// same transporter. Either TransporterID or Family is set; a family matches
// every transporter of that family.
type TransporterMechanism struct {
	TransporterID string              `json:"id,omitempty"`
	Family        string              `json:"family,omitempty"`
	ARole         Role                `json:"a_role"`
	BRole         Role                `json:"b_role"`
	Strength      StrengthRequirement `json:"strength"`
}

func (TransporterMechanism) Kind() MechanismKind { return MechanismTransporter }
func (TransporterMechanism) sealed()             {}

func (m TransporterMechanism) validate() ValidationErrors {
	var errs ValidationErrors
	switch {
	case m.TransporterID == "" && m.Family == "":
		errs.Add("transporter", "one of id or family is required", nil)
	case m.TransporterID != "" && m.Family != "":
		errs.Add("transporter", "id and family are mutually exclusive", nil)
	}
	errs = append(errs, validateRoles(m.ARole, m.BRole).Prefix("transporter")...)
	errs = append(errs, m.Strength.validate().Prefix("transporter")...)
	return errs
}

// PDOverlapMechanism matches two drugs that both increase the same PD effect.
// When MinMagnitude is set both drugs must reach it.
type PDOverlapMechanism struct {
	EffectID     string    `json:"effect_id"`
	MinMagnitude Magnitude `json:"min_magnitude,omitempty"`
}

func (PDOverlapMechanism) Kind() MechanismKind { return MechanismPDOverlap }
func (PDOverlapMechanism) sealed()             {}

func (m PDOverlapMechanism) validate() ValidationErrors {
	var errs ValidationErrors
	if m.EffectID == "" {
		errs.Add("pd_overlap.effect_id", "effect id is required", nil)
	}
	if m.MinMagnitude != "" && !m.MinMagnitude.IsValid() {
		errs.Add("pd_overlap.min_magnitude", "invalid magnitude", m.MinMagnitude)
	}
	return errs
}

func validateRoles(a, b Role) ValidationErrors {
	var errs ValidationErrors
	if a != RoleSubstrate {
		errs.Add("a_role", "affected drug role must be substrate", a)
	}
	if !b.IsPerpetrator() {
		errs.Add("b_role", "interacting drug role must be inhibitor or inducer", b)
	}
	return errs
}

// RuleGuards are optional conditions on the affected drug.
type RuleGuards struct {
	ATherapeuticIndex TherapeuticIndex `json:"a_ti,omitempty"`
	AProdrug          *bool            `json:"a_prodrug,omitempty"`
}

// Reference is a citation attached to a rule.
type Reference struct {
	Source   string `json:"source" yaml:"source" toml:"source"`
	Citation string `json:"citation" yaml:"citation" toml:"citation"`
	URL      string `json:"url,omitempty" yaml:"url" toml:"url"`
}

func (r Reference) String() string {
	s := r.Source
	if r.Citation != "" {
		if s != "" {
			s += ": "
		}
		s += r.Citation
	}
	if r.URL != "" {
		s += " (" + r.URL + ")"
	}
	return s
}

// Placeholders that may appear in explanation templates and rationale lines.
var Placeholders = []string{"A_name", "B_name", "enzyme_id", "transporter_id", "effect_id"}

var (
	ruleIDPattern      = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)
	placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)
)

// TemplatePlaceholders returns the placeholder names used in text.
func TemplatePlaceholders(text string) []string {
	var out []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

// Rule is a declarative interaction rule. A rule holds exactly one mechanism.
type Rule struct {
	ID                  string      `json:"id"`
	Name                string      `json:"name"`
	Domain              Domain      `json:"domain"`
	Severity            Severity    `json:"severity"`
	Class               RuleClass   `json:"rule_class"`
	Tags                []string    `json:"tags,omitempty"`
	Exposure            Exposure    `json:"exposure,omitempty"`
	Mechanism           Mechanism   `json:"mechanism"`
	Guards              RuleGuards  `json:"guards"`
	ExplanationTemplate string      `json:"explanation_template"`
	Rationale           []string    `json:"rationale,omitempty"`
	Actions             []string    `json:"actions,omitempty"`
	References          []Reference `json:"references,omitempty"`

	// Source is the file the rule was loaded from, if any.
	Source string `json:"source,omitempty"`
}

// MechanismKind returns the kind of the rule's mechanism, or "" if none is set.
func (r *Rule) MechanismKind() MechanismKind {
	if r.Mechanism == nil {
		return ""
	}
	return r.Mechanism.Kind()
}

// ExposureFor returns the exposure direction the rule implies for a PK match:
// the rule's explicit Exposure, otherwise the one implied by B's role. PD
// rules return "".
func (r *Rule) ExposureFor() Exposure {
	if r.Exposure != "" {
		return r.Exposure
	}
	switch m := r.Mechanism.(type) {
	case EnzymeMechanism:
		return m.BRole.Exposure()
	case TransporterMechanism:
		return m.BRole.Exposure()
	default:
		return ""
	}
}

// Validate checks the rule's structural invariants: identifiers, enums, a
// single mechanism consistent with the domain, and known placeholders.
func (r *Rule) Validate() error {
	var errs ValidationErrors

	if !ruleIDPattern.MatchString(r.ID) {
		errs.Add("id", "rule id must be uppercase letters, digits and underscores", r.ID)
	}
	if strings.TrimSpace(r.Name) == "" {
		errs.Add("name", "name is required", nil)
	}
	if !r.Domain.IsValid() {
		errs.Add("domain", "invalid domain", r.Domain)
	}
	if !r.Severity.IsValid() {
		errs.Add("severity", "invalid severity", r.Severity)
	}
	if !r.Class.IsValid() {
		errs.Add("rule_class", "invalid rule class", r.Class)
	}
	if r.Exposure != "" && !r.Exposure.IsValid() {
		errs.Add("exposure", "invalid exposure direction", r.Exposure)
	}
	if ti := r.Guards.ATherapeuticIndex; ti != "" && !ti.IsValid() {
		errs.Add("guards.a_ti", "invalid therapeutic index", ti)
	}

	if r.Mechanism == nil {
		errs.Add("mechanism", "exactly one of enzyme, transporter or pd_overlap is required", nil)
	} else {
		errs = append(errs, r.Mechanism.validate()...)
		errs = append(errs, r.validateDomainFit()...)
	}

	texts := append([]string{r.ExplanationTemplate}, r.Rationale...)
	for _, text := range texts {
		for _, ph := range TemplatePlaceholders(text) {
			if !slices.Contains(Placeholders, ph) {
				errs.Add("explanation_template", fmt.Sprintf("unknown placeholder {%s}", ph), text)
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("rule %s: %w", r.ID, errs)
}

func (r *Rule) validateDomainFit() ValidationErrors {
	var errs ValidationErrors
	switch r.Mechanism.(type) {
	case EnzymeMechanism:
		if !r.Domain.IsEnzyme() {
			errs.Add("domain", "enzyme rules must use domain cyp or ugt", r.Domain)
		}
	case TransporterMechanism:
		if !r.Domain.IsTransporter() {
			errs.Add("domain", "transporter rules must use domain pgp, bcrp or oatp", r.Domain)
		}
	case PDOverlapMechanism:
		if r.Domain != DomainPD {
			errs.Add("domain", "pd_overlap rules must use domain pd", r.Domain)
		}
		if r.Exposure != "" {
			errs.Add("exposure", "pd_overlap rules have no exposure direction", r.Exposure)
		}
		if r.Guards != (RuleGuards{}) {
			errs.Add("guards", "pd_overlap rules take no affected-drug guards", nil)
		}
	}
	return errs
}

// DomainForEnzymeFamily maps an enzyme family to its rule domain.
func DomainForEnzymeFamily(family string) (Domain, bool) {
	switch strings.ToUpper(family) {
	case "CYP":
		return DomainCYP, true
	case "UGT":
		return DomainUGT, true
	default:
		return "", false
	}
}

// DomainForTransporterFamily maps a transporter family to its rule domain.
func DomainForTransporterFamily(family string) (Domain, bool) {
	switch f := strings.ToUpper(family); {
	case f == "ABCB1":
		return DomainPGP, true
	case f == "ABCG2":
		return DomainBCRP, true
	case strings.HasPrefix(f, "OATP"), strings.HasPrefix(f, "SLCO"):
		return DomainOATP, true
	default:
		return "", false
	}
}
