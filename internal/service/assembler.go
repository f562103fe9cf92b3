package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pharmds-ddi-server/internal/domain"
)

// Tags added by the evaluator on top of each rule's own tags.
const (
	TagNarrowTIEscalation = "narrow_ti_escalation"
	TagMagnitudeEscalated = "magnitude_escalation"
	TagComposite          = "composite"
	TagPKToPD             = "pk_to_pd"
	TagMultiMechanism     = "multi_mechanism"
	TagDualMechanism      = "dual_mechanism"
)

// Assembler turns a matched rule and its drugs into a Finding. It only
// substitutes names and copies rule text; it never formats for display.
type Assembler struct{}

// NewAssembler creates an assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

func ref(d *domain.Drug) *domain.DrugRef {
	return &domain.DrugRef{ID: d.ID, Name: d.GenericName}
}

type templateVars struct {
	aName, bName  string
	enzymeID      string
	transporterID string
	effectID      string
}

func (v templateVars) replacer() *strings.Replacer {
	return strings.NewReplacer(
		"{A_name}", v.aName,
		"{B_name}", v.bName,
		"{enzyme_id}", v.enzymeID,
		"{transporter_id}", v.transporterID,
		"{effect_id}", v.effectID,
	)
}

func renderAll(r *strings.Replacer, lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = r.Replace(l)
	}
	return out
}

// PK builds the directional finding for rule matched with a affected and b
// interacting on target. fraction is a's fraction metabolized via an enzyme
// target, when curated.
func (as *Assembler) PK(rule *domain.Rule, a, b *domain.Drug, target string, fraction *float64) domain.Finding {
	vars := templateVars{aName: a.GenericName, bName: b.GenericName}
	if rule.MechanismKind() == domain.MechanismEnzyme {
		vars.enzymeID = target
	} else {
		vars.transporterID = target
	}
	r := vars.replacer()

	exposure := rule.ExposureFor()
	f := domain.Finding{
		ID:           domain.FindingID(rule.ID, a.ID, b.ID),
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		Kind:         domain.KindPK,
		Domain:       rule.Domain,
		Severity:     rule.Severity,
		BaseSeverity: rule.Severity,
		Class:        rule.Class,
		Affected:     ref(a),
		Interacting:  ref(b),
		Target:       target,
		Exposure:     exposure,
		Explanation:  r.Replace(rule.ExplanationTemplate),
		Rationale:    renderAll(r, rule.Rationale),
		Actions:      renderAll(r, rule.Actions),
		References:   referenceStrings(rule.References),
		Tags:         mergeTags(rule.Tags, exposure.Tag()),
	}
	if fraction != nil {
		f.Rationale = append(f.Rationale, fmt.Sprintf(
			"%s is %.0f%% metabolized by %s (fraction_metabolized %.2f).",
			a.GenericName, *fraction*100, target, *fraction))
	}
	return f
}

// EscalateNarrowTI raises f to at least major when the affected drug has a
// narrow therapeutic index. Severity never moves down.
func (as *Assembler) EscalateNarrowTI(f *domain.Finding, a *domain.Drug) {
	if !a.IsNarrowTI() {
		return
	}
	raised := f.Severity.AtLeast(domain.SeverityMajor)
	if raised == f.Severity {
		return
	}
	f.Severity = raised
	f.Escalated = true
	f.Tags = mergeTags(f.Tags, TagNarrowTIEscalation)
	f.Rationale = append(f.Rationale, fmt.Sprintf(
		"%s has a narrow therapeutic index; severity raised to %s.", a.GenericName, raised))
}

// PD builds the symmetric finding for a PD overlap between a and b on
// effect. Participants are ordered by id.
func (as *Assembler) PD(rule *domain.Rule, a, b *domain.Drug, effect string, aMag, bMag domain.Magnitude) domain.Finding {
	if b.ID < a.ID {
		a, b = b, a
		aMag, bMag = bMag, aMag
	}
	r := templateVars{aName: a.GenericName, bName: b.GenericName, effectID: effect}.replacer()

	f := domain.Finding{
		ID:           domain.FindingID(rule.ID, a.ID, b.ID),
		RuleID:       rule.ID,
		RuleName:     rule.Name,
		Kind:         domain.KindPD,
		Domain:       domain.DomainPD,
		Severity:     rule.Severity,
		BaseSeverity: rule.Severity,
		Class:        rule.Class,
		Participants: []domain.DrugRef{*ref(a), *ref(b)},
		Target:       effect,
		Explanation:  r.Replace(rule.ExplanationTemplate),
		Rationale:    renderAll(r, rule.Rationale),
		Actions:      renderAll(r, rule.Actions),
		References:   referenceStrings(rule.References),
		Tags:         mergeTags(rule.Tags),
	}
	f.Rationale = append(f.Rationale, fmt.Sprintf(
		"%s effect magnitude: %s %s, %s %s.", effect, a.GenericName, aMag, b.GenericName, bMag))

	if aMag.AtLeast(domain.MagnitudeMedium) && bMag.AtLeast(domain.MagnitudeMedium) {
		raised := f.Severity.AtLeast(domain.SeverityMajor)
		if raised != f.Severity {
			f.Severity = raised
			f.Escalated = true
			f.Tags = mergeTags(f.Tags, TagMagnitudeEscalated)
			f.Rationale = append(f.Rationale, fmt.Sprintf(
				"Both drugs contribute at medium or higher magnitude; severity raised to %s.", raised))
		}
	}
	return f
}

// CompositeID returns the id of the PK-driven PD amplification finding for
// effect, e.g. COMP_PK_UP_CNS_DEPRESSION.
func CompositeID(effect string) string {
	return "COMP_PK_UP_" + strings.ToUpper(effect)
}

// Composite builds the PK-driven PD amplification finding for a's effect.
// sources are the exposure-increasing PK findings of (a, b) it derives from.
func (as *Assembler) Composite(a, b *domain.Drug, effect domain.DrugPDEffect, pdBase domain.Severity, sources []domain.Finding) domain.Finding {
	id := CompositeID(effect.EffectID)

	severities := []domain.Severity{pdBase}
	classes := make([]domain.RuleClass, 0, len(sources))
	derived := make([]string, 0, len(sources))
	targets := make([]string, 0, len(sources))
	var actions, references []string
	for _, s := range sources {
		severities = append(severities, s.Severity)
		classes = append(classes, s.Class)
		derived = append(derived, s.ID)
		targets = append(targets, s.Target)
		actions = append(actions, s.Actions...)
		references = append(references, s.References...)
	}
	sort.Strings(derived)
	targets = unique(targets)

	severity := domain.MaxSeverity(severities...)
	rationale := []string{
		fmt.Sprintf("%s raises exposure to %s via %s.", b.GenericName, a.GenericName, strings.Join(targets, ", ")),
		fmt.Sprintf("%s carries %s at %s magnitude.", a.GenericName, effect.EffectID, effect.Magnitude),
		fmt.Sprintf("Base PD severity for %s is %s.", effect.EffectID, pdBase),
	}

	return domain.Finding{
		ID:           domain.FindingID(id, a.ID, b.ID),
		RuleID:       id,
		RuleName:     fmt.Sprintf("PK-driven %s amplification", effect.EffectID),
		Kind:         domain.KindComposite,
		Domain:       domain.DomainPD,
		Severity:     severity,
		BaseSeverity: domain.MaxSeverity(severities[1:]...),
		Class:        domain.MaxRuleClass(classes...),
		Affected:     ref(a),
		Interacting:  ref(b),
		Target:       effect.EffectID,
		Exposure:     domain.ExposureIncrease,
		Explanation: fmt.Sprintf("%s increases exposure to %s, which can amplify its %s effect.",
			b.GenericName, a.GenericName, effect.EffectID),
		Rationale: rationale,
		Actions: unique(append(actions, fmt.Sprintf(
			"Monitor for %s while %s exposure is raised.", effect.EffectID, a.GenericName))),
		References:  unique(references),
		Tags:        mergeTags([]string{TagComposite, TagPKToPD, strings.ToLower(effect.EffectID)}, domain.ExposureIncrease.Tag()),
		DerivedFrom: derived,
	}
}

// MultiMechanismID names the composite for a set of PK domains.
func MultiMechanismID(domains []domain.Domain) string {
	if len(domains) == 2 {
		has := func(d domain.Domain) bool { return domains[0] == d || domains[1] == d }
		switch {
		case has(domain.DomainCYP) && has(domain.DomainPGP):
			return "PK_DUAL_MECH_INCREASE"
		case has(domain.DomainCYP) && has(domain.DomainUGT):
			return "PK_DUAL_MECH_INCREASE_CYP_UGT"
		case has(domain.DomainUGT) && has(domain.DomainPGP):
			return "PK_DUAL_MECH_INCREASE_UGT_PGP"
		}
	}
	return "PK_MULTI_MECH_INCREASE"
}

// MultiMechanism builds the finding for several independent exposure
// increasing mechanisms between a and b. domains must be sorted and distinct.
func (as *Assembler) MultiMechanism(a, b *domain.Drug, domains []domain.Domain, sources []domain.Finding, escalate bool) domain.Finding {
	id := MultiMechanismID(domains)

	severities := make([]domain.Severity, 0, len(sources))
	classes := make([]domain.RuleClass, 0, len(sources))
	derived := make([]string, 0, len(sources))
	rationale := make([]string, 0, len(sources)+1)
	var actions, references []string
	for _, s := range sources {
		severities = append(severities, s.Severity)
		classes = append(classes, s.Class)
		derived = append(derived, s.ID)
		rationale = append(rationale, fmt.Sprintf("%s: %s", s.RuleID, s.Explanation))
		actions = append(actions, s.Actions...)
		references = append(references, s.References...)
	}
	sort.Strings(derived)

	names := make([]string, len(domains))
	for i, d := range domains {
		names[i] = strings.ToUpper(string(d))
	}

	base := domain.MaxSeverity(severities...)
	f := domain.Finding{
		ID:           domain.FindingID(id, a.ID, b.ID),
		RuleID:       id,
		RuleName:     "Multiple PK mechanisms increase exposure",
		Kind:         domain.KindComposite,
		Domain:       domain.DomainPK,
		Severity:     base,
		BaseSeverity: base,
		Class:        domain.MaxRuleClass(classes...),
		Affected:     ref(a),
		Interacting:  ref(b),
		Target:       strings.Join(names, "+"),
		Exposure:     domain.ExposureIncrease,
		Explanation: fmt.Sprintf("%s increases exposure to %s through %d independent mechanisms (%s).",
			b.GenericName, a.GenericName, len(domains), strings.Join(names, ", ")),
		Rationale:   rationale,
		Actions:     unique(actions),
		References:  unique(references),
		Tags:        mergeTags([]string{TagMultiMechanism}, domain.ExposureIncrease.Tag()),
		DerivedFrom: derived,
	}
	if len(domains) == 2 {
		f.Tags = mergeTags(f.Tags, TagDualMechanism)
	}
	if escalate && f.Severity == domain.SeverityCaution {
		f.Severity = domain.SeverityMajor
		f.Escalated = true
		f.Rationale = append(f.Rationale, "Combined mechanisms raise severity from caution to major.")
	}
	return f
}

func referenceStrings(refs []domain.Reference) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.String()
	}
	return out
}

// mergeTags returns the sorted, de-duplicated union of tags and extra,
// skipping empty values.
func mergeTags(tags []string, extra ...string) []string {
	out := make([]string, 0, len(tags)+len(extra))
	out = append(out, tags...)
	out = append(out, extra...)
	out = unique(out)
	sort.Strings(out)
	return out
}

// unique drops empty and repeated strings, keeping first occurrences.
func unique(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
