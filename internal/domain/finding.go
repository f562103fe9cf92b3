package domain

import "strings"

// DrugRef is a convenience (id, display name) pair attached to findings.
type DrugRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Finding is one traceable conclusion: a rule matched against explicit facts
// for a specific drug pair (PK), drug set (PD) or originating finding
// (composite).
type Finding struct {
	ID           string      `json:"id"`
	RuleID       string      `json:"rule_id"`
	RuleName     string      `json:"rule_name,omitempty"`
	Kind         FindingKind `json:"kind"`
	Domain       Domain      `json:"domain"`
	Severity     Severity    `json:"severity"`
	BaseSeverity Severity    `json:"base_severity"`
	Class        RuleClass   `json:"rule_class"`
	Escalated    bool        `json:"escalated,omitempty"`

	// PK findings carry the affected drug (whose exposure changes) and the
	// interacting drug (the perpetrator). PD findings carry Participants.
	Affected     *DrugRef  `json:"affected,omitempty"`
	Interacting  *DrugRef  `json:"interacting,omitempty"`
	Participants []DrugRef `json:"participants,omitempty"`

	Target      string   `json:"target,omitempty"`
	Exposure    Exposure `json:"exposure,omitempty"`
	Explanation string   `json:"explanation"`
	Rationale   []string `json:"rationale"`
	Actions     []string `json:"actions"`
	References  []string `json:"references"`
	Tags        []string `json:"tags,omitempty"`
	DerivedFrom []string `json:"derived_from,omitempty"`
}

// DrugIDs returns every drug id the finding refers to, affected first.
func (f *Finding) DrugIDs() []string {
	if f.Affected != nil && f.Interacting != nil {
		return []string{f.Affected.ID, f.Interacting.ID}
	}
	ids := make([]string, len(f.Participants))
	for i, p := range f.Participants {
		ids[i] = p.ID
	}
	return ids
}

// HasTag reports whether the finding carries tag.
func (f *Finding) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// FindingID builds the stable identifier of a finding: the rule id followed
// by the drug ids in role order, e.g. "PK_CYP3A4_STRONG_INHIB:quetiapine:clarithromycin".
func FindingID(ruleID string, drugIDs ...string) string {
	return ruleID + ":" + strings.Join(drugIDs, ":")
}

// EvaluationResult is the structured output of one evaluation.
type EvaluationResult struct {
	DrugIDs         []string     `json:"drug_ids"`
	Domains         DomainFilter `json:"-"`
	OverallSeverity Severity     `json:"overall_severity"`
	OverallClass    RuleClass    `json:"overall_rule_class"`
	PK              []Finding    `json:"pk"`
	PD              []Finding    `json:"pd"`
	Composite       []Finding    `json:"composite"`
	Pairs           []PairReport `json:"pairs"`
}

// All returns every finding in PK, PD, composite order.
func (r *EvaluationResult) All() []Finding {
	out := make([]Finding, 0, len(r.PK)+len(r.PD)+len(r.Composite))
	out = append(out, r.PK...)
	out = append(out, r.PD...)
	out = append(out, r.Composite...)
	return out
}

// FindingCount returns the number of findings of every kind.
func (r *EvaluationResult) FindingCount() int {
	return len(r.PK) + len(r.PD) + len(r.Composite)
}

// IsEmpty reports whether no interaction was found.
func (r *EvaluationResult) IsEmpty() bool {
	return r.FindingCount() == 0
}

// PKSummary describes the net direction of a pair's PK findings.
type PKSummary string

const (
	PKSummaryNone     PKSummary = ""
	PKSummaryIncrease PKSummary = "exposure_increase"
	PKSummaryDecrease PKSummary = "exposure_decrease"
	PKSummaryMixed    PKSummary = "mixed"
)

// PairReport groups the findings of one unordered drug pair.
type PairReport struct {
	A               DrugRef   `json:"A"`
	B               DrugRef   `json:"B"`
	OverallSeverity Severity  `json:"overall_severity"`
	OverallClass    RuleClass `json:"overall_rule_class"`
	PKSummary       PKSummary `json:"pk_summary,omitempty"`
	PK              []Finding `json:"pk"`
	PD              []Finding `json:"pd"`
}
