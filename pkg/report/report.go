// Package report turns an evaluation result into the stable payload served
// by the HTTP API, the MCP tools and the CLI, and renders it as text.
package report

import (
	"sort"

	"github.com/pharmds-ddi-server/internal/domain"
)

// SchemaVersion is the version of the JSON payload.
const SchemaVersion = "1.0"

// Payload is the machine-readable report of one interaction check.
type Payload struct {
	SchemaVersion string        `json:"schema_version"`
	Input         Input         `json:"input"`
	Overall       Overall       `json:"overall"`
	Snapshot      *SnapshotInfo `json:"snapshot,omitempty"`
	Pairs         []Pair        `json:"pairs"`
	PK            []Finding     `json:"pk"`
	PD            []Finding     `json:"pd"`
	Composite     []Finding     `json:"composite"`
	RecordID      string        `json:"record_id,omitempty"`
}

// Input echoes what was asked.
type Input struct {
	DrugNames       []string `json:"drug_names"`
	DrugIDs         []string `json:"drug_ids"`
	SelectedDomains []string `json:"selected_domains"`
}

// Overall is the aggregated severity and class.
type Overall struct {
	Severity     domain.Severity  `json:"severity"`
	Class        domain.RuleClass `json:"class"`
	FindingCount int              `json:"finding_count"`
}

// SnapshotInfo identifies the knowledge base snapshot that produced a report.
type SnapshotInfo struct {
	Version     uint64 `json:"version"`
	Fingerprint string `json:"fingerprint"`
	Cached      bool   `json:"cached"`
}

// Pair is the report of one unordered drug pair.
type Pair struct {
	Drug1   domain.DrugRef `json:"drug_1"`
	Drug2   domain.DrugRef `json:"drug_2"`
	Overall Overall        `json:"overall"`
	PK      PairPK         `json:"pk"`
	PD      PairPD         `json:"pd"`
}

// PairPK is the directional PK section of a pair.
type PairPK struct {
	Summary domain.PKSummary `json:"summary,omitempty"`
	Hits    []Finding        `json:"hits"`
}

// PairPD is the shared-effect section of a pair.
type PairPD struct {
	Hits []Finding `json:"hits"`
}

// Finding is a finding with A/B convenience references. For PK findings A is
// the affected drug and B the interacting drug; for PD findings they are the
// participants in id order.
type Finding struct {
	ID          string             `json:"id"`
	RuleID      string             `json:"rule_id"`
	Name        string             `json:"name,omitempty"`
	Kind        domain.FindingKind `json:"kind"`
	Domain      domain.Domain      `json:"domain"`
	Severity    domain.Severity    `json:"severity"`
	Class       domain.RuleClass   `json:"class"`
	Escalated   bool               `json:"escalated,omitempty"`
	A           *domain.DrugRef    `json:"A,omitempty"`
	B           *domain.DrugRef    `json:"B,omitempty"`
	Target      string             `json:"target,omitempty"`
	Exposure    domain.Exposure    `json:"exposure,omitempty"`
	Tags        []string           `json:"tags"`
	Explanation string             `json:"explanation"`
	Rationale   []string           `json:"rationale"`
	Actions     []string           `json:"actions"`
	References  []string           `json:"references"`
	DerivedFrom []string           `json:"derived_from,omitempty"`
}

// Meta carries the optional context of a report.
type Meta struct {
	SnapshotVersion uint64
	Fingerprint     string
	Cached          bool
	RecordID        string
}

// Build assembles the payload for res. names are the drug names as typed.
func Build(names []string, res *domain.EvaluationResult, meta *Meta) *Payload {
	p := &Payload{
		SchemaVersion: SchemaVersion,
		Input: Input{
			DrugNames:       nonNil(names),
			DrugIDs:         nonNil(res.DrugIDs),
			SelectedDomains: domainNames(res.Domains),
		},
		Overall: Overall{
			Severity:     res.OverallSeverity,
			Class:        res.OverallClass,
			FindingCount: res.FindingCount(),
		},
		Pairs:     make([]Pair, 0, len(res.Pairs)),
		PK:        convertAll(res.PK),
		PD:        convertAll(res.PD),
		Composite: convertAll(res.Composite),
	}
	if meta != nil {
		p.Snapshot = &SnapshotInfo{
			Version:     meta.SnapshotVersion,
			Fingerprint: meta.Fingerprint,
			Cached:      meta.Cached,
		}
		p.RecordID = meta.RecordID
	}

	for _, pr := range res.Pairs {
		p.Pairs = append(p.Pairs, Pair{
			Drug1: pr.A,
			Drug2: pr.B,
			Overall: Overall{
				Severity:     pr.OverallSeverity,
				Class:        pr.OverallClass,
				FindingCount: len(pr.PK) + len(pr.PD),
			},
			PK: PairPK{Summary: pr.PKSummary, Hits: convertAll(pr.PK)},
			PD: PairPD{Hits: convertAll(pr.PD)},
		})
	}
	return p
}

// Top returns a copy of p restricted to its n most severe pairs. n <= 0 keeps
// every pair. Flat finding lists are left untouched.
func (p *Payload) Top(n int) *Payload {
	if n <= 0 || n >= len(p.Pairs) {
		return p
	}
	cp := *p
	cp.Pairs = p.Pairs[:n]
	return &cp
}

func convertAll(fs []domain.Finding) []Finding {
	out := make([]Finding, len(fs))
	for i := range fs {
		out[i] = convert(&fs[i])
	}
	return out
}

func convert(f *domain.Finding) Finding {
	out := Finding{
		ID:          f.ID,
		RuleID:      f.RuleID,
		Name:        f.RuleName,
		Kind:        f.Kind,
		Domain:      f.Domain,
		Severity:    f.Severity,
		Class:       f.Class,
		Escalated:   f.Escalated,
		Target:      f.Target,
		Exposure:    f.Exposure,
		Tags:        sorted(f.Tags),
		Explanation: f.Explanation,
		Rationale:   nonNil(f.Rationale),
		Actions:     sorted(f.Actions),
		References:  sorted(f.References),
		DerivedFrom: f.DerivedFrom,
	}
	switch {
	case f.Affected != nil && f.Interacting != nil:
		a, b := *f.Affected, *f.Interacting
		out.A, out.B = &a, &b
	case len(f.Participants) >= 2:
		a, b := f.Participants[0], f.Participants[1]
		out.A, out.B = &a, &b
	}
	return out
}

func domainNames(f domain.DomainFilter) []string {
	ds := f.Domains()
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = string(d)
	}
	return out
}

func sorted(in []string) []string {
	out := append([]string{}, in...)
	sort.Strings(out)
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
