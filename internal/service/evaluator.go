package service

import (
	"sort"
	"strings"

	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/pharmds-ddi-server/internal/rules"
)

// pkDomainOrder fixes the order domains are listed in multi-mechanism
// findings.
var pkDomainOrder = map[domain.Domain]int{
	domain.DomainCYP:  0,
	domain.DomainUGT:  1,
	domain.DomainPGP:  2,
	domain.DomainBCRP: 3,
	domain.DomainOATP: 4,
}

// Evaluator matches a rule set against resolved drugs. It holds no state
// between calls and reads the knowledge base and rules only.
type Evaluator struct {
	cfg       domain.EngineConfig
	assembler *Assembler
}

// NewEvaluator creates an evaluator. Zero config values take their defaults.
func NewEvaluator(cfg domain.EngineConfig) *Evaluator {
	if cfg.CompositeMinMagnitude == "" {
		cfg.CompositeMinMagnitude = domain.DefaultEngineConfig().CompositeMinMagnitude
	}
	return &Evaluator{cfg: cfg, assembler: NewAssembler()}
}

// Evaluate derives every PK, PD and composite finding for ids under filter,
// aggregates them and groups them per pair. Input order never changes the
// result.
func (e *Evaluator) Evaluate(kb domain.KnowledgeBase, set *rules.Set, ids []string, filter domain.DomainFilter) (*domain.EvaluationResult, error) {
	if filter == 0 {
		return nil, domain.NewValidationError("domains", "domain filter selects no domain", filter.String())
	}

	drugs, err := lookupDrugs(kb, ids)
	if err != nil {
		return nil, err
	}
	if len(drugs) < 2 {
		return nil, domain.NewValidationError("drugs", "at least two distinct drugs are required", len(drugs))
	}

	res := &domain.EvaluationResult{
		DrugIDs: make([]string, len(drugs)),
		Domains: filter,
	}
	for i, d := range drugs {
		res.DrugIDs[i] = d.ID
	}

	res.PK = e.matchPK(kb, set, drugs, filter)
	if filter.Allows(domain.DomainPD) {
		res.PD = e.matchPD(kb, set, drugs)
		res.Composite = e.deriveComposites(kb, set, res.PK)
	}
	res.Composite = append(res.Composite, e.deriveMultiMechanism(kb, res.PK)...)

	sortFindings(res.PK)
	sortFindings(res.PD)
	sortFindings(res.Composite)

	res.OverallSeverity, res.OverallClass = Aggregate(res.PK, res.PD, res.Composite)
	res.Pairs = BuildPairReports(res)
	return res, nil
}

// lookupDrugs de-duplicates ids and returns their drugs ordered by id.
func lookupDrugs(kb domain.KnowledgeBase, ids []string) ([]*domain.Drug, error) {
	seen := make(map[string]bool, len(ids))
	drugs := make([]*domain.Drug, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		d, ok := kb.Drug(id)
		if !ok {
			return nil, &domain.NotFoundError{Name: id}
		}
		drugs = append(drugs, d)
	}
	sort.Slice(drugs, func(i, j int) bool { return drugs[i].ID < drugs[j].ID })
	return drugs, nil
}

// matchPK tries every PK rule on every ordered pair.
func (e *Evaluator) matchPK(kb domain.KnowledgeBase, set *rules.Set, drugs []*domain.Drug, filter domain.DomainFilter) []domain.Finding {
	var candidates []domain.Rule
	for _, r := range set.Filter(filter) {
		if r.Domain.IsPK() {
			candidates = append(candidates, r)
		}
	}

	var out []domain.Finding
	for _, a := range drugs {
		for _, b := range drugs {
			if a.ID == b.ID {
				continue
			}
			for i := range candidates {
				rule := &candidates[i]
				target, fraction, ok := matchPKRule(kb, rule, a, b)
				if !ok {
					continue
				}
				f := e.assembler.PK(rule, a, b, target, fraction)
				e.assembler.EscalateNarrowTI(&f, a)
				out = append(out, f)
			}
		}
	}
	return out
}

// matchPKRule reports whether rule holds with a affected and b interacting,
// returning the matched enzyme or transporter id and a's curated fraction
// metabolized for enzyme matches.
func matchPKRule(kb domain.KnowledgeBase, rule *domain.Rule, a, b *domain.Drug) (string, *float64, bool) {
	if !guardsHold(kb, rule.Guards, a) {
		return "", nil, false
	}

	switch m := rule.Mechanism.(type) {
	case domain.EnzymeMechanism:
		sub, ok := findEnzymeRole(kb.EnzymeRoles(a.ID), m.EnzymeID, m.ARole)
		if !ok {
			return "", nil, false
		}
		perp, ok := findEnzymeRole(kb.EnzymeRoles(b.ID), m.EnzymeID, m.BRole)
		if !ok || !m.Strength.Accepts(perp.Strength) {
			return "", nil, false
		}
		return sub.EnzymeID, sub.FractionMetabolized, true

	case domain.TransporterMechanism:
		targets := []string{m.TransporterID}
		if m.TransporterID == "" {
			targets = kb.TransportersInFamily(m.Family)
		}
		for _, t := range targets {
			if _, ok := findTransporterRole(kb.TransporterRoles(a.ID), t, m.ARole); !ok {
				continue
			}
			perp, ok := findTransporterRole(kb.TransporterRoles(b.ID), t, m.BRole)
			if ok && m.Strength.Accepts(perp.Strength) {
				return t, nil, true
			}
		}
	}
	return "", nil, false
}

func guardsHold(kb domain.KnowledgeBase, g domain.RuleGuards, a *domain.Drug) bool {
	if g.ATherapeuticIndex != "" && a.TherapeuticIndex != g.ATherapeuticIndex {
		return false
	}
	if g.AProdrug != nil {
		params, ok := kb.Parameters(a.ID)
		prodrug := ok && params.Prodrug
		if prodrug != *g.AProdrug {
			return false
		}
	}
	return true
}

func findEnzymeRole(roles []domain.DrugEnzymeRole, enzymeID string, role domain.Role) (domain.DrugEnzymeRole, bool) {
	for _, r := range roles {
		if r.Role == role && strings.EqualFold(r.EnzymeID, enzymeID) {
			return r, true
		}
	}
	return domain.DrugEnzymeRole{}, false
}

func findTransporterRole(roles []domain.DrugTransporterRole, transporterID string, role domain.Role) (domain.DrugTransporterRole, bool) {
	for _, r := range roles {
		if r.Role == role && strings.EqualFold(r.TransporterID, transporterID) {
			return r, true
		}
	}
	return domain.DrugTransporterRole{}, false
}

func findEffect(effects []domain.DrugPDEffect, effectID string) (domain.DrugPDEffect, bool) {
	for _, e := range effects {
		if e.EffectID == effectID {
			return e, true
		}
	}
	return domain.DrugPDEffect{}, false
}

// matchPD checks every unordered pair against every PD overlap rule. Three
// or more drugs sharing an effect yield one finding per pair.
func (e *Evaluator) matchPD(kb domain.KnowledgeBase, set *rules.Set, drugs []*domain.Drug) []domain.Finding {
	pdRules := set.Filter(domain.FilterOf(domain.DomainPD))

	var out []domain.Finding
	for i := 0; i < len(drugs); i++ {
		for j := i + 1; j < len(drugs); j++ {
			a, b := drugs[i], drugs[j]
			for k := range pdRules {
				rule := &pdRules[k]
				m, ok := rule.Mechanism.(domain.PDOverlapMechanism)
				if !ok {
					continue
				}
				ea, okA := findEffect(kb.PDEffects(a.ID), m.EffectID)
				eb, okB := findEffect(kb.PDEffects(b.ID), m.EffectID)
				if !okA || !okB {
					continue
				}
				if ea.Direction != domain.DirectionIncrease || eb.Direction != domain.DirectionIncrease {
					continue
				}
				if !ea.Magnitude.AtLeast(m.MinMagnitude) || !eb.Magnitude.AtLeast(m.MinMagnitude) {
					continue
				}
				out = append(out, e.assembler.PD(rule, a, b, m.EffectID, ea.Magnitude, eb.Magnitude))
			}
		}
	}
	return out
}

type directedPair struct {
	affected, interacting string
}

// increasesByPair groups exposure-increasing PK findings by directed pair,
// keeping pairs in first-seen order.
func increasesByPair(pk []domain.Finding) ([]directedPair, map[directedPair][]domain.Finding) {
	var order []directedPair
	groups := make(map[directedPair][]domain.Finding)
	for _, f := range pk {
		if f.Kind != domain.KindPK || f.Exposure != domain.ExposureIncrease {
			continue
		}
		key := directedPair{f.Affected.ID, f.Interacting.ID}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], f)
	}
	return order, groups
}

// deriveComposites emits one PK-driven PD amplification per (A, B, effect)
// where B raises A's exposure and A carries an increasing PD effect that a PD
// rule covers at or above the configured magnitude.
func (e *Evaluator) deriveComposites(kb domain.KnowledgeBase, set *rules.Set, pk []domain.Finding) []domain.Finding {
	order, groups := increasesByPair(pk)

	var out []domain.Finding
	seen := make(map[string]bool)
	for _, key := range order {
		a, _ := kb.Drug(key.affected)
		b, _ := kb.Drug(key.interacting)
		for _, effect := range kb.PDEffects(a.ID) {
			if effect.Direction != domain.DirectionIncrease || !effect.Magnitude.AtLeast(e.cfg.CompositeMinMagnitude) {
				continue
			}
			base, ok := set.PDBaseSeverity(effect.EffectID)
			if !ok {
				continue
			}
			f := e.assembler.Composite(a, b, effect, base, groups[key])
			if !seen[f.ID] {
				seen[f.ID] = true
				out = append(out, f)
			}
		}
	}
	return out
}

// deriveMultiMechanism emits one finding per directed pair whose exposure is
// raised through two or more PK domains.
func (e *Evaluator) deriveMultiMechanism(kb domain.KnowledgeBase, pk []domain.Finding) []domain.Finding {
	order, groups := increasesByPair(pk)

	var out []domain.Finding
	seen := make(map[string]bool)
	for _, key := range order {
		sources := groups[key]
		var domains []domain.Domain
		for _, f := range sources {
			if _, ok := pkDomainOrder[f.Domain]; ok && !containsDomain(domains, f.Domain) {
				domains = append(domains, f.Domain)
			}
		}
		if len(domains) < 2 {
			continue
		}
		sort.Slice(domains, func(i, j int) bool { return pkDomainOrder[domains[i]] < pkDomainOrder[domains[j]] })

		a, _ := kb.Drug(key.affected)
		b, _ := kb.Drug(key.interacting)
		f := e.assembler.MultiMechanism(a, b, domains, sources, e.cfg.EscalateMultiMechanism)
		if !seen[f.ID] {
			seen[f.ID] = true
			out = append(out, f)
		}
	}
	return out
}

func containsDomain(list []domain.Domain, d domain.Domain) bool {
	for _, x := range list {
		if x == d {
			return true
		}
	}
	return false
}

// sortFindings orders by severity (highest first), then rule id, then id.
func sortFindings(fs []domain.Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if c := fs[i].Severity.Compare(fs[j].Severity); c != 0 {
			return c > 0
		}
		if fs[i].RuleID != fs[j].RuleID {
			return fs[i].RuleID < fs[j].RuleID
		}
		return fs[i].ID < fs[j].ID
	})
}

// Aggregate folds findings into the overall severity and the overall rule
// class. The two maxima are taken independently; no findings is info/info.
func Aggregate(groups ...[]domain.Finding) (domain.Severity, domain.RuleClass) {
	severity, class := domain.SeverityInfo, domain.ClassInfo
	for _, fs := range groups {
		for _, f := range fs {
			if f.Severity.Compare(severity) > 0 {
				severity = f.Severity
			}
			if f.Class.Compare(class) > 0 {
				class = f.Class
			}
		}
	}
	return severity, class
}

