// Package kb holds the validated, indexed, immutable knowledge base used by
// the evaluator. A KnowledgeBase is built once from a domain.Dataset and is
// safe for concurrent reads without locking.
package kb

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pharmds-ddi-server/internal/domain"
)

var drugIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_+-]*$`)

// KnowledgeBase implements domain.KnowledgeBase over in-memory indexes.
type KnowledgeBase struct {
	drugs        map[string]*domain.Drug
	enzymes      map[string]*domain.Enzyme
	transporters map[string]*domain.Transporter
	effects      map[string]*domain.PDEffect

	enzymeRoles      map[string][]domain.DrugEnzymeRole
	transporterRoles map[string][]domain.DrugTransporterRole
	pdEffects        map[string][]domain.DrugPDEffect
	parameters       map[string]*domain.ParameterSet
	families         map[string][]string

	// names maps a normalized generic name or alias to drug ids.
	names map[string][]string
	terms []string
	stats domain.KnowledgeBaseStats
}

var _ domain.KnowledgeBase = (*KnowledgeBase)(nil)

// New validates ds and builds the indexes. Every violation is collected and
// returned together as domain.ValidationErrors.
func New(ds *domain.Dataset) (*KnowledgeBase, error) {
	if ds == nil {
		return nil, fmt.Errorf("knowledge base: %w", domain.NewValidationError("dataset", "dataset is required", nil))
	}

	kb := &KnowledgeBase{
		drugs:            make(map[string]*domain.Drug, len(ds.Drugs)),
		enzymes:          make(map[string]*domain.Enzyme, len(ds.Enzymes)),
		transporters:     make(map[string]*domain.Transporter, len(ds.Transporters)),
		effects:          make(map[string]*domain.PDEffect, len(ds.PDEffects)),
		enzymeRoles:      make(map[string][]domain.DrugEnzymeRole),
		transporterRoles: make(map[string][]domain.DrugTransporterRole),
		pdEffects:        make(map[string][]domain.DrugPDEffect),
		parameters:       make(map[string]*domain.ParameterSet),
		families:         make(map[string][]string),
		names:            make(map[string][]string),
	}

	var errs domain.ValidationErrors
	kb.indexVocabulary(ds, &errs)
	kb.indexDrugs(ds, &errs)
	kb.indexEnzymeRoles(ds, &errs)
	kb.indexTransporterRoles(ds, &errs)
	kb.indexPDEffects(ds, &errs)
	kb.indexParameters(ds, &errs)

	if err := errs.Err(); err != nil {
		return nil, fmt.Errorf("knowledge base: %w", err)
	}

	kb.finish()
	return kb, nil
}

func (kb *KnowledgeBase) indexVocabulary(ds *domain.Dataset, errs *domain.ValidationErrors) {
	for i := range ds.Enzymes {
		e := ds.Enzymes[i]
		field := fmt.Sprintf("enzymes[%d]", i)
		if e.ID == "" {
			errs.Add(field+".id", "enzyme id is required", nil)
			continue
		}
		if _, ok := domain.DomainForEnzymeFamily(e.Family); !ok {
			errs.Add(field+".family", "enzyme family must be CYP or UGT", e.Family)
		}
		if _, dup := kb.enzymes[e.ID]; dup {
			errs.Add(field+".id", "duplicate enzyme id", e.ID)
			continue
		}
		kb.enzymes[e.ID] = &e
	}

	for i := range ds.Transporters {
		t := ds.Transporters[i]
		t.ID = domain.NormalizeTransporterID(t.ID)
		field := fmt.Sprintf("transporters[%d]", i)
		if t.ID == "" {
			errs.Add(field+".id", "transporter id is required", nil)
			continue
		}
		if _, ok := domain.DomainForTransporterFamily(t.Family); !ok {
			errs.Add(field+".family", "transporter family must be ABCB1, ABCG2 or OATP", t.Family)
		}
		if _, dup := kb.transporters[t.ID]; dup {
			errs.Add(field+".id", "duplicate transporter id", t.ID)
			continue
		}
		kb.transporters[t.ID] = &t
		family := strings.ToUpper(t.Family)
		kb.families[family] = append(kb.families[family], t.ID)
	}

	for i := range ds.PDEffects {
		e := ds.PDEffects[i]
		e.ID = domain.NormalizeEffectID(e.ID)
		field := fmt.Sprintf("pd_effects[%d]", i)
		if e.ID == "" {
			errs.Add(field+".id", "pd effect id is required", nil)
			continue
		}
		if _, dup := kb.effects[e.ID]; dup {
			errs.Add(field+".id", "duplicate pd effect id", e.ID)
			continue
		}
		kb.effects[e.ID] = &e
	}
}

func (kb *KnowledgeBase) indexDrugs(ds *domain.Dataset, errs *domain.ValidationErrors) {
	aliasOwner := make(map[string]string)

	for i := range ds.Drugs {
		d := ds.Drugs[i]
		field := fmt.Sprintf("drugs[%d]", i)

		if !drugIDPattern.MatchString(d.ID) {
			errs.Add(field+".id", "drug id must be lowercase and match ^[a-z0-9][a-z0-9_+-]*$", d.ID)
			continue
		}
		if _, dup := kb.drugs[d.ID]; dup {
			errs.Add(field+".id", "duplicate drug id", d.ID)
			continue
		}
		if strings.TrimSpace(d.GenericName) == "" {
			errs.Add(field+".generic_name", "generic name is required", d.ID)
		}
		if d.TherapeuticIndex == "" {
			d.TherapeuticIndex = domain.TIModerate
		}
		if !d.TherapeuticIndex.IsValid() {
			errs.Add(field+".therapeutic_index", "therapeutic index must be wide, moderate or narrow", d.TherapeuticIndex)
		}

		aliases := make([]string, 0, len(d.Aliases))
		seen := make(map[string]bool, len(d.Aliases))
		for _, raw := range d.Aliases {
			alias := domain.NormalizeName(raw)
			if alias == "" || seen[alias] {
				continue
			}
			seen[alias] = true
			if owner, taken := aliasOwner[alias]; taken && owner != d.ID {
				errs.Add(field+".aliases", fmt.Sprintf("alias %q already belongs to %s", alias, owner), alias)
				continue
			}
			aliasOwner[alias] = d.ID
			aliases = append(aliases, alias)
		}
		d.Aliases = aliases
		kb.drugs[d.ID] = &d
	}

	// An alias may not shadow another drug's id or generic name.
	for alias, owner := range aliasOwner {
		for id, d := range kb.drugs {
			if id == owner {
				continue
			}
			if alias == id || alias == domain.NormalizeName(d.GenericName) {
				errs.Add("aliases", fmt.Sprintf("alias %q of %s collides with drug %s", alias, owner, id), alias)
			}
		}
	}

	for id, d := range kb.drugs {
		kb.addName(d.GenericName, id)
		for _, a := range d.Aliases {
			kb.addName(a, id)
		}
	}
}

func (kb *KnowledgeBase) addName(raw, id string) {
	name := domain.NormalizeName(raw)
	if name == "" {
		return
	}
	for _, existing := range kb.names[name] {
		if existing == id {
			return
		}
	}
	kb.names[name] = append(kb.names[name], id)
}

func (kb *KnowledgeBase) indexEnzymeRoles(ds *domain.Dataset, errs *domain.ValidationErrors) {
	seen := make(map[string]bool)
	for i, r := range ds.EnzymeRoles {
		field := fmt.Sprintf("enzyme_roles[%d]", i)
		ok := true
		if _, known := kb.drugs[r.DrugID]; !known {
			errs.Add(field+".drug_id", "unknown drug", r.DrugID)
			ok = false
		}
		if _, known := kb.enzymes[r.EnzymeID]; !known {
			errs.Add(field+".enzyme_id", "unknown enzyme", r.EnzymeID)
			ok = false
		}
		ok = validateRole(field, r.Role, r.Strength, errs) && ok
		if f := r.FractionMetabolized; f != nil {
			if *f < 0 || *f > 1 {
				errs.Add(field+".fraction_metabolized", "fraction_metabolized must be within [0, 1]", *f)
				ok = false
			}
			if r.Role != domain.RoleSubstrate {
				errs.Add(field+".fraction_metabolized", "fraction_metabolized only applies to substrate roles", r.Role)
				ok = false
			}
		}
		key := r.DrugID + "|" + r.EnzymeID + "|" + string(r.Role)
		if seen[key] {
			errs.Add(field, "duplicate (drug, enzyme, role)", key)
			ok = false
		}
		seen[key] = true
		if ok {
			kb.enzymeRoles[r.DrugID] = append(kb.enzymeRoles[r.DrugID], r)
		}
	}
}

func (kb *KnowledgeBase) indexTransporterRoles(ds *domain.Dataset, errs *domain.ValidationErrors) {
	seen := make(map[string]bool)
	for i, r := range ds.TransporterRoles {
		field := fmt.Sprintf("transporter_roles[%d]", i)
		r.TransporterID = domain.NormalizeTransporterID(r.TransporterID)
		ok := true
		if _, known := kb.drugs[r.DrugID]; !known {
			errs.Add(field+".drug_id", "unknown drug", r.DrugID)
			ok = false
		}
		if _, known := kb.transporters[r.TransporterID]; !known {
			errs.Add(field+".transporter_id", "unknown transporter", r.TransporterID)
			ok = false
		}
		ok = validateRole(field, r.Role, r.Strength, errs) && ok
		key := r.DrugID + "|" + r.TransporterID + "|" + string(r.Role)
		if seen[key] {
			errs.Add(field, "duplicate (drug, transporter, role)", key)
			ok = false
		}
		seen[key] = true
		if ok {
			kb.transporterRoles[r.DrugID] = append(kb.transporterRoles[r.DrugID], r)
		}
	}
}

func validateRole(field string, role domain.Role, strength domain.Strength, errs *domain.ValidationErrors) bool {
	ok := true
	if !role.IsValid() {
		errs.Add(field+".role", "role must be substrate, inhibitor or inducer", role)
		ok = false
	}
	if strength != "" && !strength.IsValid() {
		errs.Add(field+".strength", "strength must be weak, moderate or strong", strength)
		ok = false
	}
	return ok
}

func (kb *KnowledgeBase) indexPDEffects(ds *domain.Dataset, errs *domain.ValidationErrors) {
	seen := make(map[string]bool)
	for i, e := range ds.DrugPDEffects {
		field := fmt.Sprintf("drug_pd_effects[%d]", i)
		e.EffectID = domain.NormalizeEffectID(e.EffectID)
		ok := true
		if _, known := kb.drugs[e.DrugID]; !known {
			errs.Add(field+".drug_id", "unknown drug", e.DrugID)
			ok = false
		}
		if _, known := kb.effects[e.EffectID]; !known {
			errs.Add(field+".effect_id", "unknown pd effect", e.EffectID)
			ok = false
		}
		if !e.Direction.IsValid() {
			errs.Add(field+".direction", "direction must be increase or decrease", e.Direction)
			ok = false
		}
		if !e.Magnitude.IsValid() {
			errs.Add(field+".magnitude", "magnitude must be low, medium or high", e.Magnitude)
			ok = false
		}
		key := e.DrugID + "|" + e.EffectID
		if seen[key] {
			errs.Add(field, "duplicate (drug, pd effect)", key)
			ok = false
		}
		seen[key] = true
		if ok {
			kb.pdEffects[e.DrugID] = append(kb.pdEffects[e.DrugID], e)
		}
	}
}

func (kb *KnowledgeBase) indexParameters(ds *domain.Dataset, errs *domain.ValidationErrors) {
	for i := range ds.Parameters {
		p := ds.Parameters[i]
		field := fmt.Sprintf("parameters[%d]", i)
		if _, known := kb.drugs[p.DrugID]; !known {
			errs.Add(field+".drug_id", "unknown drug", p.DrugID)
			continue
		}
		if p.HalfLifeBucket != "" && !p.HalfLifeBucket.IsValid() {
			errs.Add(field+".half_life_bucket", "half_life_bucket must be short, medium or long", p.HalfLifeBucket)
			continue
		}
		if _, dup := kb.parameters[p.DrugID]; dup {
			errs.Add(field+".drug_id", "duplicate parameter set", p.DrugID)
			continue
		}
		kb.parameters[p.DrugID] = &p
	}
}

func (kb *KnowledgeBase) finish() {
	for name := range kb.names {
		kb.terms = append(kb.terms, name)
	}
	sort.Strings(kb.terms)
	for _, ids := range kb.families {
		sort.Strings(ids)
	}

	kb.stats = domain.KnowledgeBaseStats{
		Drugs:        len(kb.drugs),
		Enzymes:      len(kb.enzymes),
		Transporters: len(kb.transporters),
		PDEffects:    len(kb.effects),
	}
	for _, d := range kb.drugs {
		kb.stats.Aliases += len(d.Aliases)
	}
	for _, roles := range kb.enzymeRoles {
		kb.stats.EnzymeRoles += len(roles)
	}
	for _, roles := range kb.transporterRoles {
		kb.stats.TransporterRoles += len(roles)
	}
	for _, effects := range kb.pdEffects {
		kb.stats.DrugPDEffects += len(effects)
	}
	kb.stats.ParameterSets = len(kb.parameters)
}

// Drug returns the drug with the given id.
func (kb *KnowledgeBase) Drug(id string) (*domain.Drug, bool) {
	d, ok := kb.drugs[id]
	return d, ok
}

// DrugIDs returns every drug id in ascending order.
func (kb *KnowledgeBase) DrugIDs() []string {
	ids := make([]string, 0, len(kb.drugs))
	for id := range kb.drugs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (kb *KnowledgeBase) EnzymeRoles(drugID string) []domain.DrugEnzymeRole {
	return kb.enzymeRoles[drugID]
}

func (kb *KnowledgeBase) TransporterRoles(drugID string) []domain.DrugTransporterRole {
	return kb.transporterRoles[drugID]
}

func (kb *KnowledgeBase) PDEffects(drugID string) []domain.DrugPDEffect {
	return kb.pdEffects[drugID]
}

func (kb *KnowledgeBase) Parameters(drugID string) (*domain.ParameterSet, bool) {
	p, ok := kb.parameters[drugID]
	return p, ok
}

func (kb *KnowledgeBase) Enzyme(id string) (*domain.Enzyme, bool) {
	e, ok := kb.enzymes[id]
	return e, ok
}

func (kb *KnowledgeBase) Transporter(id string) (*domain.Transporter, bool) {
	t, ok := kb.transporters[domain.NormalizeTransporterID(id)]
	return t, ok
}

// PDEffect returns the PD effect domain with the given id.
func (kb *KnowledgeBase) PDEffect(id string) (*domain.PDEffect, bool) {
	e, ok := kb.effects[domain.NormalizeEffectID(id)]
	return e, ok
}

// TransportersInFamily returns the ids of every transporter in family,
// matched case-insensitively.
func (kb *KnowledgeBase) TransportersInFamily(family string) []string {
	return kb.families[strings.ToUpper(strings.TrimSpace(family))]
}

func (kb *KnowledgeBase) LookupName(name string) []string {
	return kb.names[domain.NormalizeName(name)]
}

// IsGenericName reports whether name is the generic name of drug id.
func (kb *KnowledgeBase) IsGenericName(name, id string) bool {
	d, ok := kb.drugs[id]
	return ok && domain.NormalizeName(d.GenericName) == domain.NormalizeName(name)
}

func (kb *KnowledgeBase) Terms() []string {
	return kb.terms
}

func (kb *KnowledgeBase) Stats() domain.KnowledgeBaseStats {
	return kb.stats
}

// Dataset returns the knowledge base in relational form, ordered by drug id.
func (kb *KnowledgeBase) Dataset() *domain.Dataset {
	ds := &domain.Dataset{}
	for _, id := range sortedKeys(kb.enzymes) {
		ds.Enzymes = append(ds.Enzymes, *kb.enzymes[id])
	}
	for _, id := range sortedKeys(kb.transporters) {
		ds.Transporters = append(ds.Transporters, *kb.transporters[id])
	}
	for _, id := range sortedKeys(kb.effects) {
		ds.PDEffects = append(ds.PDEffects, *kb.effects[id])
	}
	for _, id := range kb.DrugIDs() {
		ds.Drugs = append(ds.Drugs, *kb.drugs[id])
		ds.EnzymeRoles = append(ds.EnzymeRoles, kb.enzymeRoles[id]...)
		ds.TransporterRoles = append(ds.TransporterRoles, kb.transporterRoles[id]...)
		ds.DrugPDEffects = append(ds.DrugPDEffects, kb.pdEffects[id]...)
		if p, ok := kb.parameters[id]; ok {
			ds.Parameters = append(ds.Parameters, *p)
		}
	}
	return ds
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
