package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pharmds-ddi-server/internal/domain"
)

// Set is an immutable, validated rule set ordered by rule id.
type Set struct {
	rules  []domain.Rule
	byID   map[string]int
	pdBase map[string]domain.Severity
}

// NewSet validates rules and indexes them. Rule ids must be unique.
func NewSet(rs []domain.Rule) (*Set, error) {
	rules := append([]domain.Rule(nil), rs...)
	sortRules(rules)

	var errs domain.ValidationErrors
	s := &Set{
		rules:  rules,
		byID:   make(map[string]int, len(rules)),
		pdBase: make(map[string]domain.Severity),
	}
	for i := range rules {
		r := &rules[i]
		if err := r.Validate(); err != nil {
			var list domain.ValidationErrors
			if errors.As(err, &list) {
				errs = append(errs, list.Prefix(r.ID)...)
			} else {
				errs.Append(err)
			}
			continue
		}
		if _, dup := s.byID[r.ID]; dup {
			errs.Add("id", "duplicate rule id", r.ID)
			continue
		}
		s.byID[r.ID] = i

		if m, ok := r.Mechanism.(domain.PDOverlapMechanism); ok {
			if cur, seen := s.pdBase[m.EffectID]; !seen || r.Severity.Compare(cur) > 0 {
				s.pdBase[m.EffectID] = r.Severity
			}
		}
	}
	if err := errs.Err(); err != nil {
		return nil, fmt.Errorf("rule set: %w", err)
	}
	return s, nil
}

// All returns every rule ordered by id. The slice must not be modified.
func (s *Set) All() []domain.Rule {
	return s.rules
}

// Len returns the number of rules.
func (s *Set) Len() int {
	return len(s.rules)
}

// ByID returns the rule with the given id.
func (s *Set) ByID(id string) (*domain.Rule, bool) {
	i, ok := s.byID[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return nil, false
	}
	return &s.rules[i], true
}

// Filter returns the rules whose domain passes f.
func (s *Set) Filter(f domain.DomainFilter) []domain.Rule {
	out := make([]domain.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		if f.Allows(r.Domain) {
			out = append(out, r)
		}
	}
	return out
}

// PDBaseSeverity returns the severity of the PD overlap rule for effectID.
// When several rules cover the same effect the highest severity wins.
func (s *Set) PDBaseSeverity(effectID string) (domain.Severity, bool) {
	sev, ok := s.pdBase[domain.NormalizeEffectID(effectID)]
	return sev, ok
}

// PDEffectIDs returns the effect ids covered by a PD overlap rule.
func (s *Set) PDEffectIDs() []string {
	ids := make([]string, 0, len(s.pdBase))
	for id := range s.pdBase {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CountByDomain returns the number of rules per domain.
func (s *Set) CountByDomain() map[domain.Domain]int {
	out := make(map[domain.Domain]int)
	for _, r := range s.rules {
		out[r.Domain]++
	}
	return out
}

// Digest returns a stable sha256 over the canonical form of every rule.
func (s *Set) Digest() string {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for i := range s.rules {
		// File holds only strings, slices and pointers; encoding cannot fail.
		_ = enc.Encode(FileFromRule(&s.rules[i]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateAgainst checks that every enzyme, transporter, family and effect a
// rule references exists in kb and that enzyme and transporter families agree
// with the rule's domain.
func (s *Set) ValidateAgainst(kb domain.KnowledgeBase) error {
	var errs domain.ValidationErrors
	for _, r := range s.rules {
		field := r.ID
		switch m := r.Mechanism.(type) {
		case domain.EnzymeMechanism:
			e, ok := kb.Enzyme(m.EnzymeID)
			if !ok {
				errs.Add(field+".enzyme.id", "unknown enzyme", m.EnzymeID)
				continue
			}
			if d, _ := domain.DomainForEnzymeFamily(e.Family); d != r.Domain {
				errs.Add(field+".domain", fmt.Sprintf("enzyme %s belongs to family %s", e.ID, e.Family), r.Domain)
			}
		case domain.TransporterMechanism:
			family := m.Family
			if m.TransporterID != "" {
				t, ok := kb.Transporter(m.TransporterID)
				if !ok {
					errs.Add(field+".transporter.id", "unknown transporter", m.TransporterID)
					continue
				}
				family = t.Family
			} else if len(kb.TransportersInFamily(m.Family)) == 0 {
				errs.Add(field+".transporter.family", "no transporter in family", m.Family)
				continue
			}
			if d, _ := domain.DomainForTransporterFamily(family); d != r.Domain {
				errs.Add(field+".domain", fmt.Sprintf("transporter family %s does not belong to domain %s", family, r.Domain), r.Domain)
			}
		case domain.PDOverlapMechanism:
			if _, ok := kb.PDEffect(m.EffectID); !ok {
				errs.Add(field+".pd_overlap.effect_id", "unknown pd effect", m.EffectID)
			}
		}
	}
	if err := errs.Err(); err != nil {
		return fmt.Errorf("rules do not match knowledge base: %w", err)
	}
	return nil
}
