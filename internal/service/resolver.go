package service

import (
	"errors"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/pharmds-ddi-server/internal/domain"
)

const (
	maxSuggestions = 5
	// minSimilarity is the lowest 1 - distance/length accepted as a
	// suggestion.
	minSimilarity = 0.6
)

// Resolver maps user-supplied names onto canonical drug ids: exact generic
// name first, then alias.
type Resolver struct {
	kb domain.KnowledgeBase
}

// NewResolver creates a resolver over kb.
func NewResolver(kb domain.KnowledgeBase) *Resolver {
	return &Resolver{kb: kb}
}

// Resolve returns the drug id for name. Unknown names produce a
// *domain.NotFoundError with suggestions; a name owned by several drugs
// produces a *domain.AmbiguousNameError.
func (r *Resolver) Resolve(name string) (string, error) {
	key := domain.NormalizeName(name)
	if key == "" {
		return "", domain.NewValidationError("drug", "drug name cannot be empty", name)
	}

	ids := r.kb.LookupName(key)
	switch len(ids) {
	case 0:
		return "", &domain.NotFoundError{Name: strings.TrimSpace(name), Suggestions: r.Suggest(key)}
	case 1:
		return ids[0], nil
	}

	var generic []string
	for _, id := range ids {
		if d, ok := r.kb.Drug(id); ok && domain.NormalizeName(d.GenericName) == key {
			generic = append(generic, id)
		}
	}
	if len(generic) == 1 {
		return generic[0], nil
	}
	candidates := append([]string(nil), ids...)
	sort.Strings(candidates)
	return "", &domain.AmbiguousNameError{Name: strings.TrimSpace(name), Candidates: candidates}
}

// ResolveAll resolves every name. Ids are returned in input order with
// duplicates removed, so "coumadin" and "warfarin" count once. All failures
// are reported together.
func (r *Resolver) ResolveAll(names []string) ([]string, error) {
	var (
		ids  = make([]string, 0, len(names))
		seen = make(map[string]bool, len(names))
		errs []error
	)
	for _, name := range names {
		id, err := r.Resolve(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return ids, nil
}

// Suggest returns up to five known names close to name, best first.
func (r *Resolver) Suggest(name string) []string {
	key := domain.NormalizeName(name)
	if key == "" {
		return nil
	}

	type candidate struct {
		term     string
		distance int
	}
	var candidates []candidate
	for _, term := range r.kb.Terms() {
		d := levenshtein.ComputeDistance(key, term)
		if similarity(d, key, term) >= minSimilarity || strings.HasPrefix(term, key) {
			candidates = append(candidates, candidate{term: term, distance: d})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].term < candidates[j].term
	})

	out := make([]string, 0, maxSuggestions)
	for _, c := range candidates {
		if len(out) == maxSuggestions {
			break
		}
		out = append(out, c.term)
	}
	return out
}

func similarity(distance int, a, b string) float64 {
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(distance)/float64(longest)
}

// IsResolutionError reports whether err came from name resolution rather
// than from evaluation.
func IsResolutionError(err error) bool {
	return errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrAmbiguousName)
}

