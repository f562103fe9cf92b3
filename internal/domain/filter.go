package domain

import (
	"fmt"
	"strings"
)

// DomainFilter selects which rule domains take part in an evaluation.
// The zero value selects nothing; use AllDomains or ParseDomainFilter.
type DomainFilter uint8

const (
	filterCYP DomainFilter = 1 << iota
	filterUGT
	filterPGP
	filterBCRP
	filterOATP
	filterPD
)

// Filter presets.
const (
	FilterPK  = filterCYP | filterUGT | filterPGP | filterBCRP | filterOATP
	FilterAll = FilterPK | filterPD
)

var domainBits = map[Domain]DomainFilter{
	DomainCYP:  filterCYP,
	DomainUGT:  filterUGT,
	DomainPGP:  filterPGP,
	DomainBCRP: filterBCRP,
	DomainOATP: filterOATP,
	DomainPD:   filterPD,
}

// AllDomains returns the default filter.
func AllDomains() DomainFilter {
	return FilterAll
}

// FilterOf builds a filter selecting exactly the given domains. DomainPK
// expands to every PK domain.
func FilterOf(domains ...Domain) DomainFilter {
	var f DomainFilter
	for _, d := range domains {
		if d == DomainPK {
			f |= FilterPK
			continue
		}
		f |= domainBits[d]
	}
	return f
}

// ParseDomainFilter parses a comma-separated selection such as "cyp,pd".
// Accepted tokens are the rule domains plus "pk" and "all". An empty string
// selects every domain.
func ParseDomainFilter(raw string) (DomainFilter, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return FilterAll, nil
	}

	var f DomainFilter
	for _, part := range strings.Split(raw, ",") {
		token := strings.TrimSpace(part)
		switch token {
		case "":
			continue
		case "all":
			f |= FilterAll
		case "pk":
			f |= FilterPK
		default:
			bit, ok := domainBits[Domain(token)]
			if !ok {
				return 0, &ValidationError{
					Field:   "domain",
					Message: fmt.Sprintf("unknown domain %q (allowed: all, pk, pd, cyp, ugt, pgp, bcrp, oatp)", token),
					Value:   raw,
				}
			}
			f |= bit
		}
	}
	if f == 0 {
		return FilterAll, nil
	}
	return f, nil
}

// Allows reports whether d passes the filter. DomainPK passes when any PK
// domain is selected.
func (f DomainFilter) Allows(d Domain) bool {
	if d == DomainPK {
		return f&FilterPK != 0
	}
	bit, ok := domainBits[d]
	return ok && f&bit != 0
}

// Domains returns the selected domains in display order.
func (f DomainFilter) Domains() []Domain {
	out := make([]Domain, 0, len(RuleDomains))
	for _, d := range RuleDomains {
		if f.Allows(d) {
			out = append(out, d)
		}
	}
	return out
}

// String renders the filter as a comma-separated list of domains.
func (f DomainFilter) String() string {
	domains := f.Domains()
	parts := make([]string, len(domains))
	for i, d := range domains {
		parts[i] = string(d)
	}
	return strings.Join(parts, ",")
}
