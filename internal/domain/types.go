// Package domain contains the core entities and typed enumerations of the
// drug–drug interaction reasoner: knowledge base facts, declarative rules,
// findings and the two ranked scales (severity and rule class) that every
// conclusion is reported on.
//
// Severity answers "how much harm is plausible"; rule class answers "what
// action posture follows". The two axes are independent and are always
// aggregated separately.
package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Severity represents the plausible harm magnitude of an interaction.
// Severities form a total order: info < caution < major < contraindicated.
type Severity string

const (
	SeverityInfo            Severity = "info"
	SeverityCaution         Severity = "caution"
	SeverityMajor           Severity = "major"
	SeverityContraindicated Severity = "contraindicated"
)

// RuleClass represents the recommended action posture of an interaction.
// Classes form a total order: info < caution < adjust_monitor < avoid.
type RuleClass string

const (
	ClassInfo          RuleClass = "info"
	ClassCaution       RuleClass = "caution"
	ClassAdjustMonitor RuleClass = "adjust_monitor"
	ClassAvoid         RuleClass = "avoid"
)

// Domain is the mechanism domain a rule belongs to.
type Domain string

const (
	DomainCYP  Domain = "cyp"
	DomainUGT  Domain = "ugt"
	DomainPGP  Domain = "pgp"
	DomainBCRP Domain = "bcrp"
	DomainOATP Domain = "oatp"
	DomainPD   Domain = "pd"

	// DomainPK labels findings that combine several PK domains. It is never
	// a valid rule domain.
	DomainPK Domain = "pk"
)

// Role is the part a drug plays with respect to an enzyme or transporter.
type Role string

const (
	RoleSubstrate Role = "substrate"
	RoleInhibitor Role = "inhibitor"
	RoleInducer   Role = "inducer"
)

// Strength qualifies inhibitor and inducer roles.
type Strength string

const (
	StrengthWeak     Strength = "weak"
	StrengthModerate Strength = "moderate"
	StrengthStrong   Strength = "strong"
)

// TherapeuticIndex is the margin between effective and toxic exposure.
type TherapeuticIndex string

const (
	TIWide     TherapeuticIndex = "wide"
	TIModerate TherapeuticIndex = "moderate"
	TINarrow   TherapeuticIndex = "narrow"
)

// Direction of a drug's pharmacodynamic effect.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
)

// Magnitude of a drug's pharmacodynamic effect.
type Magnitude string

const (
	MagnitudeLow    Magnitude = "low"
	MagnitudeMedium Magnitude = "medium"
	MagnitudeHigh   Magnitude = "high"
)

// HalfLifeBucket is a coarse elimination half-life category.
type HalfLifeBucket string

const (
	HalfLifeShort  HalfLifeBucket = "short"
	HalfLifeMedium HalfLifeBucket = "medium"
	HalfLifeLong   HalfLifeBucket = "long"
)

// Exposure is the direction a PK interaction moves the affected drug's exposure.
type Exposure string

const (
	ExposureIncrease Exposure = "increase"
	ExposureDecrease Exposure = "decrease"
)

// FindingKind separates directional PK findings, symmetric PD findings and
// findings derived from other findings.
type FindingKind string

const (
	KindPK        FindingKind = "pk"
	KindPD        FindingKind = "pd"
	KindComposite FindingKind = "composite"
)

// Enumeration errors
var (
	ErrInvalidSeverity     = errors.New("invalid severity")
	ErrInvalidRuleClass    = errors.New("invalid rule class")
	ErrInvalidDomain       = errors.New("invalid domain")
	ErrInvalidDomainFilter = errors.New("invalid domain filter")
)

var severityRank = map[Severity]int{
	SeverityInfo:            0,
	SeverityCaution:         1,
	SeverityMajor:           2,
	SeverityContraindicated: 3,
}

// IsValid reports whether s is one of the four defined severities.
func (s Severity) IsValid() bool {
	_, ok := severityRank[s]
	return ok
}

// Rank returns the position of s in the severity order, or -1 if s is invalid.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// Compare returns -1, 0 or +1 depending on whether s ranks below, equal to or
// above other.
func (s Severity) Compare(other Severity) int {
	switch a, b := s.Rank(), other.Rank(); {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// AtLeast returns s raised to floor when s ranks below it. It never lowers s.
func (s Severity) AtLeast(floor Severity) Severity {
	if s.Compare(floor) < 0 {
		return floor
	}
	return s
}

func (s Severity) String() string {
	return string(s)
}

// MaxSeverity returns the highest-ranked severity, or info when none are given.
func MaxSeverity(severities ...Severity) Severity {
	out := SeverityInfo
	for _, s := range severities {
		if s.Compare(out) > 0 {
			out = s
		}
	}
	return out
}

// ParseSeverity converts a raw string into a Severity.
func ParseSeverity(raw string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSeverity, raw)
	}
	return s, nil
}

var classRank = map[RuleClass]int{
	ClassInfo:          0,
	ClassCaution:       1,
	ClassAdjustMonitor: 2,
	ClassAvoid:         3,
}

// IsValid reports whether c is one of the four defined rule classes.
func (c RuleClass) IsValid() bool {
	_, ok := classRank[c]
	return ok
}

// Rank returns the position of c in the class order, or -1 if c is invalid.
func (c RuleClass) Rank() int {
	if r, ok := classRank[c]; ok {
		return r
	}
	return -1
}

// Compare returns -1, 0 or +1 depending on whether c ranks below, equal to or
// above other.
func (c RuleClass) Compare(other RuleClass) int {
	switch a, b := c.Rank(), other.Rank(); {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (c RuleClass) String() string {
	return string(c)
}

// MaxRuleClass returns the highest-ranked class, or info when none are given.
func MaxRuleClass(classes ...RuleClass) RuleClass {
	out := ClassInfo
	for _, c := range classes {
		if c.Compare(out) > 0 {
			out = c
		}
	}
	return out
}

// ParseRuleClass converts a raw string into a RuleClass.
func ParseRuleClass(raw string) (RuleClass, error) {
	c := RuleClass(strings.ToLower(strings.TrimSpace(raw)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRuleClass, raw)
	}
	return c, nil
}

// RuleDomains lists every domain a rule may be tagged with, in display order.
var RuleDomains = []Domain{DomainCYP, DomainUGT, DomainPGP, DomainBCRP, DomainOATP, DomainPD}

// PKDomains lists the pharmacokinetic rule domains.
var PKDomains = []Domain{DomainCYP, DomainUGT, DomainPGP, DomainBCRP, DomainOATP}

// IsValid reports whether d may be used as a rule domain.
func (d Domain) IsValid() bool {
	switch d {
	case DomainCYP, DomainUGT, DomainPGP, DomainBCRP, DomainOATP, DomainPD:
		return true
	default:
		return false
	}
}

// IsPK reports whether d is a pharmacokinetic domain.
func (d Domain) IsPK() bool {
	switch d {
	case DomainCYP, DomainUGT, DomainPGP, DomainBCRP, DomainOATP, DomainPK:
		return true
	default:
		return false
	}
}

// IsEnzyme reports whether d is an enzyme-mediated domain.
func (d Domain) IsEnzyme() bool {
	return d == DomainCYP || d == DomainUGT
}

// IsTransporter reports whether d is a transporter-mediated domain.
func (d Domain) IsTransporter() bool {
	return d == DomainPGP || d == DomainBCRP || d == DomainOATP
}

func (d Domain) String() string {
	return string(d)
}

// IsValid reports whether r is a defined role.
func (r Role) IsValid() bool {
	switch r {
	case RoleSubstrate, RoleInhibitor, RoleInducer:
		return true
	default:
		return false
	}
}

// IsPerpetrator reports whether r changes the exposure of co-administered
// substrates.
func (r Role) IsPerpetrator() bool {
	return r == RoleInhibitor || r == RoleInducer
}

// Exposure returns the exposure direction a perpetrator role causes on a
// substrate. Substrates return the empty Exposure.
func (r Role) Exposure() Exposure {
	switch r {
	case RoleInhibitor:
		return ExposureIncrease
	case RoleInducer:
		return ExposureDecrease
	default:
		return ""
	}
}

// IsValid reports whether s is a defined strength.
func (s Strength) IsValid() bool {
	switch s {
	case StrengthWeak, StrengthModerate, StrengthStrong:
		return true
	default:
		return false
	}
}

// IsValid reports whether ti is a defined therapeutic index.
func (ti TherapeuticIndex) IsValid() bool {
	switch ti {
	case TIWide, TIModerate, TINarrow:
		return true
	default:
		return false
	}
}

// IsValid reports whether d is a defined direction.
func (d Direction) IsValid() bool {
	return d == DirectionIncrease || d == DirectionDecrease
}

var magnitudeRank = map[Magnitude]int{
	MagnitudeLow:    1,
	MagnitudeMedium: 2,
	MagnitudeHigh:   3,
}

// IsValid reports whether m is a defined magnitude.
func (m Magnitude) IsValid() bool {
	_, ok := magnitudeRank[m]
	return ok
}

// Rank returns 1 (low) to 3 (high), or 0 for an invalid magnitude.
func (m Magnitude) Rank() int {
	return magnitudeRank[m]
}

// AtLeast reports whether m reaches min. An empty min is always reached.
func (m Magnitude) AtLeast(min Magnitude) bool {
	if min == "" {
		return true
	}
	return m.Rank() >= min.Rank()
}

// IsValid reports whether b is a defined half-life bucket.
func (b HalfLifeBucket) IsValid() bool {
	switch b {
	case HalfLifeShort, HalfLifeMedium, HalfLifeLong:
		return true
	default:
		return false
	}
}

// IsValid reports whether e is a defined exposure direction.
func (e Exposure) IsValid() bool {
	return e == ExposureIncrease || e == ExposureDecrease
}

// Tag returns the finding tag used for e ("exposure_increase" or
// "exposure_decrease").
func (e Exposure) Tag() string {
	if e == "" {
		return ""
	}
	return "exposure_" + string(e)
}
