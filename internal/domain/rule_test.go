package domain

import (
	"errors"
	"strings"
	"testing"
)

func validEnzymeRule() *Rule {
	return &Rule{
		ID:       "PK_CYP3A4_STRONG_INHIB",
		Name:     "Strong CYP3A4 inhibition",
		Domain:   DomainCYP,
		Severity: SeverityMajor,
		Class:    ClassAdjustMonitor,
		Mechanism: EnzymeMechanism{
			EnzymeID: "CYP3A4",
			ARole:    RoleSubstrate,
			BRole:    RoleInhibitor,
			Strength: StrengthRequirement{Exact: StrengthStrong},
		},
		ExplanationTemplate: "{B_name} strongly inhibits {enzyme_id}, increasing {A_name} exposure.",
	}
}

func TestRuleValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *Rule)
		wantField string
	}{
		{"valid", func(r *Rule) {}, ""},
		{"lowercase id", func(r *Rule) { r.ID = "pk_cyp" }, "id"},
		{"missing mechanism", func(r *Rule) { r.Mechanism = nil }, "mechanism"},
		{"invalid severity", func(r *Rule) { r.Severity = "severe" }, "severity"},
		{"invalid class", func(r *Rule) { r.Class = "monitor" }, "rule_class"},
		{"enzyme rule in pgp domain", func(r *Rule) { r.Domain = DomainPGP }, "domain"},
		{"unknown placeholder", func(r *Rule) { r.ExplanationTemplate = "{C_name} interacts" }, "explanation_template"},
		{
			"substrate perpetrator",
			func(r *Rule) {
				r.Mechanism = EnzymeMechanism{EnzymeID: "CYP3A4", ARole: RoleSubstrate, BRole: RoleSubstrate}
			},
			"enzyme.b_role",
		},
		{
			"both strength forms",
			func(r *Rule) {
				r.Mechanism = EnzymeMechanism{
					EnzymeID: "CYP3A4",
					ARole:    RoleSubstrate,
					BRole:    RoleInhibitor,
					Strength: StrengthRequirement{Exact: StrengthStrong, AnyOf: []Strength{StrengthModerate}},
				}
			},
			"enzyme.b_strength",
		},
		{
			"transporter without target",
			func(r *Rule) {
				r.Domain = DomainPGP
				r.Mechanism = TransporterMechanism{ARole: RoleSubstrate, BRole: RoleInhibitor}
			},
			"transporter",
		},
		{
			"pd rule with guard",
			func(r *Rule) {
				r.Domain = DomainPD
				r.Mechanism = PDOverlapMechanism{EffectID: EffectQTProlongation}
				r.Guards.ATherapeuticIndex = TINarrow
			},
			"guards",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validEnzymeRule()
			tt.mutate(r)
			err := r.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Unexpected error: %v", err)
				}
				return
			}
			var errs ValidationErrors
			if !errors.As(err, &errs) {
				t.Fatalf("Expected ValidationErrors, got %v", err)
			}
			found := false
			for _, e := range errs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected a violation on %s, got %v", tt.wantField, err)
			}
			if !strings.HasPrefix(err.Error(), "rule "+r.ID) {
				t.Errorf("Expected rule id in message, got %s", err.Error())
			}
		})
	}
}

func TestStrengthRequirementAccepts(t *testing.T) {
	tests := []struct {
		name     string
		req      StrengthRequirement
		strength Strength
		expected bool
	}{
		{"empty accepts none", StrengthRequirement{}, "", true},
		{"empty accepts weak", StrengthRequirement{}, StrengthWeak, true},
		{"exact match", StrengthRequirement{Exact: StrengthStrong}, StrengthStrong, true},
		{"exact mismatch", StrengthRequirement{Exact: StrengthStrong}, StrengthModerate, false},
		{"any of match", StrengthRequirement{AnyOf: []Strength{StrengthModerate, StrengthStrong}}, StrengthModerate, true},
		{"any of mismatch", StrengthRequirement{AnyOf: []Strength{StrengthModerate, StrengthStrong}}, StrengthWeak, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.Accepts(tt.strength); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestRuleExposureFor(t *testing.T) {
	r := validEnzymeRule()
	if got := r.ExposureFor(); got != ExposureIncrease {
		t.Errorf("Expected inhibitor rule to increase exposure, got %s", got)
	}

	r.Exposure = ExposureDecrease
	if got := r.ExposureFor(); got != ExposureDecrease {
		t.Errorf("Expected explicit exposure to win, got %s", got)
	}

	pd := &Rule{Domain: DomainPD, Mechanism: PDOverlapMechanism{EffectID: EffectBleeding}}
	if got := pd.ExposureFor(); got != "" {
		t.Errorf("Expected no exposure for PD rule, got %s", got)
	}
}

func TestDomainForTransporterFamily(t *testing.T) {
	tests := []struct {
		family string
		domain Domain
		ok     bool
	}{
		{"ABCB1", DomainPGP, true},
		{"abcg2", DomainBCRP, true},
		{"OATP", DomainOATP, true},
		{"SLCO1B1", DomainOATP, true},
		{"SLC22", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.family, func(t *testing.T) {
			d, ok := DomainForTransporterFamily(tt.family)
			if d != tt.domain || ok != tt.ok {
				t.Errorf("Expected (%s, %v), got (%s, %v)", tt.domain, tt.ok, d, ok)
			}
		})
	}
}

func TestFindingID(t *testing.T) {
	if got := FindingID("PK_CYP3A4_STRONG_INHIB", "quetiapine", "clarithromycin"); got != "PK_CYP3A4_STRONG_INHIB:quetiapine:clarithromycin" {
		t.Errorf("Unexpected finding id %s", got)
	}
}
