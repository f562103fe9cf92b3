package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmds-ddi-server/internal/domain"
)

func cautionFinding(id string, d domain.Domain) domain.Finding {
	return domain.Finding{
		ID:          id,
		RuleID:      id,
		Kind:        domain.KindPK,
		Domain:      d,
		Severity:    domain.SeverityCaution,
		Class:       domain.ClassAdjustMonitor,
		Exposure:    domain.ExposureIncrease,
		Explanation: id + " raises exposure.",
		Actions:     []string{"Monitor levels."},
	}
}

func TestAssembler_PKSubstitutesNames(t *testing.T) {
	as := NewAssembler()
	rule := &domain.Rule{
		ID:                  "PK_TEST",
		Domain:              domain.DomainPGP,
		Severity:            domain.SeverityCaution,
		Class:               domain.ClassAdjustMonitor,
		Tags:                []string{"pgp"},
		Mechanism:           domain.TransporterMechanism{TransporterID: domain.TransporterPGP, ARole: domain.RoleSubstrate, BRole: domain.RoleInhibitor},
		ExplanationTemplate: "{B_name} inhibits {transporter_id}; watch {A_name}.",
		Actions:             []string{"Check {A_name} levels."},
		References:          []domain.Reference{{Citation: "Label"}},
	}
	a := &domain.Drug{ID: "digoxin", GenericName: "digoxin", TherapeuticIndex: domain.TINarrow}
	b := &domain.Drug{ID: "verapamil", GenericName: "verapamil"}

	// Act
	f := as.PK(rule, a, b, domain.TransporterPGP, nil)
	as.EscalateNarrowTI(&f, a)

	// Assert
	assert.Equal(t, "PK_TEST:digoxin:verapamil", f.ID)
	assert.Equal(t, "verapamil inhibits P-gp; watch digoxin.", f.Explanation)
	assert.Equal(t, []string{"Check digoxin levels."}, f.Actions)
	assert.Equal(t, []string{"Label"}, f.References)
	assert.Equal(t, domain.SeverityCaution, f.BaseSeverity)
	assert.Equal(t, domain.SeverityMajor, f.Severity)
	assert.True(t, f.Escalated)
	assert.Equal(t, []string{"exposure_increase", TagNarrowTIEscalation, "pgp"}, f.Tags)
}

func TestAssembler_EscalateNarrowTIKeepsHigherSeverity(t *testing.T) {
	f := domain.Finding{Severity: domain.SeverityContraindicated}

	NewAssembler().EscalateNarrowTI(&f, &domain.Drug{ID: "x", TherapeuticIndex: domain.TINarrow})

	assert.Equal(t, domain.SeverityContraindicated, f.Severity)
	assert.False(t, f.Escalated)
}

func TestAssembler_PDOrdersParticipants(t *testing.T) {
	rule := &domain.Rule{
		ID:                  "PD_TEST",
		Severity:            domain.SeverityCaution,
		Class:               domain.ClassAdjustMonitor,
		ExplanationTemplate: "{A_name} with {B_name} on {effect_id}.",
	}
	z := &domain.Drug{ID: "zolpidem", GenericName: "zolpidem"}
	a := &domain.Drug{ID: "alprazolam", GenericName: "alprazolam"}

	tests := []struct {
		name         string
		aMag, bMag   domain.Magnitude
		wantSeverity domain.Severity
	}{
		{"low magnitude keeps base", domain.MagnitudeLow, domain.MagnitudeHigh, domain.SeverityCaution},
		{"medium on both sides escalates", domain.MagnitudeMedium, domain.MagnitudeHigh, domain.SeverityMajor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewAssembler().PD(rule, z, a, "CNS_depression", tt.aMag, tt.bMag)

			assert.Equal(t, "PD_TEST:alprazolam:zolpidem", f.ID)
			assert.Equal(t, "alprazolam with zolpidem on CNS_depression.", f.Explanation)
			assert.Equal(t, tt.wantSeverity, f.Severity)
			assert.Equal(t, domain.DomainPD, f.Domain)
		})
	}
}

func TestMultiMechanismID(t *testing.T) {
	tests := []struct {
		domains []domain.Domain
		want    string
	}{
		{[]domain.Domain{domain.DomainCYP, domain.DomainPGP}, "PK_DUAL_MECH_INCREASE"},
		{[]domain.Domain{domain.DomainCYP, domain.DomainUGT}, "PK_DUAL_MECH_INCREASE_CYP_UGT"},
		{[]domain.Domain{domain.DomainUGT, domain.DomainPGP}, "PK_DUAL_MECH_INCREASE_UGT_PGP"},
		{[]domain.Domain{domain.DomainBCRP, domain.DomainOATP}, "PK_MULTI_MECH_INCREASE"},
		{[]domain.Domain{domain.DomainCYP, domain.DomainUGT, domain.DomainPGP}, "PK_MULTI_MECH_INCREASE"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MultiMechanismID(tt.domains))
	}
}

func TestAssembler_MultiMechanismEscalation(t *testing.T) {
	a := &domain.Drug{ID: "raltegravir", GenericName: "raltegravir"}
	b := &domain.Drug{ID: "atazanavir", GenericName: "atazanavir"}
	sources := []domain.Finding{
		cautionFinding("PK_UGT:raltegravir:atazanavir", domain.DomainUGT),
		cautionFinding("PK_CYP:raltegravir:atazanavir", domain.DomainCYP),
	}
	domains := []domain.Domain{domain.DomainCYP, domain.DomainUGT}

	plain := NewAssembler().MultiMechanism(a, b, domains, sources, false)
	escalated := NewAssembler().MultiMechanism(a, b, domains, sources, true)

	assert.Equal(t, domain.SeverityCaution, plain.Severity)
	assert.False(t, plain.Escalated)
	assert.Equal(t, domain.SeverityMajor, escalated.Severity)
	assert.True(t, escalated.Escalated)
	assert.Equal(t, "CYP+UGT", escalated.Target)
	assert.Equal(t, []string{"PK_CYP:raltegravir:atazanavir", "PK_UGT:raltegravir:atazanavir"}, escalated.DerivedFrom)
	assert.Contains(t, escalated.Tags, TagDualMechanism)
	assert.Equal(t, []string{"Monitor levels."}, escalated.Actions)
}

func TestAssembler_CompositeTakesHighestSeverity(t *testing.T) {
	a := &domain.Drug{ID: "midazolam", GenericName: "midazolam"}
	b := &domain.Drug{ID: "atazanavir", GenericName: "atazanavir"}
	effect := domain.DrugPDEffect{DrugID: "midazolam", EffectID: "CNS_depression", Direction: domain.DirectionIncrease, Magnitude: domain.MagnitudeMedium}
	src := cautionFinding("PK_CYP:midazolam:atazanavir", domain.DomainCYP)
	src.Target = "CYP3A4"

	f := NewAssembler().Composite(a, b, effect, domain.SeverityMajor, []domain.Finding{src})

	require.Equal(t, "COMP_PK_UP_CNS_DEPRESSION", f.RuleID)
	assert.Equal(t, "COMP_PK_UP_CNS_DEPRESSION:midazolam:atazanavir", f.ID)
	assert.Equal(t, domain.SeverityMajor, f.Severity)
	assert.Equal(t, domain.SeverityCaution, f.BaseSeverity)
	assert.Equal(t, domain.ClassAdjustMonitor, f.Class)
	assert.Equal(t, domain.KindComposite, f.Kind)
	assert.Equal(t, []string{src.ID}, f.DerivedFrom)
	assert.Contains(t, f.Rationale[0], "via CYP3A4")
	assert.Len(t, f.Actions, 2)
}

func TestAggregate(t *testing.T) {
	t.Run("empty is info", func(t *testing.T) {
		sev, class := Aggregate()

		assert.Equal(t, domain.SeverityInfo, sev)
		assert.Equal(t, domain.ClassInfo, class)
	})

	t.Run("maxima are independent", func(t *testing.T) {
		sev, class := Aggregate(
			[]domain.Finding{{Severity: domain.SeverityMajor, Class: domain.ClassAdjustMonitor}},
			[]domain.Finding{{Severity: domain.SeverityCaution, Class: domain.ClassAvoid}},
		)

		assert.Equal(t, domain.SeverityMajor, sev)
		assert.Equal(t, domain.ClassAvoid, class)
	})
}
