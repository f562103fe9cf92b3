package service

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/pharmds-ddi-server/internal/repository"
	"github.com/pharmds-ddi-server/internal/snapshot"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func seedSnapshot(t *testing.T) *snapshot.Snapshot {
	t.Helper()
	snap, err := snapshot.NewBuilder(repository.NewCurationRepository(""), "", quietLogger()).Build(context.Background())
	require.NoError(t, err)
	return snap
}

func evaluate(t *testing.T, snap *snapshot.Snapshot, filter domain.DomainFilter, ids ...string) *domain.EvaluationResult {
	t.Helper()
	res, err := NewEvaluator(domain.DefaultEngineConfig()).Evaluate(snap.KB, snap.Rules, ids, filter)
	require.NoError(t, err)
	return res
}

func findRule(fs []domain.Finding, ruleID string) *domain.Finding {
	for i := range fs {
		if fs[i].RuleID == ruleID {
			return &fs[i]
		}
	}
	return nil
}

func ruleIDs(fs []domain.Finding) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.RuleID
	}
	return out
}

func TestEvaluate_QuetiapineClarithromycin(t *testing.T) {
	snap := seedSnapshot(t)

	// Act
	res := evaluate(t, snap, domain.AllDomains(), "clarithromycin", "quetiapine")

	// Assert
	require.Len(t, res.PK, 1)
	pk := res.PK[0]
	assert.Equal(t, "PK_CYP3A4_STRONG_INHIB", pk.RuleID)
	assert.Equal(t, domain.SeverityMajor, pk.Severity)
	assert.Equal(t, domain.ClassAdjustMonitor, pk.Class)
	assert.Equal(t, "quetiapine", pk.Affected.ID)
	assert.Equal(t, "clarithromycin", pk.Interacting.ID)
	assert.Equal(t, "CYP3A4", pk.Target)
	assert.Equal(t, domain.ExposureIncrease, pk.Exposure)
	assert.Contains(t, pk.Tags, "exposure_increase")
	assert.Equal(t, "clarithromycin strongly inhibits CYP3A4, which can markedly increase exposure to quetiapine.", pk.Explanation)
	assert.Contains(t, pk.Rationale[len(pk.Rationale)-1], "fraction_metabolized 0.90")

	assert.Empty(t, res.PD)

	comp := findRule(res.Composite, "COMP_PK_UP_CNS_DEPRESSION")
	require.NotNil(t, comp)
	assert.GreaterOrEqual(t, comp.Severity.Rank(), domain.SeverityMajor.Rank())
	assert.Equal(t, []string{pk.ID}, comp.DerivedFrom)
	assert.Equal(t, domain.ClassAdjustMonitor, comp.Class)
	assert.Nil(t, findRule(res.Composite, "COMP_PK_UP_ANTICHOLINERGIC"), "low magnitude effects do not qualify")
	assert.Nil(t, findRule(res.Composite, "COMP_PK_UP_HYPOTENSION"), "effects without a PD rule do not qualify")

	assert.Equal(t, domain.SeverityMajor, res.OverallSeverity)
	assert.Equal(t, domain.ClassAdjustMonitor, res.OverallClass)
}

func TestEvaluate_CitalopramOndansetron(t *testing.T) {
	snap := seedSnapshot(t)

	res := evaluate(t, snap, domain.AllDomains(), "citalopram", "ondansetron")

	assert.Empty(t, res.PK)
	require.Len(t, res.PD, 1)
	pd := res.PD[0]
	assert.Equal(t, "PD_QT_ADDITIVE", pd.RuleID)
	assert.Equal(t, domain.SeverityMajor, pd.Severity)
	assert.Equal(t, domain.ClassAvoid, pd.Class)
	assert.Equal(t, []string{"citalopram", "ondansetron"}, pd.DrugIDs())
	assert.Equal(t, domain.SeverityMajor, res.OverallSeverity)
	assert.Equal(t, domain.ClassAvoid, res.OverallClass)
}

func TestEvaluate_GoldenPairs(t *testing.T) {
	snap := seedSnapshot(t)

	tests := []struct {
		name         string
		drugs        []string
		wantRules    []string
		notRules     []string
		wantSeverity domain.Severity
	}{
		{"strong induction", []string{"midazolam", "rifampin"}, []string{"PK_CYP3A4_STRONG_INDUC"}, []string{"COMP_PK_UP_CNS_DEPRESSION"}, domain.SeverityMajor},
		{"prodrug activation blocked", []string{"clopidogrel", "fluconazole"}, []string{"PK_CYP2C19_INHIB_CLOPIDOGREL"}, []string{"COMP_PK_UP_BLEEDING"}, domain.SeverityMajor},
		{"warfarin with bleeding composite", []string{"warfarin", "fluconazole"}, []string{"PK_CYP2C9_INHIB_WARFARIN", "COMP_PK_UP_BLEEDING"}, nil, domain.SeverityMajor},
		{"digoxin p-gp inhibition", []string{"digoxin", "clarithromycin"}, []string{"PK_PGP_INHIB_DIGOXIN"}, nil, domain.SeverityMajor},
		{"serotonin syndrome", []string{"desvenlafaxine", "sertraline"}, []string{"PD_SEROTONIN_SYNDROME_ADDITIVE"}, []string{"PD_SEROTONERGIC_ADDITIVE"}, domain.SeverityMajor},
		{"dual cyp and p-gp", []string{"tacrolimus", "clarithromycin"}, []string{"PK_CYP3A4_STRONG_INHIB", "PK_PGP_INHIB_DIGOXIN", "PK_DUAL_MECH_INCREASE"}, nil, domain.SeverityMajor},
		{"dual cyp and ugt", []string{"irinotecan", "atazanavir"}, []string{"PK_CYP3A4_STRONG_INHIB", "PK_UGT1A1_INHIB", "PK_DUAL_MECH_INCREASE_CYP_UGT"}, nil, domain.SeverityMajor},
		{"bcrp and oatp", []string{"rosuvastatin", "cyclosporine"}, []string{"PK_BCRP_INHIB_SUBSTRATE", "PK_OATP_INHIB", "PK_MULTI_MECH_INCREASE"}, []string{"PK_DUAL_MECH_INCREASE"}, domain.SeverityMajor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := evaluate(t, snap, domain.AllDomains(), tt.drugs...)

			got := ruleIDs(res.All())
			for _, id := range tt.wantRules {
				assert.Contains(t, got, id)
			}
			for _, id := range tt.notRules {
				assert.NotContains(t, got, id)
			}
			assert.Equal(t, tt.wantSeverity, res.OverallSeverity)
		})
	}
}

func TestEvaluate_NegativePairs(t *testing.T) {
	snap := seedSnapshot(t)

	pairs := [][]string{
		{"midazolam", "fluconazole"},
		{"clopidogrel", "clarithromycin"},
		{"warfarin", "clarithromycin"},
		{"digoxin", "fluconazole"},
		{"quetiapine", "fluconazole"},
		{"propranolol", "tizanidine"},
	}
	for _, pair := range pairs {
		t.Run(pair[0]+"+"+pair[1], func(t *testing.T) {
			res := evaluate(t, snap, domain.AllDomains(), pair...)

			assert.True(t, res.IsEmpty(), "unexpected findings: %v", ruleIDs(res.All()))
			assert.Equal(t, domain.SeverityInfo, res.OverallSeverity)
			assert.Equal(t, domain.ClassInfo, res.OverallClass)
			assert.Empty(t, res.Pairs)
		})
	}
}

func TestEvaluate_NarrowIndexEscalation(t *testing.T) {
	snap := seedSnapshot(t)

	res := evaluate(t, snap, domain.AllDomains(), "digoxin", "rifampin")

	f := findRule(res.PK, "PK_PGP_INDUC_DIGOXIN")
	require.NotNil(t, f)
	assert.Equal(t, domain.SeverityCaution, f.BaseSeverity)
	assert.Equal(t, domain.SeverityMajor, f.Severity)
	assert.True(t, f.Escalated)
	assert.Contains(t, f.Tags, TagNarrowTIEscalation)
	assert.Equal(t, domain.ExposureDecrease, f.Exposure)
}

func TestEvaluate_DirectionalityIsOrderInvariant(t *testing.T) {
	snap := seedSnapshot(t)

	forward := evaluate(t, snap, domain.AllDomains(), "quetiapine", "clarithromycin", "digoxin")
	backward := evaluate(t, snap, domain.AllDomains(), "digoxin", "clarithromycin", "quetiapine")

	assert.Equal(t, forward, backward)
}

func TestEvaluate_DomainFilter(t *testing.T) {
	snap := seedSnapshot(t)

	t.Run("pgp only", func(t *testing.T) {
		res := evaluate(t, snap, domain.FilterOf(domain.DomainPGP), "digoxin", "verapamil")

		assert.Equal(t, []string{"PK_PGP_INHIB_DIGOXIN"}, ruleIDs(res.All()))
		for _, f := range res.All() {
			assert.NotEqual(t, domain.DomainCYP, f.Domain)
		}
	})

	t.Run("cyp excludes p-gp", func(t *testing.T) {
		res := evaluate(t, snap, domain.FilterOf(domain.DomainCYP), "digoxin", "verapamil")

		assert.True(t, res.IsEmpty())
	})

	t.Run("pd only", func(t *testing.T) {
		res := evaluate(t, snap, domain.FilterOf(domain.DomainPD), "digoxin", "verapamil")

		assert.Empty(t, res.PK)
		assert.Empty(t, res.Composite, "composites need their PK origin")
		assert.Equal(t, []string{"PD_BRADYCARDIA_ADDITIVE"}, ruleIDs(res.PD))
	})

	t.Run("empty filter rejected", func(t *testing.T) {
		_, err := NewEvaluator(domain.EngineConfig{}).Evaluate(snap.KB, snap.Rules, []string{"digoxin", "verapamil"}, 0)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestEvaluate_PDMagnitudePolicy(t *testing.T) {
	snap := seedSnapshot(t)

	// digoxin and verapamil both carry bradycardia at medium.
	res := evaluate(t, snap, domain.AllDomains(), "digoxin", "verapamil")

	f := findRule(res.PD, "PD_BRADYCARDIA_ADDITIVE")
	require.NotNil(t, f)
	assert.Equal(t, domain.SeverityCaution, f.BaseSeverity)
	assert.Equal(t, domain.SeverityMajor, f.Severity)
	assert.Contains(t, f.Tags, TagMagnitudeEscalated)
}

func TestEvaluate_PDIsSymmetric(t *testing.T) {
	snap := seedSnapshot(t)

	ab := evaluate(t, snap, domain.FilterOf(domain.DomainPD), "tramadol", "sertraline")
	ba := evaluate(t, snap, domain.FilterOf(domain.DomainPD), "sertraline", "tramadol")

	require.NotEmpty(t, ab.PD)
	assert.Equal(t, ab.PD, ba.PD)
	assert.Equal(t, []string{"sertraline", "tramadol"}, ab.PD[0].DrugIDs())
}

func TestEvaluate_ThreeDrugsSharingAnEffect(t *testing.T) {
	snap := seedSnapshot(t)

	res := evaluate(t, snap, domain.FilterOf(domain.DomainPD), "lorazepam", "oxycodone", "midazolam")

	var pairs [][]string
	for _, f := range res.PD {
		if f.RuleID == "PD_CNS_DEPRESSION_ADDITIVE" {
			pairs = append(pairs, f.DrugIDs())
		}
	}
	assert.ElementsMatch(t, [][]string{
		{"lorazepam", "midazolam"},
		{"lorazepam", "oxycodone"},
		{"midazolam", "oxycodone"},
	}, pairs)
}

func TestEvaluate_CompositeNeverBelowItsPKFinding(t *testing.T) {
	snap := seedSnapshot(t)

	for _, pair := range [][]string{
		{"quetiapine", "clarithromycin"},
		{"warfarin", "fluconazole"},
		{"digoxin", "verapamil"},
		{"oxycodone", "clarithromycin"},
	} {
		res := evaluate(t, snap, domain.AllDomains(), pair...)
		byID := make(map[string]domain.Finding)
		for _, f := range res.PK {
			byID[f.ID] = f
		}
		for _, c := range res.Composite {
			for _, src := range c.DerivedFrom {
				origin, ok := byID[src]
				require.True(t, ok, "composite %s derives from unknown %s", c.ID, src)
				assert.GreaterOrEqual(t, c.Severity.Rank(), origin.Severity.Rank())
			}
		}
	}
}

func TestEvaluate_MultiMechanismEscalation(t *testing.T) {
	snap := seedSnapshot(t)

	plain := evaluate(t, snap, domain.AllDomains(), "rosuvastatin", "cyclosporine")
	f := findRule(plain.Composite, "PK_MULTI_MECH_INCREASE")
	require.NotNil(t, f)
	assert.Equal(t, domain.SeverityMajor, f.Severity, "max of caution (BCRP) and major (OATP)")
	assert.Equal(t, domain.DomainPK, f.Domain)
	assert.Contains(t, f.Tags, TagDualMechanism)
	assert.Len(t, f.DerivedFrom, 2)

	// UGT1A1 inhibition is caution, raised for the narrow-index irinotecan.
	res := evaluate(t, snap, domain.AllDomains(), "irinotecan", "atazanavir")
	ugt := findRule(res.PK, "PK_UGT1A1_INHIB")
	require.NotNil(t, ugt)
	assert.True(t, ugt.Escalated)
	assert.Nil(t, findRule(res.Composite, "PK_DUAL_MECH_INCREASE_UGT_PGP"), "atazanavir does not inhibit P-gp")
}

func TestEvaluate_Polypharmacy(t *testing.T) {
	snap := seedSnapshot(t)

	res := evaluate(t, snap, domain.AllDomains(), "digoxin", "verapamil", "clarithromycin")

	require.Len(t, res.Pairs, 3)
	for i := 1; i < len(res.Pairs); i++ {
		assert.GreaterOrEqual(t, res.Pairs[i-1].OverallSeverity.Rank(), res.Pairs[i].OverallSeverity.Rank())
	}
	for _, p := range res.Pairs {
		assert.Less(t, p.A.ID, p.B.ID)
	}
}

func TestEvaluate_Errors(t *testing.T) {
	snap := seedSnapshot(t)
	ev := NewEvaluator(domain.DefaultEngineConfig())

	_, err := ev.Evaluate(snap.KB, snap.Rules, []string{"warfarin", "unobtainium"}, domain.AllDomains())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = ev.Evaluate(snap.KB, snap.Rules, []string{"warfarin", "warfarin"}, domain.AllDomains())
	assert.ErrorIs(t, err, domain.ErrValidation)
}
