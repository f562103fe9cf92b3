package kb

import (
	"errors"
	"testing"

	"github.com/pharmds-ddi-server/internal/curation"
	"github.com/pharmds-ddi-server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedKB(t *testing.T) *KnowledgeBase {
	t.Helper()
	f, err := curation.LoadEmbedded()
	require.NoError(t, err)
	kb, err := New(f.Dataset())
	require.NoError(t, err)
	return kb
}

func fraction(v float64) *float64 { return &v }

func minimalDataset() *domain.Dataset {
	return &domain.Dataset{
		Drugs: []domain.Drug{
			{ID: "alpha", GenericName: "Alpha", TherapeuticIndex: domain.TINarrow, Aliases: []string{" AlphaBrand "}},
			{ID: "beta", GenericName: "beta"},
		},
		Enzymes:      []domain.Enzyme{{ID: "CYP3A4", Family: "CYP"}},
		Transporters: []domain.Transporter{{ID: "pgp", Family: "ABCB1"}, {ID: "OATP1B1", Family: "OATP"}},
		PDEffects:    []domain.PDEffect{{ID: "qt"}},
		EnzymeRoles: []domain.DrugEnzymeRole{
			{DrugID: "alpha", EnzymeID: "CYP3A4", Role: domain.RoleSubstrate, FractionMetabolized: fraction(0.5)},
			{DrugID: "beta", EnzymeID: "CYP3A4", Role: domain.RoleInhibitor, Strength: domain.StrengthStrong},
		},
		TransporterRoles: []domain.DrugTransporterRole{
			{DrugID: "alpha", TransporterID: "ABCB1", Role: domain.RoleSubstrate},
		},
		DrugPDEffects: []domain.DrugPDEffect{
			{DrugID: "alpha", EffectID: "QT prolongation", Direction: domain.DirectionIncrease, Magnitude: domain.MagnitudeHigh},
		},
		Parameters: []domain.ParameterSet{{DrugID: "alpha", Prodrug: true, HalfLifeBucket: domain.HalfLifeLong}},
	}
}

func TestNew_SeedDataset(t *testing.T) {
	kb := seedKB(t)

	stats := kb.Stats()
	assert.GreaterOrEqual(t, stats.Drugs, 20)
	assert.Equal(t, 8, stats.Enzymes)
	assert.Equal(t, 3, stats.Transporters)
	assert.Positive(t, stats.Aliases)
	assert.Positive(t, stats.EnzymeRoles)
	assert.Positive(t, stats.ParameterSets)

	warfarin, ok := kb.Drug("warfarin")
	require.True(t, ok)
	assert.True(t, warfarin.IsNarrowTI())
	assert.Equal(t, []string{"warfarin"}, kb.LookupName("Coumadin"))
	assert.Equal(t, []string{"rifampin"}, kb.LookupName("  RIFAMPICIN "))
}

func TestNew_NormalizesAndIndexes(t *testing.T) {
	// Act
	kb, err := New(minimalDataset())

	// Assert
	require.NoError(t, err)

	_, ok := kb.Transporter("P-gp")
	assert.True(t, ok)
	_, ok = kb.Transporter("abcb1")
	assert.True(t, ok, "lookups normalize transporter aliases")
	assert.Equal(t, []string{domain.TransporterPGP}, kb.TransportersInFamily("abcb1"))
	assert.Equal(t, []string{domain.TransporterOATP1B1}, kb.TransportersInFamily("OATP"))
	assert.Empty(t, kb.TransportersInFamily("ABCG2"))

	roles := kb.TransporterRoles("alpha")
	require.Len(t, roles, 1)
	assert.Equal(t, domain.TransporterPGP, roles[0].TransporterID)

	effects := kb.PDEffects("alpha")
	require.Len(t, effects, 1)
	assert.Equal(t, domain.EffectQTProlongation, effects[0].EffectID)
	_, ok = kb.PDEffect("qt")
	assert.True(t, ok)

	assert.Equal(t, []string{"alpha"}, kb.LookupName("alphabrand"))
	assert.Equal(t, []string{"alpha"}, kb.LookupName("ALPHA"))
	assert.True(t, kb.IsGenericName("alpha", "alpha"))
	assert.False(t, kb.IsGenericName("alphabrand", "alpha"))
	assert.Equal(t, []string{"alpha", "alphabrand", "beta"}, kb.Terms())

	beta, ok := kb.Drug("beta")
	require.True(t, ok)
	assert.Equal(t, domain.TIModerate, beta.TherapeuticIndex, "therapeutic index defaults to moderate")

	params, ok := kb.Parameters("alpha")
	require.True(t, ok)
	assert.True(t, params.Prodrug)
	_, ok = kb.Parameters("beta")
	assert.False(t, ok)
}

func TestNew_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(ds *domain.Dataset)
		wantErr string
	}{
		{"uppercase drug id", func(ds *domain.Dataset) { ds.Drugs[0].ID = "Alpha" }, "drug id must be lowercase"},
		{"duplicate drug id", func(ds *domain.Dataset) { ds.Drugs[1].ID = "alpha" }, "duplicate drug id"},
		{"missing generic name", func(ds *domain.Dataset) { ds.Drugs[1].GenericName = " " }, "generic name is required"},
		{"bad therapeutic index", func(ds *domain.Dataset) { ds.Drugs[0].TherapeuticIndex = "tiny" }, "therapeutic index"},
		{"alias shared by two drugs", func(ds *domain.Dataset) { ds.Drugs[1].Aliases = []string{"alphabrand"} }, "already belongs to alpha"},
		{"alias shadows a drug id", func(ds *domain.Dataset) { ds.Drugs[1].Aliases = []string{"ALPHA"} }, "collides with drug alpha"},
		{"fraction above one", func(ds *domain.Dataset) { ds.EnzymeRoles[0].FractionMetabolized = fraction(1.2) }, "within [0, 1]"},
		{"fraction on inhibitor", func(ds *domain.Dataset) { ds.EnzymeRoles[1].FractionMetabolized = fraction(0.2) }, "only applies to substrate"},
		{"unknown enzyme", func(ds *domain.Dataset) { ds.EnzymeRoles[0].EnzymeID = "CYP9Z9" }, "unknown enzyme"},
		{"unknown transporter", func(ds *domain.Dataset) { ds.TransporterRoles[0].TransporterID = "MATE1" }, "unknown transporter"},
		{"unknown effect", func(ds *domain.Dataset) { ds.DrugPDEffects[0].EffectID = "euphoria" }, "unknown pd effect"},
		{"bad role", func(ds *domain.Dataset) { ds.EnzymeRoles[1].Role = "blocker" }, "role must be"},
		{"bad strength", func(ds *domain.Dataset) { ds.EnzymeRoles[1].Strength = "extreme" }, "strength must be"},
		{"bad magnitude", func(ds *domain.Dataset) { ds.DrugPDEffects[0].Magnitude = "huge" }, "magnitude must be"},
		{"duplicate enzyme role", func(ds *domain.Dataset) {
			ds.EnzymeRoles = append(ds.EnzymeRoles, ds.EnzymeRoles[1])
		}, "duplicate (drug, enzyme, role)"},
		{"duplicate pd effect", func(ds *domain.Dataset) {
			ds.DrugPDEffects = append(ds.DrugPDEffects, ds.DrugPDEffects[0])
		}, "duplicate (drug, pd effect)"},
		{"bad half life", func(ds *domain.Dataset) { ds.Parameters[0].HalfLifeBucket = "forever" }, "half_life_bucket"},
		{"bad enzyme family", func(ds *domain.Dataset) { ds.Enzymes[0].Family = "FMO" }, "enzyme family"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := minimalDataset()
			tt.mutate(ds)

			_, err := New(ds)

			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_CollectsEveryViolation(t *testing.T) {
	ds := minimalDataset()
	ds.EnzymeRoles[0].EnzymeID = "CYP9Z9"
	ds.DrugPDEffects[0].Magnitude = "huge"

	_, err := New(ds)

	var list domain.ValidationErrors
	require.True(t, errors.As(err, &list))
	assert.Len(t, list, 2)
}

func TestNew_NilDataset(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDataset_RoundTripsThroughNew(t *testing.T) {
	kb := seedKB(t)

	// Act
	again, err := New(kb.Dataset())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, kb.Stats(), again.Stats())
	assert.Equal(t, kb.Terms(), again.Terms())
}
