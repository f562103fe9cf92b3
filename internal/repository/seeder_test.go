package repository

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmds-ddi-server/internal/domain"
)

func TestSeeder_Rebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		query   string
		want    string
	}{
		{"sqlite untouched", DialectSQLite, "INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES (?, ?)"},
		{"postgres numbered", DialectPostgres, "INSERT INTO t (a, b, c) VALUES (?, ?, ?)", "INSERT INTO t (a, b, c) VALUES ($1, $2, $3)"},
		{"postgres double digits", DialectPostgres, "VALUES (?,?,?,?,?,?,?,?,?,?)", "VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)"},
		{"no placeholders", DialectPostgres, "DELETE FROM drug", "DELETE FROM drug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSeeder(nil, tt.dialect, quietLogger())
			assert.Equal(t, tt.want, s.rebind(tt.query))
		})
	}
}

func expectDeletes(mock sqlmock.Sqlmock) {
	for _, table := range deleteOrder {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM " + table)).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
}

func TestSeeder_PostgresPlaceholdersAndNulls(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := &domain.Dataset{
		Enzymes: []domain.Enzyme{{ID: "CYP3A4", Family: "CYP"}},
		Drugs:   []domain.Drug{{ID: "alpha", GenericName: "alpha"}},
		EnzymeRoles: []domain.DrugEnzymeRole{
			{DrugID: "alpha", EnzymeID: "CYP3A4", Role: domain.RoleSubstrate},
		},
	}

	mock.ExpectBegin()
	expectDeletes(mock)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enzyme (id, family, description) VALUES ($1, $2, $3)")).
		WithArgs("CYP3A4", "CYP", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO drug (id")).
		WithArgs("alpha", "alpha", "", "moderate", "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO drug_enzyme_role")).
		WithArgs("alpha", "CYP3A4", "substrate", nil, nil, "").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	// Act
	err = NewSeeder(db, DialectPostgres, quietLogger()).Seed(context.Background(), ds)

	// Assert
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeeder_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := &domain.Dataset{Enzymes: []domain.Enzyme{{ID: "CYP3A4", Family: "CYP"}}}

	mock.ExpectBegin()
	expectDeletes(mock)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enzyme")).
		WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	// Act
	err = NewSeeder(db, DialectSQLite, quietLogger()).Seed(context.Background(), ds)

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inserting into enzyme")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeeder_NilDataset(t *testing.T) {
	err := NewSeeder(nil, DialectSQLite, quietLogger()).Seed(context.Background(), nil)

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSeeder_SQLiteForeignKeys(t *testing.T) {
	db, _ := openMigratedSQLite(t)
	ds := &domain.Dataset{
		Drugs: []domain.Drug{{ID: "alpha", GenericName: "alpha"}},
		EnzymeRoles: []domain.DrugEnzymeRole{
			{DrugID: "alpha", EnzymeID: "CYP9Z9", Role: domain.RoleSubstrate},
		},
	}

	// Act
	err := NewSeeder(db, DialectSQLite, quietLogger()).Seed(context.Background(), ds)

	// Assert
	require.Error(t, err, "unknown enzyme violates the foreign key")
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM drug").Scan(&count))
	assert.Zero(t, count, "failed seed leaves no partial rows")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("embedded", func(t *testing.T) {
		repo, closeFn, err := Open(ctx, domain.KBConfig{Source: domain.KBSourceEmbedded}, domain.DatabaseConfig{}, quietLogger())
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &CurationRepository{}, repo)
	})

	t.Run("default is embedded", func(t *testing.T) {
		repo, closeFn, err := Open(ctx, domain.KBConfig{}, domain.DatabaseConfig{}, quietLogger())
		require.NoError(t, err)
		defer closeFn()
		assert.Equal(t, domain.KBSourceEmbedded, repo.Source())
	})

	t.Run("sqlite migrates on open", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kb.db")
		repo, closeFn, err := Open(ctx, domain.KBConfig{Source: domain.KBSourceSQLite, SQLitePath: path}, domain.DatabaseConfig{}, quietLogger())
		require.NoError(t, err)
		defer closeFn()

		ds, err := repo.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, ds.Drugs)
	})

	t.Run("sqlite without path", func(t *testing.T) {
		_, _, err := Open(ctx, domain.KBConfig{Source: domain.KBSourceSQLite}, domain.DatabaseConfig{}, quietLogger())
		assert.ErrorContains(t, err, "sqlite_path")
	})

	t.Run("unknown source", func(t *testing.T) {
		_, _, err := Open(ctx, domain.KBConfig{Source: "mongo"}, domain.DatabaseConfig{}, quietLogger())
		assert.ErrorContains(t, err, "unknown knowledge base source")
	})
}
