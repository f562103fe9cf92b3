package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pharmds-ddi-server/internal/domain"
)

// Dialect selects the placeholder style of a database/sql driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// deleteOrder empties the tables children first.
var deleteOrder = []string{
	"drug_pd_effect",
	"drug_transporter_role",
	"drug_enzyme_role",
	"parameter_set",
	"drug_alias",
	"drug",
	"pd_effect",
	"transporter",
	"enzyme",
}

const (
	insertDrug = `INSERT INTO drug (id, generic_name, drug_class, therapeutic_index, notes)
		VALUES (?, ?, ?, ?, ?)`
	insertAlias       = `INSERT INTO drug_alias (drug_id, alias) VALUES (?, ?)`
	insertEnzyme      = `INSERT INTO enzyme (id, family, description) VALUES (?, ?, ?)`
	insertTransporter = `INSERT INTO transporter (id, family, description) VALUES (?, ?, ?)`
	insertPDEffect    = `INSERT INTO pd_effect (id, description) VALUES (?, ?)`
	insertEnzymeRole  = `INSERT INTO drug_enzyme_role
		(drug_id, enzyme_id, role, strength, fraction_metabolized, notes)
		VALUES (?, ?, ?, ?, ?, ?)`
	insertTransporterRole = `INSERT INTO drug_transporter_role
		(drug_id, transporter_id, role, strength, notes)
		VALUES (?, ?, ?, ?, ?)`
	insertDrugPDEffect = `INSERT INTO drug_pd_effect
		(drug_id, pd_effect_id, direction, magnitude, mechanism_note)
		VALUES (?, ?, ?, ?, ?)`
	insertParameterSet = `INSERT INTO parameter_set
		(drug_id, prodrug, active_metabolite, renal_clearance_flag, half_life_bucket, notes)
		VALUES (?, ?, ?, ?, ?, ?)`
)

// Seeder replaces the knowledge base tables with a dataset. It works on any
// database/sql handle whose schema was created by the migrations package.
type Seeder struct {
	db      *sql.DB
	dialect Dialect
	log     *logrus.Logger
}

// NewSeeder creates a seeder for db.
func NewSeeder(db *sql.DB, dialect Dialect, logger *logrus.Logger) *Seeder {
	return &Seeder{db: db, dialect: dialect, log: logger}
}

// Seed deletes every knowledge base row and inserts ds in one transaction.
// The dataset should already have passed kb.New.
func (s *Seeder) Seed(ctx context.Context, ds *domain.Dataset) error {
	if ds == nil {
		return fmt.Errorf("seeding knowledge base: %w", domain.NewValidationError("dataset", "dataset is required", nil))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range deleteOrder {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	exec := func(table, query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, s.rebind(query), args...); err != nil {
			return fmt.Errorf("inserting into %s: %w", table, err)
		}
		return nil
	}

	for _, e := range ds.Enzymes {
		if err := exec("enzyme", insertEnzyme, e.ID, e.Family, e.Description); err != nil {
			return err
		}
	}
	for _, t := range ds.Transporters {
		if err := exec("transporter", insertTransporter, t.ID, t.Family, t.Description); err != nil {
			return err
		}
	}
	for _, e := range ds.PDEffects {
		if err := exec("pd_effect", insertPDEffect, e.ID, e.Description); err != nil {
			return err
		}
	}
	for _, d := range ds.Drugs {
		ti := d.TherapeuticIndex
		if ti == "" {
			ti = domain.TIModerate
		}
		if err := exec("drug", insertDrug, d.ID, d.GenericName, d.DrugClass, string(ti), d.Notes); err != nil {
			return err
		}
		for _, alias := range d.Aliases {
			if err := exec("drug_alias", insertAlias, d.ID, alias); err != nil {
				return err
			}
		}
	}
	for _, r := range ds.EnzymeRoles {
		var fraction any
		if r.FractionMetabolized != nil {
			fraction = *r.FractionMetabolized
		}
		if err := exec("drug_enzyme_role", insertEnzymeRole,
			r.DrugID, r.EnzymeID, string(r.Role), nullable(string(r.Strength)), fraction, r.Notes); err != nil {
			return err
		}
	}
	for _, r := range ds.TransporterRoles {
		if err := exec("drug_transporter_role", insertTransporterRole,
			r.DrugID, r.TransporterID, string(r.Role), nullable(string(r.Strength)), r.Notes); err != nil {
			return err
		}
	}
	for _, e := range ds.DrugPDEffects {
		if err := exec("drug_pd_effect", insertDrugPDEffect,
			e.DrugID, e.EffectID, string(e.Direction), string(e.Magnitude), e.MechanismNote); err != nil {
			return err
		}
	}
	for _, p := range ds.Parameters {
		if err := exec("parameter_set", insertParameterSet,
			p.DrugID, p.Prodrug, p.ActiveMetabolite, p.RenalClearanceFlag,
			nullable(string(p.HalfLifeBucket)), p.Notes); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing seed transaction: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"dialect":      s.dialect,
		"drugs":        len(ds.Drugs),
		"enzyme_roles": len(ds.EnzymeRoles),
		"pd_effects":   len(ds.DrugPDEffects),
	}).Info("Knowledge base seeded")
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Seeder) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
