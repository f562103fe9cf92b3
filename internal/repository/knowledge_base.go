// Package repository reads and writes the curated knowledge base. The
// embedded curation file, a SQLite database and a PostgreSQL database are all
// interchangeable sources of the same relational dataset.
package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pharmds-ddi-server/internal/curation"
	"github.com/pharmds-ddi-server/internal/domain"
)

// KnowledgeBaseRepository loads the relational knowledge base dataset.
type KnowledgeBaseRepository interface {
	Load(ctx context.Context) (*domain.Dataset, error)
	// Source describes where the dataset comes from, for logs and stats.
	Source() string
}

// CurationRepository reads the YAML curation file. An empty path selects the
// dataset compiled into the binary.
type CurationRepository struct {
	path string
}

// NewCurationRepository creates a repository backed by a curation file.
func NewCurationRepository(path string) *CurationRepository {
	return &CurationRepository{path: path}
}

// Load parses the curation file.
func (r *CurationRepository) Load(ctx context.Context) (*domain.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ds, err := curation.LoadDataset(r.path)
	if err != nil {
		return nil, fmt.Errorf("loading curation dataset: %w", err)
	}
	return ds, nil
}

// Source returns "embedded" or the file path.
func (r *CurationRepository) Source() string {
	if r.path == "" {
		return domain.KBSourceEmbedded
	}
	return "file:" + r.path
}

const (
	selectDrugs = `
		SELECT id, generic_name, drug_class, therapeutic_index, notes
		FROM drug ORDER BY id`
	selectAliases = `
		SELECT drug_id, alias FROM drug_alias ORDER BY drug_id, alias`
	selectEnzymes = `
		SELECT id, family, description FROM enzyme ORDER BY id`
	selectTransporters = `
		SELECT id, family, description FROM transporter ORDER BY id`
	selectPDEffects = `
		SELECT id, description FROM pd_effect ORDER BY id`
	selectEnzymeRoles = `
		SELECT drug_id, enzyme_id, role, strength, fraction_metabolized, notes
		FROM drug_enzyme_role ORDER BY drug_id, enzyme_id, role`
	selectTransporterRoles = `
		SELECT drug_id, transporter_id, role, strength, notes
		FROM drug_transporter_role ORDER BY drug_id, transporter_id, role`
	selectDrugPDEffects = `
		SELECT drug_id, pd_effect_id, direction, magnitude, mechanism_note
		FROM drug_pd_effect ORDER BY drug_id, pd_effect_id`
	selectParameterSets = `
		SELECT drug_id, prodrug, active_metabolite, renal_clearance_flag, half_life_bucket, notes
		FROM parameter_set ORDER BY drug_id`
)

// rows is the subset of *sql.Rows and pgx.Rows the loaders need.
type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// queryFunc runs a query and returns its rows together with a release func.
type queryFunc func(ctx context.Context, query string) (rows, func(), error)

// tableQuery pairs a table with its select statement and row decoder.
type tableQuery struct {
	table string
	query string
	scan  func(rows) error
}

// loadDataset reads every knowledge base table through q.
func loadDataset(ctx context.Context, q queryFunc) (*domain.Dataset, error) {
	ds := &domain.Dataset{}
	aliases := make(map[string][]string)

	tables := []tableQuery{
		{"drug", selectDrugs, func(r rows) error {
			var d domain.Drug
			var ti string
			if err := r.Scan(&d.ID, &d.GenericName, &d.DrugClass, &ti, &d.Notes); err != nil {
				return err
			}
			d.TherapeuticIndex = domain.TherapeuticIndex(ti)
			ds.Drugs = append(ds.Drugs, d)
			return nil
		}},
		{"drug_alias", selectAliases, func(r rows) error {
			var drugID, alias string
			if err := r.Scan(&drugID, &alias); err != nil {
				return err
			}
			aliases[drugID] = append(aliases[drugID], alias)
			return nil
		}},
		{"enzyme", selectEnzymes, func(r rows) error {
			var e domain.Enzyme
			if err := r.Scan(&e.ID, &e.Family, &e.Description); err != nil {
				return err
			}
			ds.Enzymes = append(ds.Enzymes, e)
			return nil
		}},
		{"transporter", selectTransporters, func(r rows) error {
			var t domain.Transporter
			if err := r.Scan(&t.ID, &t.Family, &t.Description); err != nil {
				return err
			}
			ds.Transporters = append(ds.Transporters, t)
			return nil
		}},
		{"pd_effect", selectPDEffects, func(r rows) error {
			var e domain.PDEffect
			if err := r.Scan(&e.ID, &e.Description); err != nil {
				return err
			}
			ds.PDEffects = append(ds.PDEffects, e)
			return nil
		}},
		{"drug_enzyme_role", selectEnzymeRoles, func(r rows) error {
			var (
				role     domain.DrugEnzymeRole
				kind     string
				strength sql.NullString
				fraction sql.NullFloat64
			)
			if err := r.Scan(&role.DrugID, &role.EnzymeID, &kind, &strength, &fraction, &role.Notes); err != nil {
				return err
			}
			role.Role = domain.Role(kind)
			role.Strength = domain.Strength(strength.String)
			if fraction.Valid {
				v := fraction.Float64
				role.FractionMetabolized = &v
			}
			ds.EnzymeRoles = append(ds.EnzymeRoles, role)
			return nil
		}},
		{"drug_transporter_role", selectTransporterRoles, func(r rows) error {
			var (
				role     domain.DrugTransporterRole
				kind     string
				strength sql.NullString
			)
			if err := r.Scan(&role.DrugID, &role.TransporterID, &kind, &strength, &role.Notes); err != nil {
				return err
			}
			role.Role = domain.Role(kind)
			role.Strength = domain.Strength(strength.String)
			ds.TransporterRoles = append(ds.TransporterRoles, role)
			return nil
		}},
		{"drug_pd_effect", selectDrugPDEffects, func(r rows) error {
			var (
				e                    domain.DrugPDEffect
				direction, magnitude string
			)
			if err := r.Scan(&e.DrugID, &e.EffectID, &direction, &magnitude, &e.MechanismNote); err != nil {
				return err
			}
			e.Direction = domain.Direction(direction)
			e.Magnitude = domain.Magnitude(magnitude)
			ds.DrugPDEffects = append(ds.DrugPDEffects, e)
			return nil
		}},
		{"parameter_set", selectParameterSets, func(r rows) error {
			var (
				p        domain.ParameterSet
				halfLife sql.NullString
			)
			if err := r.Scan(&p.DrugID, &p.Prodrug, &p.ActiveMetabolite, &p.RenalClearanceFlag, &halfLife, &p.Notes); err != nil {
				return err
			}
			p.HalfLifeBucket = domain.HalfLifeBucket(halfLife.String)
			ds.Parameters = append(ds.Parameters, p)
			return nil
		}},
	}

	for _, tq := range tables {
		if err := readTable(ctx, q, tq); err != nil {
			return nil, err
		}
	}

	for i := range ds.Drugs {
		ds.Drugs[i].Aliases = aliases[ds.Drugs[i].ID]
	}
	return ds, nil
}

func readTable(ctx context.Context, q queryFunc, tq tableQuery) error {
	rs, release, err := q(ctx, tq.query)
	if err != nil {
		return fmt.Errorf("querying %s: %w", tq.table, err)
	}
	defer release()

	for rs.Next() {
		if err := tq.scan(rs); err != nil {
			return fmt.Errorf("scanning %s: %w", tq.table, err)
		}
	}
	if err := rs.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", tq.table, err)
	}
	return nil
}
