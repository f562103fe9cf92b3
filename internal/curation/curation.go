// Package curation reads the human-maintained seed dataset. The file nests
// each drug's relationships under the drug entry; Dataset flattens it into the
// relational form stored in the knowledge base tables.
package curation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/pharmds-ddi-server/data"
	"github.com/pharmds-ddi-server/internal/domain"
	"gopkg.in/yaml.v3"
)

// SupportedVersion is the only curation format version understood.
const SupportedVersion = 1

// File is the on-disk curation document.
type File struct {
	Version      int                  `yaml:"version"`
	Enzymes      []domain.Enzyme      `yaml:"enzymes"`
	Transporters []domain.Transporter `yaml:"transporters"`
	PDEffects    []domain.PDEffect    `yaml:"pd_effects"`
	Drugs        []DrugEntry          `yaml:"drugs"`
}

// DrugEntry is a drug with its nested relationships.
type DrugEntry struct {
	domain.Drug  `yaml:",inline"`
	Enzymes      []EnzymeEntry      `yaml:"enzymes"`
	Transporters []TransporterEntry `yaml:"transporters"`
	PDEffects    []EffectEntry      `yaml:"pd_effects"`
	Parameters   *ParameterEntry    `yaml:"parameters"`
}

// EnzymeEntry is one enzyme role of a drug.
type EnzymeEntry struct {
	EnzymeID            string          `yaml:"enzyme_id"`
	Role                domain.Role     `yaml:"role"`
	Strength            domain.Strength `yaml:"strength"`
	FractionMetabolized *float64        `yaml:"fraction_metabolized"`
	Notes               string          `yaml:"notes"`
}

// TransporterEntry is one transporter role of a drug.
type TransporterEntry struct {
	TransporterID string          `yaml:"transporter_id"`
	Role          domain.Role     `yaml:"role"`
	Strength      domain.Strength `yaml:"strength"`
	Notes         string          `yaml:"notes"`
}

// EffectEntry is one PD effect of a drug.
type EffectEntry struct {
	EffectID      string           `yaml:"effect_id"`
	Direction     domain.Direction `yaml:"direction"`
	Magnitude     domain.Magnitude `yaml:"magnitude"`
	MechanismNote string           `yaml:"mechanism_note"`
}

// ParameterEntry holds the optional per-drug flags.
type ParameterEntry struct {
	Prodrug            bool                  `yaml:"prodrug"`
	ActiveMetabolite   bool                  `yaml:"active_metabolite"`
	RenalClearanceFlag bool                  `yaml:"renal_clearance_flag"`
	HalfLifeBucket     domain.HalfLifeBucket `yaml:"half_life_bucket"`
	Notes              string                `yaml:"notes"`
}

// ErrUnsupportedVersion is returned for curation files of another format version.
var ErrUnsupportedVersion = errors.New("unsupported curation version")

// Parse decodes a curation document. Unknown keys are rejected so typos in
// hand-edited files surface immediately.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty curation document")
		}
		return nil, fmt.Errorf("decoding curation: %w", err)
	}
	if f.Version != SupportedVersion {
		return nil, fmt.Errorf("%w: %d (expected %d)", ErrUnsupportedVersion, f.Version, SupportedVersion)
	}
	return &f, nil
}

// Load reads and decodes the curation file at path.
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading curation file: %w", err)
	}
	f, err := Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// LoadFS reads a curation file from fsys.
func LoadFS(fsys fs.FS, name string) (*File, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("reading curation file: %w", err)
	}
	f, err := Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

// LoadEmbedded returns the seed dataset compiled into the binary.
func LoadEmbedded() (*File, error) {
	return LoadFS(data.FS, data.CurationFile)
}

// LoadDataset loads path, or the embedded seed when path is empty, and
// flattens it.
func LoadDataset(path string) (*domain.Dataset, error) {
	var (
		f   *File
		err error
	)
	if path == "" {
		f, err = LoadEmbedded()
	} else {
		f, err = Load(path)
	}
	if err != nil {
		return nil, err
	}
	return f.Dataset(), nil
}

// Dataset flattens the document into relational rows. Aliases are lowercased
// and trimmed; transporter and effect ids are mapped onto their canonical
// spelling. Structural validation is left to kb.New.
func (f *File) Dataset() *domain.Dataset {
	ds := &domain.Dataset{
		Enzymes:   append([]domain.Enzyme(nil), f.Enzymes...),
		PDEffects: make([]domain.PDEffect, 0, len(f.PDEffects)),
	}

	for _, t := range f.Transporters {
		t.ID = domain.NormalizeTransporterID(t.ID)
		ds.Transporters = append(ds.Transporters, t)
	}
	for _, e := range f.PDEffects {
		e.ID = domain.NormalizeEffectID(e.ID)
		ds.PDEffects = append(ds.PDEffects, e)
	}

	for _, entry := range f.Drugs {
		drug := entry.Drug
		if drug.TherapeuticIndex == "" {
			drug.TherapeuticIndex = domain.TIModerate
		}
		drug.Aliases = normalizeAliases(drug.Aliases)
		ds.Drugs = append(ds.Drugs, drug)

		for _, r := range entry.Enzymes {
			ds.EnzymeRoles = append(ds.EnzymeRoles, domain.DrugEnzymeRole{
				DrugID:              drug.ID,
				EnzymeID:            r.EnzymeID,
				Role:                r.Role,
				Strength:            r.Strength,
				FractionMetabolized: r.FractionMetabolized,
				Notes:               r.Notes,
			})
		}
		for _, r := range entry.Transporters {
			ds.TransporterRoles = append(ds.TransporterRoles, domain.DrugTransporterRole{
				DrugID:        drug.ID,
				TransporterID: domain.NormalizeTransporterID(r.TransporterID),
				Role:          r.Role,
				Strength:      r.Strength,
				Notes:         r.Notes,
			})
		}
		for _, e := range entry.PDEffects {
			ds.DrugPDEffects = append(ds.DrugPDEffects, domain.DrugPDEffect{
				DrugID:        drug.ID,
				EffectID:      domain.NormalizeEffectID(e.EffectID),
				Direction:     e.Direction,
				Magnitude:     e.Magnitude,
				MechanismNote: e.MechanismNote,
			})
		}
		if p := entry.Parameters; p != nil {
			ds.Parameters = append(ds.Parameters, domain.ParameterSet{
				DrugID:             drug.ID,
				Prodrug:            p.Prodrug,
				ActiveMetabolite:   p.ActiveMetabolite,
				RenalClearanceFlag: p.RenalClearanceFlag,
				HalfLifeBucket:     p.HalfLifeBucket,
				Notes:              p.Notes,
			})
		}
	}

	return ds
}

// FromDataset nests a relational dataset back into the curation document
// form, so a database-backed knowledge base can be exported for editing.
func FromDataset(ds *domain.Dataset) *File {
	f := &File{
		Version:      SupportedVersion,
		Enzymes:      ds.Enzymes,
		Transporters: ds.Transporters,
		PDEffects:    ds.PDEffects,
	}

	index := make(map[string]int, len(ds.Drugs))
	for _, d := range ds.Drugs {
		index[d.ID] = len(f.Drugs)
		f.Drugs = append(f.Drugs, DrugEntry{Drug: d})
	}
	for _, r := range ds.EnzymeRoles {
		if i, ok := index[r.DrugID]; ok {
			f.Drugs[i].Enzymes = append(f.Drugs[i].Enzymes, EnzymeEntry{
				EnzymeID:            r.EnzymeID,
				Role:                r.Role,
				Strength:            r.Strength,
				FractionMetabolized: r.FractionMetabolized,
				Notes:               r.Notes,
			})
		}
	}
	for _, r := range ds.TransporterRoles {
		if i, ok := index[r.DrugID]; ok {
			f.Drugs[i].Transporters = append(f.Drugs[i].Transporters, TransporterEntry{
				TransporterID: r.TransporterID,
				Role:          r.Role,
				Strength:      r.Strength,
				Notes:         r.Notes,
			})
		}
	}
	for _, e := range ds.DrugPDEffects {
		if i, ok := index[e.DrugID]; ok {
			f.Drugs[i].PDEffects = append(f.Drugs[i].PDEffects, EffectEntry{
				EffectID:      e.EffectID,
				Direction:     e.Direction,
				Magnitude:     e.Magnitude,
				MechanismNote: e.MechanismNote,
			})
		}
	}
	for _, p := range ds.Parameters {
		if i, ok := index[p.DrugID]; ok {
			f.Drugs[i].Parameters = &ParameterEntry{
				Prodrug:            p.Prodrug,
				ActiveMetabolite:   p.ActiveMetabolite,
				RenalClearanceFlag: p.RenalClearanceFlag,
				HalfLifeBucket:     p.HalfLifeBucket,
				Notes:              p.Notes,
			}
		}
	}
	return f
}

// Write encodes f as YAML.
func (f *File) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encoding curation: %w", err)
	}
	return enc.Close()
}

func normalizeAliases(aliases []string) []string {
	if len(aliases) == 0 {
		return nil
	}
	out := make([]string, 0, len(aliases))
	for _, a := range aliases {
		if n := domain.NormalizeName(a); n != "" {
			out = append(out, n)
		}
	}
	return out
}
