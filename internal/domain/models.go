package domain

// Drug is a curated drug entry. ID is a stable lowercase token.
type Drug struct {
	ID               string           `json:"id" yaml:"id"`
	GenericName      string           `json:"generic_name" yaml:"generic_name"`
	DrugClass        string           `json:"drug_class,omitempty" yaml:"drug_class"`
	TherapeuticIndex TherapeuticIndex `json:"therapeutic_index" yaml:"therapeutic_index"`
	Notes            string           `json:"notes,omitempty" yaml:"notes"`
	Aliases          []string         `json:"aliases,omitempty" yaml:"aliases"`
}

// IsNarrowTI reports whether the drug has a narrow therapeutic index.
func (d *Drug) IsNarrowTI() bool {
	return d.TherapeuticIndex == TINarrow
}

// Enzyme is a drug-metabolizing enzyme such as CYP3A4 or UGT1A1.
type Enzyme struct {
	ID          string `json:"id" yaml:"id"`
	Family      string `json:"family" yaml:"family"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Transporter is a drug transporter such as P-gp or OATP1B1.
type Transporter struct {
	ID          string `json:"id" yaml:"id"`
	Family      string `json:"family" yaml:"family"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// PDEffect is a named pharmacodynamic risk domain.
type PDEffect struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// DrugEnzymeRole links a drug to an enzyme.
type DrugEnzymeRole struct {
	DrugID              string   `json:"drug_id"`
	EnzymeID            string   `json:"enzyme_id"`
	Role                Role     `json:"role"`
	Strength            Strength `json:"strength,omitempty"`
	FractionMetabolized *float64 `json:"fraction_metabolized,omitempty"`
	Notes               string   `json:"notes,omitempty"`
}

// DrugTransporterRole links a drug to a transporter.
type DrugTransporterRole struct {
	DrugID        string   `json:"drug_id"`
	TransporterID string   `json:"transporter_id"`
	Role          Role     `json:"role"`
	Strength      Strength `json:"strength,omitempty"`
	Notes         string   `json:"notes,omitempty"`
}

// DrugPDEffect links a drug to a PD effect domain.
type DrugPDEffect struct {
	DrugID        string    `json:"drug_id"`
	EffectID      string    `json:"effect_id"`
	Direction     Direction `json:"direction"`
	Magnitude     Magnitude `json:"magnitude"`
	MechanismNote string    `json:"mechanism_note,omitempty"`
}

// ParameterSet holds coarse, optional per-drug flags.
type ParameterSet struct {
	DrugID             string         `json:"drug_id"`
	Prodrug            bool           `json:"prodrug"`
	ActiveMetabolite   bool           `json:"active_metabolite"`
	RenalClearanceFlag bool           `json:"renal_clearance_flag"`
	HalfLifeBucket     HalfLifeBucket `json:"half_life_bucket,omitempty"`
	Notes              string         `json:"notes,omitempty"`
}

// Dataset is the flat, relational form of the knowledge base as it is stored
// and exchanged. It is validated and indexed by the kb package.
type Dataset struct {
	Drugs            []Drug                `json:"drugs"`
	Enzymes          []Enzyme              `json:"enzymes"`
	Transporters     []Transporter         `json:"transporters"`
	PDEffects        []PDEffect            `json:"pd_effects"`
	EnzymeRoles      []DrugEnzymeRole      `json:"enzyme_roles"`
	TransporterRoles []DrugTransporterRole `json:"transporter_roles"`
	DrugPDEffects    []DrugPDEffect        `json:"drug_pd_effects"`
	Parameters       []ParameterSet        `json:"parameters"`
}

// KnowledgeBaseStats summarizes the size of a knowledge base.
type KnowledgeBaseStats struct {
	Drugs            int `json:"drugs"`
	Aliases          int `json:"aliases"`
	Enzymes          int `json:"enzymes"`
	Transporters     int `json:"transporters"`
	PDEffects        int `json:"pd_effects"`
	EnzymeRoles      int `json:"enzyme_roles"`
	TransporterRoles int `json:"transporter_roles"`
	DrugPDEffects    int `json:"drug_pd_effects"`
	ParameterSets    int `json:"parameter_sets"`
}
