package domain

import "strings"

// Canonical transporter ids.
const (
	TransporterPGP     = "P-gp"
	TransporterBCRP    = "BCRP"
	TransporterOATP1B1 = "OATP1B1"
)

// Canonical PD effect ids.
const (
	EffectCNSDepression         = "CNS_depression"
	EffectQTProlongation        = "QT_prolongation"
	EffectBleeding              = "bleeding"
	EffectBradycardia           = "bradycardia"
	EffectSerotonergic          = "serotonergic"
	EffectSerotoninSyndrome     = "serotonin_syndrome"
	EffectRespiratoryDepression = "respiratory_depression"
	EffectSedation              = "sedation"
	EffectSeizureRisk           = "seizure_risk"
	EffectAnticholinergic       = "anticholinergic"
)

var transporterAliases = map[string]string{
	"p-gp":           TransporterPGP,
	"pgp":            TransporterPGP,
	"p gp":           TransporterPGP,
	"p-glycoprotein": TransporterPGP,
	"p glycoprotein": TransporterPGP,
	"abcb1":          TransporterPGP,
	"mdr1":           TransporterPGP,
	"bcrp":           TransporterBCRP,
	"abcg2":          TransporterBCRP,
	"oatp1b1":        TransporterOATP1B1,
	"slco1b1":        TransporterOATP1B1,
}

var effectAliases = map[string]string{
	"cns depression":             EffectCNSDepression,
	"cns_depression":             EffectCNSDepression,
	"qt":                         EffectQTProlongation,
	"qt prolongation":            EffectQTProlongation,
	"qt_prolongation":            EffectQTProlongation,
	"bleed":                      EffectBleeding,
	"bleeding":                   EffectBleeding,
	"brady":                      EffectBradycardia,
	"bradycardia":                EffectBradycardia,
	"serotonergic":               EffectSerotonergic,
	"serotonin syndrome":         EffectSerotoninSyndrome,
	"serotonin_syndrome":         EffectSerotoninSyndrome,
	"resp depression":            EffectRespiratoryDepression,
	"respiratory depression":     EffectRespiratoryDepression,
	"respiratory_depression":     EffectRespiratoryDepression,
	"sedation":                   EffectSedation,
	"sedating":                   EffectSedation,
	"seizure":                    EffectSeizureRisk,
	"seizure risk":               EffectSeizureRisk,
	"seizure threshold":          EffectSeizureRisk,
	"seizure_threshold_lowering": EffectSeizureRisk,
	"seizure_risk":               EffectSeizureRisk,
	"anticholinergic":            EffectAnticholinergic,
}

// NormalizeTransporterID maps common spellings (pgp, ABCB1, MDR1, ...) onto
// the canonical transporter id. Unknown values are returned trimmed.
func NormalizeTransporterID(raw string) string {
	s := strings.TrimSpace(raw)
	if canonical, ok := transporterAliases[strings.ToLower(s)]; ok {
		return canonical
	}
	return s
}

// NormalizeEffectID maps common spellings (qt, cns depression, ...) onto the
// canonical PD effect id. Unknown values are returned trimmed.
func NormalizeEffectID(raw string) string {
	s := strings.TrimSpace(raw)
	if canonical, ok := effectAliases[strings.ToLower(s)]; ok {
		return canonical
	}
	return s
}

// NormalizeName is the normalization applied to drug names and aliases before
// lookup.
func NormalizeName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
