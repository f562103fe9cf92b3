package service

import (
	"sort"

	"github.com/pharmds-ddi-server/internal/domain"
)

type pairKey struct{ a, b string }

// BuildPairReports groups findings by unordered drug pair. Directional PK and
// multi-mechanism findings go to the PK section; PD overlap and PK-driven PD
// amplification go to the PD section. Pairs without findings are omitted.
// Pairs are ordered by severity (highest first), then by ids.
func BuildPairReports(res *domain.EvaluationResult) []domain.PairReport {
	reports := make(map[pairKey]*domain.PairReport)
	get := func(refs []domain.DrugRef) *domain.PairReport {
		if len(refs) != 2 {
			return nil
		}
		a, b := refs[0], refs[1]
		if b.ID < a.ID {
			a, b = b, a
		}
		key := pairKey{a.ID, b.ID}
		r, ok := reports[key]
		if !ok {
			r = &domain.PairReport{A: a, B: b}
			reports[key] = r
		}
		return r
	}

	for _, f := range res.All() {
		r := get(findingRefs(f))
		if r == nil {
			continue
		}
		switch {
		case f.Kind == domain.KindPD, f.Kind == domain.KindComposite && f.Domain == domain.DomainPD:
			r.PD = append(r.PD, f)
		default:
			r.PK = append(r.PK, f)
		}
	}

	out := make([]domain.PairReport, 0, len(reports))
	for _, r := range reports {
		sortFindings(r.PK)
		sortFindings(r.PD)
		r.OverallSeverity, r.OverallClass = Aggregate(r.PK, r.PD)
		r.PKSummary = summarizePK(r.PK)
		if r.PK == nil {
			r.PK = []domain.Finding{}
		}
		if r.PD == nil {
			r.PD = []domain.Finding{}
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].OverallSeverity.Compare(out[j].OverallSeverity); c != 0 {
			return c > 0
		}
		if out[i].A.ID != out[j].A.ID {
			return out[i].A.ID < out[j].A.ID
		}
		return out[i].B.ID < out[j].B.ID
	})
	return out
}

func findingRefs(f domain.Finding) []domain.DrugRef {
	if f.Affected != nil && f.Interacting != nil {
		return []domain.DrugRef{*f.Affected, *f.Interacting}
	}
	return f.Participants
}

// summarizePK reports the net exposure direction of a pair's directional PK
// findings.
func summarizePK(pk []domain.Finding) domain.PKSummary {
	var up, down bool
	for _, f := range pk {
		if f.Kind != domain.KindPK {
			continue
		}
		switch f.Exposure {
		case domain.ExposureIncrease:
			up = true
		case domain.ExposureDecrease:
			down = true
		}
	}
	switch {
	case up && down:
		return domain.PKSummaryMixed
	case up:
		return domain.PKSummaryIncrease
	case down:
		return domain.PKSummaryDecrease
	default:
		return domain.PKSummaryNone
	}
}
