package analog

import (
	"fmt"
	"sort"

	"Fractal/internal/domain/models"
	"Fractal/pkg/config"
)

// SelectionScore is the weighted composite of a match's similarity and sub-scores.
func SelectionScore(m models.Match, w config.SelectionWeights) float64 {
	return w.Similarity*m.Similarity +
		w.Volatility*m.SubScores.VolatilityMatch +
		w.Drawdown*m.SubScores.DrawdownShape +
		w.Stability*m.SubScores.Stability
}

// SelectPrimary picks the match with the highest composite score. Ties go to the higher
// similarity, then the more recent end date, then the lower id, so the result does not
// depend on input order.
func SelectPrimary(matches []models.Match, w config.SelectionWeights) (models.PrimarySelection, error) {
	if len(matches) == 0 {
		return models.PrimarySelection{}, models.NewNotReady(models.ErrInsufficientMatches, 1, 0, "no candidates to select from")
	}

	type scored struct {
		m     models.Match
		score float64
	}
	all := make([]scored, len(matches))
	for i, m := range matches {
		all[i] = scored{m: m, score: SelectionScore(m, w)}
	}
	less := func(a, b scored) bool {
		if a.score != b.score {
			return a.score > b.score
		}
		if a.m.Similarity != b.m.Similarity {
			return a.m.Similarity > b.m.Similarity
		}
		if !a.m.DateRange.To.Equal(b.m.DateRange.To) {
			return a.m.DateRange.To.After(b.m.DateRange.To)
		}
		return a.m.ID < b.m.ID
	}
	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })

	best := all[0]
	reason := fmt.Sprintf("highest composite score among %d candidates", len(all))
	if len(all) > 1 && all[1].score == best.score {
		next := all[1].m
		switch {
		case next.Similarity != best.m.Similarity:
			reason = fmt.Sprintf("tied composite score among %d candidates, broken by higher similarity", len(all))
		case !next.DateRange.To.Equal(best.m.DateRange.To):
			reason = fmt.Sprintf("tied composite score among %d candidates, broken by more recent date", len(all))
		default:
			reason = fmt.Sprintf("tied composite score among %d candidates, broken by id", len(all))
		}
	}

	return models.PrimarySelection{
		PrimaryMatch:    best.m,
		SelectionScore:  best.score,
		SelectionReason: reason,
		Candidates:      len(all),
	}, nil
}
