package analog

import (
	"context"
	"fmt"
	"sort"

	"Fractal/internal/domain/models"
	"Fractal/pkg/util"
)

const ctxCheckEvery = 256

// MatchConfig parameterizes one similarity search.
type MatchConfig struct {
	WindowLen     int
	TopK          int
	AftermathDays int
	// ExclusionGap is the minimum index distance between the end points of two accepted matches.
	ExclusionGap int
	PhaseFilter  models.Phase
	// Labels are per-candle phase labels; optional, used for match phases and the filter.
	Labels []models.Phase
}

type candidate struct {
	window Window
	sim    float64
}

// Match slides a window of cfg.WindowLen over history and returns the reference window
// (the latest WindowLen candles) with the top-K most similar historical windows.
// Candidates never overlap the reference window and always have a full aftermath.
// Ranking is by similarity, then by the more recent end date.
func Match(ctx context.Context, candles []models.Candle, cfg MatchConfig) (Window, []models.Match, error) {
	n := len(candles)
	if cfg.TopK <= 0 || cfg.AftermathDays <= 0 {
		return Window{}, nil, fmt.Errorf("%w: top_k %d, aftermath %d", models.ErrComputation, cfg.TopK, cfg.AftermathDays)
	}
	if n == 0 {
		return Window{}, nil, models.NewNotReady(models.ErrInsufficientHistory, cfg.WindowLen, 0, "no candles stored for this asset")
	}
	ref, err := Normalize(candles, n-1, cfg.WindowLen)
	if err != nil {
		return Window{}, nil, err
	}
	if cfg.PhaseFilter != "" && len(cfg.Labels) != n {
		return Window{}, nil, fmt.Errorf("%w: phase filter needs %d labels, got %d", models.ErrComputation, n, len(cfg.Labels))
	}

	wl := cfg.WindowLen
	maxStart := n - wl - max(wl, cfg.AftermathDays)

	cands := make([]candidate, 0, max(maxStart+1, 0))
	for s := 0; s <= maxStart; s++ {
		if s%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Window{}, nil, err
			}
		}
		end := s + wl - 1
		if cfg.PhaseFilter != "" && cfg.Labels[end] != cfg.PhaseFilter {
			continue
		}
		w, err := Normalize(candles, end, wl)
		if err != nil {
			continue
		}
		cands = append(cands, candidate{window: w, sim: Similarity(ref.Values, w.Values)})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].sim != cands[j].sim {
			return cands[i].sim > cands[j].sim
		}
		return cands[i].window.End > cands[j].window.End
	})

	picked := make([]candidate, 0, cfg.TopK)
	for _, c := range cands {
		if len(picked) == cfg.TopK {
			break
		}
		if tooClose(picked, c.window.End, cfg.ExclusionGap) {
			continue
		}
		picked = append(picked, c)
	}

	matches := make([]models.Match, 0, len(picked))
	for i, c := range picked {
		matches = append(matches, buildMatch(candles, ref, c, i+1, cfg))
	}
	return ref, matches, nil
}

func tooClose(picked []candidate, end, gap int) bool {
	if gap <= 0 {
		return false
	}
	for _, p := range picked {
		d := p.window.End - end
		if d < 0 {
			d = -d
		}
		if d < gap {
			return true
		}
	}
	return false
}

func buildMatch(candles []models.Candle, ref Window, c candidate, rank int, cfg MatchConfig) models.Match {
	w := c.window
	base := candles[w.End].Close
	after := make([]float64, cfg.AftermathDays)
	for t := 1; t <= cfg.AftermathDays; t++ {
		after[t-1] = candles[w.End+t].Close/base - 1
	}

	phase := models.PhaseUnknown
	if len(cfg.Labels) == len(candles) {
		phase = cfg.Labels[w.End]
	}

	return models.Match{
		ID:         "m_" + util.CompactDate(w.To),
		Rank:       rank,
		DateRange:  models.DateRange{From: w.From, To: w.To},
		Similarity: c.sim,
		SubScores: models.SubScores{
			VolatilityMatch: VolatilityMatch(ref.Values, w.Values),
			DrawdownShape:   DrawdownShape(ref.Values, w.Values),
			Stability:       Stability(w.Values),
		},
		Phase:            phase,
		AftermathReturns: after,
		EndIndex:         w.End,
	}
}
