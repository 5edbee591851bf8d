package forecast

import (
	"fmt"
	"time"

	"Fractal/internal/domain/models"
	"Fractal/pkg/util"

	"github.com/shopspring/decimal"
)

const pricePlaces = 4

// BuildInput carries everything needed to project a horizon forward.
type BuildInput struct {
	Asof         time.Time
	CurrentPrice float64
	Distribution models.AftermathDistribution
	Primary      models.Match
	Checkpoints  []int
}

// Build anchors the synthetic (median) path, its p10/p90 bands and the primary match
// replay at the current price. The two paths are kept separate.
func Build(in BuildInput) (models.Forecast, error) {
	if in.CurrentPrice <= 0 {
		return models.Forecast{}, fmt.Errorf("%w: non-positive current price %v", models.ErrComputation, in.CurrentPrice)
	}
	days := in.Distribution.Days
	s := in.Distribution.Series
	if days <= 0 || len(s.P50) < days || len(s.P10) < days || len(s.P90) < days {
		return models.Forecast{}, fmt.Errorf("%w: distribution has %d days", models.ErrComputation, days)
	}

	anchor := decimal.NewFromFloat(in.CurrentPrice)
	point := func(day int, r float64) models.PathPoint {
		return models.PathPoint{
			Day:    day,
			Date:   util.AddDays(in.Asof, day),
			Return: r,
			Price:  toPrice(anchor, r),
		}
	}

	f := models.Forecast{
		Anchor:        point(0, 0),
		SyntheticPath: make([]models.PathPoint, days),
		UpperBand:     make([]models.PathPoint, days),
		LowerBand:     make([]models.PathPoint, days),
	}
	for t := 1; t <= days; t++ {
		f.SyntheticPath[t-1] = point(t, s.P50[t-1])
		f.UpperBand[t-1] = point(t, s.P90[t-1])
		f.LowerBand[t-1] = point(t, s.P10[t-1])
	}

	replay := in.Primary.AftermathReturns
	if len(replay) > days {
		replay = replay[:days]
	}
	f.ReplayPath = make([]models.PathPoint, len(replay))
	for t, r := range replay {
		f.ReplayPath[t] = point(t+1, r)
	}

	worst := in.Distribution.Stats.WorstReturn
	f.TailFloor = models.TailFloor{Return: worst, Price: toPrice(anchor, worst)}

	f.Markers = make([]models.Marker, 0, len(in.Checkpoints))
	for _, day := range in.Checkpoints {
		if day < 1 || day > days {
			continue
		}
		m := models.Marker{
			Day:            day,
			ExpectedReturn: s.P50[day-1],
			Price:          toPrice(anchor, s.P50[day-1]),
			Low:            toPrice(anchor, s.P10[day-1]),
			High:           toPrice(anchor, s.P90[day-1]),
		}
		if day <= len(replay) {
			m.ReplayReturn = replay[day-1]
		}
		f.Markers = append(f.Markers, m)
	}
	return f, nil
}

func toPrice(anchor decimal.Decimal, r float64) float64 {
	return anchor.Mul(decimal.NewFromFloat(1 + r)).Round(pricePlaces).InexactFloat64()
}
