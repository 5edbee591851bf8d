package analog

import (
	"fmt"
	"time"

	"Fractal/internal/domain/models"
)

// Window is a run of consecutive candles with its return-normalized shape.
type Window struct {
	Start  int
	End    int
	From   time.Time
	To     time.Time
	Values []float64
}

// Len returns the number of candles in the window.
func (w Window) Len() int { return w.End - w.Start + 1 }

// Normalize builds the windowLen-candle window ending at index end (inclusive),
// with values v_i = close_i/close_0 - 1.
func Normalize(candles []models.Candle, end, windowLen int) (Window, error) {
	if windowLen < 2 {
		return Window{}, fmt.Errorf("%w: window length %d", models.ErrComputation, windowLen)
	}
	if end < 0 || end >= len(candles) {
		return Window{}, fmt.Errorf("%w: window end %d outside series of %d", models.ErrComputation, end, len(candles))
	}
	start := end - windowLen + 1
	if start < 0 {
		return Window{}, models.NewNotReady(models.ErrInsufficientHistory, windowLen, end+1,
			fmt.Sprintf("need %d candles ending at the reference point", windowLen))
	}

	base := candles[start].Close
	if base <= 0 {
		return Window{}, fmt.Errorf("%w: non-positive base close at %s", models.ErrDegenerateWindow, candles[start].TS.Format("2006-01-02"))
	}

	values := make([]float64, windowLen)
	lo, hi := 0.0, 0.0
	for i := 0; i < windowLen; i++ {
		v := candles[start+i].Close/base - 1
		values[i] = v
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		return Window{}, fmt.Errorf("%w: zero variance window ending %s", models.ErrDegenerateWindow, candles[end].TS.Format("2006-01-02"))
	}

	return Window{
		Start:  start,
		End:    end,
		From:   candles[start].TS,
		To:     candles[end].TS,
		Values: values,
	}, nil
}
