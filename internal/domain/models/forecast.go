package models

import "time"

// PathPoint is one forward day of a projected path.
type PathPoint struct {
	Day    int       `json:"day"`
	Date   time.Time `json:"date"`
	Return float64   `json:"return"`
	Price  float64   `json:"price"`
}

// Marker reports the expected outcome at a fixed checkpoint.
type Marker struct {
	Day            int     `json:"day"`
	ExpectedReturn float64 `json:"expectedReturn"`
	Price          float64 `json:"price"`
	Low            float64 `json:"low"`
	High           float64 `json:"high"`
	ReplayReturn   float64 `json:"replayReturn"`
}

// TailFloor is the worst terminal outcome observed among matches.
type TailFloor struct {
	Return float64 `json:"return"`
	Price  float64 `json:"price"`
}

// Forecast holds the synthetic and replay projections. They are never blended.
type Forecast struct {
	Anchor        PathPoint   `json:"anchor"`
	SyntheticPath []PathPoint `json:"syntheticPath"`
	UpperBand     []PathPoint `json:"upperBand"`
	LowerBand     []PathPoint `json:"lowerBand"`
	TailFloor     TailFloor   `json:"tailFloor"`
	ReplayPath    []PathPoint `json:"replayPath"`
	Markers       []Marker    `json:"markers"`
}

// SyntheticReturns returns the synthetic path as returns.
func (f Forecast) SyntheticReturns() []float64 { return pathReturns(f.SyntheticPath) }

// ReplayReturns returns the replay path as returns.
func (f Forecast) ReplayReturns() []float64 { return pathReturns(f.ReplayPath) }

func pathReturns(p []PathPoint) []float64 {
	out := make([]float64, len(p))
	for i := range p {
		out[i] = p[i].Return
	}
	return out
}

// Divergence flags. HIGH_DIVERGENCE is shared with phase strength (FlagHighDivergence).
const (
	FlagPerfectMatch = "PERFECT_MATCH"
	FlagLowCorr      = "LOW_CORR"
	FlagTermDrift    = "TERM_DRIFT"
	FlagDirMismatch  = "DIR_MISMATCH"
)

// Divergence measures agreement between the synthetic and replay paths.
type Divergence struct {
	Samples                int      `json:"samples"`
	RMSE                   float64  `json:"rmse"`
	MAPE                   float64  `json:"mape"`
	Correlation            float64  `json:"correlation"`
	TerminalDelta          float64  `json:"terminalDelta"`
	DirectionalMismatchPct float64  `json:"directionalMismatchPct"`
	Grade                  string   `json:"grade"`
	Score                  float64  `json:"score"`
	Flags                  []string `json:"flags"`
}

// ChartSeries is a rendered forecast for one display mode.
type ChartSeries struct {
	Mode   string      `json:"mode"`
	Main   []PathPoint `json:"main"`
	Upper  []PathPoint `json:"upper,omitempty"`
	Lower  []PathPoint `json:"lower,omitempty"`
	Replay []PathPoint `json:"replay,omitempty"`
}
