package models

import "time"

// Candle represents one daily OHLCV bar. Series are ordered by TS ascending with unique timestamps.
type Candle struct {
	Symbol string    `json:"-" db:"symbol"`
	TS     time.Time `json:"ts" db:"ts"`
	Open   float64   `json:"o" db:"open"`
	High   float64   `json:"h" db:"high"`
	Low    float64   `json:"l" db:"low"`
	Close  float64   `json:"c" db:"close"`
	Volume float64   `json:"v" db:"volume"`
	Cohort string    `json:"cohort,omitempty" db:"cohort"`
}

// Known backfill cohorts. They are bookkeeping labels only.
const (
	CohortV1950 = "V1950"
	CohortV1990 = "V1990"
	CohortV2008 = "V2008"
	CohortV2020 = "V2020"
	CohortLive  = "LIVE"
)

// Closes extracts the close series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}

// CandleView is the wire shape of a candle on the candles endpoint.
type CandleView struct {
	TS     int64   `json:"ts"`
	Date   string  `json:"date"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v,omitempty"`
	Cohort string  `json:"cohort,omitempty"`
}

// NewCandleView converts a candle to its wire shape.
func NewCandleView(c Candle) CandleView {
	return CandleView{
		TS:     c.TS.UnixMilli(),
		Date:   c.TS.UTC().Format("2006-01-02"),
		Open:   c.Open,
		High:   c.High,
		Low:    c.Low,
		Close:  c.Close,
		Volume: c.Volume,
		Cohort: c.Cohort,
	}
}
