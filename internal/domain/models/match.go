package models

import "time"

// DateRange is an inclusive range of candle timestamps.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SubScores are the per-candidate quality scores, each in [0,1].
type SubScores struct {
	VolatilityMatch float64 `json:"volatilityMatch"`
	DrawdownShape   float64 `json:"drawdownShape"`
	Stability       float64 `json:"stability"`
}

// Match is a historical window judged similar to the current one.
type Match struct {
	ID               string    `json:"id"`
	Rank             int       `json:"rank"`
	DateRange        DateRange `json:"dateRange"`
	Similarity       float64   `json:"similarity"`
	SubScores        SubScores `json:"subScores"`
	Phase            Phase     `json:"phase"`
	AftermathReturns []float64 `json:"aftermathReturns"`
	EndIndex         int       `json:"-"`
}

// PrimarySelection is the single match elevated for a horizon.
type PrimarySelection struct {
	PrimaryMatch    Match   `json:"primaryMatch"`
	SelectionScore  float64 `json:"selectionScore"`
	SelectionReason string  `json:"selectionReason"`
	Candidates      int     `json:"candidates"`
}

// PercentileSeries holds day-indexed percentile curves; index 0 is forward day 1.
type PercentileSeries struct {
	P10 []float64 `json:"p10"`
	P25 []float64 `json:"p25"`
	P50 []float64 `json:"p50"`
	P75 []float64 `json:"p75"`
	P90 []float64 `json:"p90"`
}

// AftermathStats summarizes terminal outcomes across matches.
type AftermathStats struct {
	SampleSize   int     `json:"sampleSize"`
	HitRate      float64 `json:"hitRate"`
	MedianReturn float64 `json:"medianReturn"`
	MeanReturn   float64 `json:"meanReturn"`
	AvgMaxDD     float64 `json:"avgMaxDD"`
	P95MaxDD     float64 `json:"p95MaxDD"`
	P10Return    float64 `json:"p10Return"`
	P90Return    float64 `json:"p90Return"`
	WorstReturn  float64 `json:"worstReturn"`
	BestReturn   float64 `json:"bestReturn"`
	UpFraction   float64 `json:"upFraction"`
}

// AftermathDistribution is the cross-match distribution of forward returns.
type AftermathDistribution struct {
	Days   int              `json:"days"`
	Series PercentileSeries `json:"series"`
	Stats  AftermathStats   `json:"stats"`
}
