package models

import "time"

// FocusMeta describes how a focus pack was computed.
type FocusMeta struct {
	Symbol        string    `json:"symbol"`
	Focus         Horizon   `json:"focus"`
	Tier          Tier      `json:"tier"`
	Asof          time.Time `json:"asof"`
	DataVersion   int64     `json:"dataVersion"`
	CandleCount   int       `json:"candleCount"`
	CurrentPrice  float64   `json:"currentPrice"`
	WindowLen     int       `json:"windowLen"`
	TopK          int       `json:"topK"`
	AftermathDays int       `json:"aftermathDays"`
	PhaseFilter   Phase     `json:"phaseFilter,omitempty"`
}

// Overlay is the match set with its aggregated distribution.
type Overlay struct {
	CurrentWindow      []float64        `json:"currentWindow"`
	Matches            []Match          `json:"matches"`
	Stats              AftermathStats   `json:"stats"`
	DistributionSeries PercentileSeries `json:"distributionSeries"`
}

// PhaseView is the phase section of a focus pack.
type PhaseView struct {
	PhaseSnapshot
	Strength PhaseStrength `json:"strength"`
}

// QualityDiagnostics summarizes the trustworthiness of a focus pack.
type QualityDiagnostics struct {
	QualityScore   float64 `json:"qualityScore"`
	MeanSimilarity float64 `json:"meanSimilarity"`
	MeanStability  float64 `json:"meanStability"`
	MatchCount     int     `json:"matchCount"`
	Coverage       float64 `json:"coverage"`
}

// FocusPack is the full single-horizon analysis.
type FocusPack struct {
	Meta             FocusMeta          `json:"meta"`
	Overlay          Overlay            `json:"overlay"`
	Forecast         Forecast           `json:"forecast"`
	Divergence       Divergence         `json:"divergence"`
	Phase            PhaseView          `json:"phase"`
	PrimarySelection PrimarySelection   `json:"primarySelection"`
	Diagnostics      QualityDiagnostics `json:"diagnostics"`
}

// FocusPackResponse adds the rendered chart series for the requested mode.
type FocusPackResponse struct {
	*FocusPack
	ChartSeries ChartSeries `json:"chartSeries"`
}

// HorizonSummary is one row of the terminal horizon matrix.
type HorizonSummary struct {
	Horizon      Horizon   `json:"horizon"`
	Tier         Tier      `json:"tier"`
	Status       string    `json:"status"`
	Direction    Direction `json:"direction"`
	MedianReturn float64   `json:"medianReturn"`
	HitRate      float64   `json:"hitRate"`
	Grade        string    `json:"grade"`
	Matches      int       `json:"matches"`
	PrimaryDate  time.Time `json:"primaryDate,omitempty"`
	QualityScore float64   `json:"qualityScore"`
	Error        string    `json:"error,omitempty"`
}

// TerminalMeta describes a terminal payload.
type TerminalMeta struct {
	Symbol      string    `json:"symbol"`
	Asof        time.Time `json:"asof"`
	DataVersion int64     `json:"dataVersion"`
	Focus       Horizon   `json:"focus"`
	Preset      Preset    `json:"preset"`
	CandleCount int       `json:"candleCount"`
	Extended    bool      `json:"extended"`
}

// TerminalChart carries recent candles and the focus forecast.
type TerminalChart struct {
	Candles   []CandleView          `json:"candles"`
	Forecast  *Forecast             `json:"forecast,omitempty"`
	Forecasts map[Horizon]*Forecast `json:"forecasts,omitempty"`
}

// TerminalPhase is the terminal phase section.
type TerminalPhase struct {
	Phase    Phase         `json:"phase"`
	Since    time.Time     `json:"since"`
	Zones    []PhaseZone   `json:"zones"`
	Strength PhaseStrength `json:"strength"`
}

// Terminal aggregates all six horizons for dashboard rendering.
type Terminal struct {
	Meta          TerminalMeta       `json:"meta"`
	Chart         TerminalChart      `json:"chart"`
	HorizonMatrix []HorizonSummary   `json:"horizonMatrix"`
	Consensus     ConsensusResult    `json:"consensus"`
	Decision      DecisionOutput     `json:"decision"`
	PhaseSnapshot TerminalPhase      `json:"phaseSnapshot"`
	Volatility    VolatilitySnapshot `json:"volatility"`
}
