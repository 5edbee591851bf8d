package forecast

import (
	"fmt"
	"strings"

	"Fractal/internal/domain/models"
)

// Display modes.
const (
	ModeSynthetic = "synthetic"
	ModeReplay    = "replay"
	ModeHybrid    = "hybrid"
)

// View is a forecast display variant: SyntheticView, ReplayView or HybridView.
type View interface {
	mode() string
}

// SyntheticView shows the median path with its p10/p90 band.
type SyntheticView struct {
	Path  []models.PathPoint
	Upper []models.PathPoint
	Lower []models.PathPoint
}

// ReplayView shows what happened after the primary analog.
type ReplayView struct {
	Path []models.PathPoint
}

// HybridView shows both projections side by side.
type HybridView struct {
	Synthetic SyntheticView
	Replay    ReplayView
}

func (SyntheticView) mode() string { return ModeSynthetic }
func (ReplayView) mode() string    { return ModeReplay }
func (HybridView) mode() string    { return ModeHybrid }

// ParseMode validates a display mode; empty input yields hybrid.
func ParseMode(s string) (string, error) {
	switch m := strings.ToLower(strings.TrimSpace(s)); m {
	case "":
		return ModeHybrid, nil
	case ModeSynthetic, ModeReplay, ModeHybrid:
		return m, nil
	default:
		return "", fmt.Errorf("unknown forecast mode %q", s)
	}
}

// NewView selects the display variant of a forecast. Unknown modes fall back to hybrid.
func NewView(f models.Forecast, mode string) View {
	syn := SyntheticView{Path: f.SyntheticPath, Upper: f.UpperBand, Lower: f.LowerBand}
	rep := ReplayView{Path: f.ReplayPath}
	switch mode {
	case ModeSynthetic:
		return syn
	case ModeReplay:
		return rep
	default:
		return HybridView{Synthetic: syn, Replay: rep}
	}
}

// Render turns a view into chart series.
func Render(v View) models.ChartSeries {
	switch view := v.(type) {
	case SyntheticView:
		return models.ChartSeries{Mode: view.mode(), Main: view.Path, Upper: view.Upper, Lower: view.Lower}
	case ReplayView:
		return models.ChartSeries{Mode: view.mode(), Main: view.Path}
	case HybridView:
		return models.ChartSeries{
			Mode:   view.mode(),
			Main:   view.Synthetic.Path,
			Upper:  view.Synthetic.Upper,
			Lower:  view.Synthetic.Lower,
			Replay: view.Replay.Path,
		}
	default:
		return models.ChartSeries{}
	}
}
