package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"Fractal/internal/domain/models"
)

const dateLayout = "2006-01-02"

func renderTerminal(w io.Writer, t *models.Terminal) error {
	m := t.Meta
	fmt.Fprintf(w, "%s  asof %s  version %d  candles %d\n",
		m.Symbol, m.Asof.Format(dateLayout), m.DataVersion, m.CandleCount)
	fmt.Fprintf(w, "phase %s since %s  volatility %s (x%.2f)\n\n",
		t.PhaseSnapshot.Phase, t.PhaseSnapshot.Since.Format(dateLayout), t.Volatility.Regime, t.Volatility.Ratio)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HORIZON\tTIER\tSTATUS\tDIR\tMEDIAN\tHIT\tGRADE\tMATCHES")
	for _, h := range t.HorizonMatrix {
		if h.Status != "OK" {
			fmt.Fprintf(tw, "%s\t%s\t%s\t-\t-\t-\t-\t%s\n", h.Horizon, h.Tier, h.Status, h.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%+.2f%%\t%.0f%%\t%s\t%d\n",
			h.Horizon, h.Tier, h.Status, h.Direction, h.MedianReturn*100, h.HitRate*100, h.Grade, h.Matches)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	c := t.Consensus
	fmt.Fprintf(w, "\nconsensus %d %s  conflict %s  dominant %s  coverage %.0f%%\n",
		c.ConsensusIndex, c.Direction, c.ConflictLevel, c.DominantTier, c.Coverage*100)
	if c.StructuralLock {
		fmt.Fprintln(w, "structural lock: timing cannot override structure")
	}

	d := t.Decision
	fmt.Fprintf(w, "\ndecision [%s/%s] %s %s  size %.2f  edge %.0f (%s)\n",
		d.Focus, d.Preset, d.Action, d.Mode, d.PositionSize, d.EdgeScore, d.EdgeGrade)
	fmt.Fprintf(w, "expected %+.2f%%  soft stop %.2f%%  tail %.2f%%  r/r %.2f\n",
		d.ExpectedReturn*100, d.SoftStop*100, d.TailRisk*100, d.RiskReward)
	for _, b := range d.Blockers {
		fmt.Fprintf(w, "  blocker: %s\n", b)
	}
	if d.Reason != "" {
		fmt.Fprintf(w, "  %s\n", d.Reason)
	}
	return nil
}

func renderCandles(w io.Writer, cr *models.CandlesResponse) error {
	if cr.Count == 0 || len(cr.Candles) == 0 {
		_, err := fmt.Fprintf(w, "%s: no candles\n", cr.Symbol)
		return err
	}
	first, last := cr.Candles[0], cr.Candles[len(cr.Candles)-1]
	_, err := fmt.Fprintf(w, "%s: %d candles %s .. %s  last close %v\n",
		cr.Symbol, cr.Count, first.Date, last.Date, last.Close)
	return err
}

func renderSnapshots(w io.Writer, sl *models.SnapshotList) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ASOF\tFOCUS\tPRESET\tACTION\tMODE\tSIZE\tCONSENSUS")
	for _, s := range sl.Snapshots {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f\t%d %s\n",
			s.AsofDate.Format(dateLayout), s.Focus, s.Preset, s.Digest.Action, s.Digest.Mode,
			s.Digest.FinalSize, s.Digest.ConsensusIndex, s.Digest.Direction)
	}
	return tw.Flush()
}

func renderWriteResult(w io.Writer, r *models.SnapshotWriteResult) error {
	if r.Queued {
		_, err := fmt.Fprintf(w, "%s: snapshot write queued\n", r.Symbol)
		return err
	}
	_, err := fmt.Fprintf(w, "%s asof %s: written %d, skipped %d\n",
		r.Symbol, r.AsofDate.Format(dateLayout), r.Written, r.Skipped)
	return err
}
