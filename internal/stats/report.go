package stats

import (
	"io"

	"github.com/verte-zerg/biomine/internal/model"
)

// ReportOptions controls the headless report layout.
type ReportOptions struct {
	Rows        int
	Width       int
	ChartHeight int
	Color       bool
}

// WriteReport prints summary, history table and charts for a snapshot.
func WriteReport(w io.Writer, snap model.Snapshot, opts ReportOptions) error {
	if err := RenderSummary(w, snap); err != nil {
		return err
	}
	if snap.Hour == 0 {
		return nil
	}
	if err := RenderHistoryTable(w, snap.History, opts.Rows); err != nil {
		return err
	}
	return RenderCharts(w, snap.History, opts.Width, opts.ChartHeight, opts.Color)
}
