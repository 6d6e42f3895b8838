// Package stats aggregates simulation history and renders text reports.
package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/verte-zerg/biomine/internal/model"
	"github.com/verte-zerg/biomine/internal/sim"
)

const sparkChars = " .:-=+*#%@"

// Sum computes yield totals and status counts over a history.
func Sum(history []model.Record) model.Totals {
	var t model.Totals
	for _, r := range history {
		t.MineralsKg += r.MineralsKg
		t.BioplasticsKg += r.BioplasticsKg
		t.BiofertilizersKg += r.BiofertilizersKg
		t.CompositesKg += r.CompositesKg
		t.EnergyKWh += r.EnergyKWh
		if r.ReactorStatus == model.ReactorAnomaly {
			t.Anomalies++
		}
		if r.EnergyStatus == model.EnergyAlert {
			t.EnergyAlerts++
		}
	}
	return t
}

// ContaminationDelta is the change in contamination over the latest hour.
// It is zero before the first hour.
func ContaminationDelta(history []model.Record) float64 {
	switch len(history) {
	case 0:
		return 0
	case 1:
		return history[0].ContaminationPct - sim.InitialContamination
	default:
		return history[len(history)-1].ContaminationPct - history[len(history)-2].ContaminationPct
	}
}

// Column extracts one value per record.
func Column(history []model.Record, pick func(model.Record) float64) []float64 {
	out := make([]float64, len(history))
	for i, r := range history {
		out[i] = pick(r)
	}
	return out
}

// TraditionalColumn returns the conventional-mining reference for each hour in history.
func TraditionalColumn(history []model.Record) []float64 {
	return Column(history, func(r model.Record) float64 {
		return sim.TraditionalContamination(r.Hour)
	})
}

// EnergyAverageWindow is the smoothing window, in hours, of the energy chart.
const EnergyAverageWindow = 6

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := values[0], values[0]
	for _, v := range values[1:] {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderSummary prints the KPI block for a snapshot.
func RenderSummary(w io.Writer, snap model.Snapshot) error {
	if snap.Hour == 0 {
		_, err := fmt.Fprintln(w, "No hours simulated.")
		return err
	}
	totals := Sum(snap.History)
	lines := []string{
		"Summary",
		fmt.Sprintf("Run: %s", snap.RunID),
		fmt.Sprintf("Operating time: %d h", snap.Hour),
		fmt.Sprintf("Tonnes processed: %.0f t", snap.CumulativeTonnage),
		fmt.Sprintf("Contamination: %.2f%% (traditional %.2f%%)", snap.Contamination, sim.TraditionalContamination(snap.Hour)),
		fmt.Sprintf("Minerals recovered: %.2f kg", totals.MineralsKg),
		fmt.Sprintf("Bioplastics: %.2f kg  Biofertilizers: %.2f kg  Composites: %.2f kg", totals.BioplasticsKg, totals.BiofertilizersKg, totals.CompositesKg),
		fmt.Sprintf("Energy generated: %.2f kWh", totals.EnergyKWh),
		fmt.Sprintf("Reactor anomalies: %d  Energy alerts: %d", totals.Anomalies, totals.EnergyAlerts),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// HistoryTable builds header and rows for the last n records, newest last.
// n <= 0 means all records.
func HistoryTable(history []model.Record, n int) ([]string, [][]string) {
	headers := []string{"Hour", "Tonnes", "Contam %", "Minerals kg", "Energy kWh", "pH", "Temp °C", "Metals ppm", "Reactor", "Energy"}
	if n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	rows := make([][]string, 0, len(history))
	for _, r := range history {
		rows = append(rows, []string{
			fmt.Sprintf("%d", r.Hour),
			fmt.Sprintf("%.0f", r.CumulativeTonnage),
			fmt.Sprintf("%.2f", r.ContaminationPct),
			fmt.Sprintf("%.2f", r.MineralsKg),
			fmt.Sprintf("%.3f", r.EnergyKWh),
			fmt.Sprintf("%.2f", r.Reactor.PH),
			fmt.Sprintf("%.2f", r.Reactor.TemperatureC),
			fmt.Sprintf("%.1f", r.Reactor.HeavyMetalsPPM),
			string(r.ReactorStatus),
			string(r.EnergyStatus),
		})
	}
	return headers, rows
}

// RenderHistoryTable prints the last n records as an aligned table.
func RenderHistoryTable(w io.Writer, history []model.Record, n int) error {
	if len(history) == 0 {
		_, err := fmt.Fprintln(w, "No records.")
		return err
	}
	headers, rows := HistoryTable(history, n)
	rightAlign := map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true}
	if _, err := fmt.Fprintln(w, "History"); err != nil {
		return err
	}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderCharts prints the contamination comparison, energy and byproduct charts.
func RenderCharts(w io.Writer, history []model.Record, totalWidth, height int, useColor bool) error {
	if len(history) == 0 {
		return nil
	}
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	charts := []struct {
		opts   PlotOptions
		series []Series
	}{
		{
			opts: PlotOptions{Title: "Contamination (%): BioMine vs traditional", Fixed: true, Min: 0, Max: 100},
			series: []Series{
				{Name: "BioMine", Values: Column(history, func(r model.Record) float64 { return r.ContaminationPct })},
				{Name: "Traditional", Values: TraditionalColumn(history)},
			},
		},
		{
			opts: PlotOptions{Title: "Energy generated per hour (kWh)"},
			series: EnergySeries(history),
		},
		{
			opts:   PlotOptions{Title: "Byproducts per hour (kg)"},
			series: ByproductSeries(history),
		},
	}
	for _, c := range charts {
		c.opts.Width = width
		c.opts.Height = height
		c.opts.Color = useColor
		if err := PlotSeries(w, c.series, c.opts); err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, ""); err != nil {
			return err
		}
	}
	return nil
}

// EnergySeries returns per-hour energy with its moving average.
func EnergySeries(history []model.Record) []Series {
	energy := Column(history, func(r model.Record) float64 { return r.EnergyKWh })
	return []Series{
		{Name: "Energy", Values: energy},
		{Name: fmt.Sprintf("%dh average", EnergyAverageWindow), Values: MovingAverage(energy, EnergyAverageWindow)},
	}
}

// ByproductSeries returns the four per-hour byproduct yields.
func ByproductSeries(history []model.Record) []Series {
	return []Series{
		{Name: "Minerals", Values: Column(history, func(r model.Record) float64 { return r.MineralsKg })},
		{Name: "Bioplastics", Values: Column(history, func(r model.Record) float64 { return r.BioplasticsKg })},
		{Name: "Biofertilizers", Values: Column(history, func(r model.Record) float64 { return r.BiofertilizersKg })},
		{Name: "Composites", Values: Column(history, func(r model.Record) float64 { return r.CompositesKg })},
	}
}
