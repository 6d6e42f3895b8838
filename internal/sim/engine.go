package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/verte-zerg/biomine/internal/model"
)

const (
	// TonnesPerHour is the fixed throughput of the plant.
	TonnesPerHour = 2.0
	// InitialContamination is the contamination level before the first hour.
	InitialContamination = 100.0

	reactorAnomalyRate = 0.05
	energyAlertRate    = 0.02
	traditionalDecay   = 0.95
)

// ErrInvalidInput is returned by Step when hour or contamination are out of range.
var ErrInvalidInput = errors.New("invalid simulation input")

// Engine produces one Record per simulated hour.
type Engine struct {
	src Source
}

// NewEngine returns an Engine drawing from src.
func NewEngine(src Source) *Engine {
	return &Engine{src: src}
}

// OptimizationFactor models the process improving over time. It is not capped.
func OptimizationFactor(hour int) float64 {
	return 1.0 + (float64(hour)/100.0)*0.2
}

// TraditionalContamination is the reference curve for conventional mining.
func TraditionalContamination(hour int) float64 {
	return 100 * math.Pow(traditionalDecay, float64(hour))
}

// Step simulates the given hour starting from prevContamination and returns the
// record together with the new contamination level. CumulativeTonnage is left
// for the caller, which owns the running total.
func (e *Engine) Step(hour int, prevContamination float64) (model.Record, float64, error) {
	if hour < 1 {
		return model.Record{}, 0, fmt.Errorf("%w: hour %d < 1", ErrInvalidInput, hour)
	}
	if math.IsNaN(prevContamination) || prevContamination < 0 || prevContamination > InitialContamination {
		return model.Record{}, 0, fmt.Errorf("%w: contamination %v outside [0, 100]", ErrInvalidInput, prevContamination)
	}

	factor := OptimizationFactor(hour)
	reduction := uniform(e.src, 0.04, 0.08) * factor
	remaining := 1 - reduction
	contamination := clamp(prevContamination*remaining, 0, InitialContamination)

	// Draw order is fixed so a seed replays the same trace.
	reactor := model.ReactorReadings{
		PH:                 uniform(e.src, 6.5, 7.5) + (factor - 1),
		TemperatureC:       uniform(e.src, 25, 30),
		TurbidityNTU:       math.Max(0, uniform(e.src, 10, 20)*remaining),
		ConductivityMSCM:   uniform(e.src, 1.5, 2.5),
		DissolvedOxygenMgL: uniform(e.src, 6.0, 8.0),
		HeavyMetalsPPM:     math.Max(0, uniform(e.src, 100, 200)*remaining),
	}
	reactorStatus := model.ReactorOK
	if bernoulli(e.src, reactorAnomalyRate) {
		reactorStatus = model.ReactorAnomaly
	}

	energy := TonnesPerHour * uniform(e.src, 0.1, 0.2)
	energyStatus := model.EnergyOK
	if bernoulli(e.src, energyAlertRate) {
		energyStatus = model.EnergyAlert
	}

	rec := model.Record{
		Hour:               hour,
		ContaminationPct:   contamination,
		MineralsKg:         TonnesPerHour * uniform(e.src, 0.5, 0.8),
		BioplasticsKg:      TonnesPerHour * uniform(e.src, 0.1, 0.15),
		BiofertilizersKg:   TonnesPerHour * uniform(e.src, 0.2, 0.25),
		CompositesKg:       TonnesPerHour * uniform(e.src, 0.05, 0.1),
		EnergyKWh:          energy,
		OptimizationFactor: factor,
		Reactor:            reactor,
		ReactorStatus:      reactorStatus,
		EnergyStatus:       energyStatus,
	}
	return rec, contamination, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
