package sim

import (
	"errors"
	"math"
	"testing"

	"github.com/verte-zerg/biomine/internal/model"
)

type constSource float64

func (c constSource) Float64() float64 { return float64(c) }

func TestStepContaminationBoundedAndNonIncreasing(t *testing.T) {
	for _, seed := range []int64{1, 7, 42, 1234} {
		eng := NewEngine(NewSource(seed))
		prev := InitialContamination
		for hour := 1; hour <= 2000; hour++ {
			_, next, err := eng.Step(hour, prev)
			if err != nil {
				t.Fatalf("seed %d hour %d: step failed: %v", seed, hour, err)
			}
			if next < 0 || next > 100 {
				t.Fatalf("seed %d hour %d: contamination %v out of range", seed, hour, next)
			}
			if next > prev {
				t.Fatalf("seed %d hour %d: contamination rose from %v to %v", seed, hour, prev, next)
			}
			prev = next
		}
	}
}

func TestStepFormulasAtLowerBound(t *testing.T) {
	eng := NewEngine(constSource(0))
	rec, next, err := eng.Step(50, 80)
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	factor := 1.1
	reduction := 0.04 * factor
	wantNext := 80 * (1 - reduction)
	if math.Abs(next-wantNext) > 1e-9 || math.Abs(rec.ContaminationPct-wantNext) > 1e-9 {
		t.Fatalf("expected contamination %v, got %v (record %v)", wantNext, next, rec.ContaminationPct)
	}
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"factor", rec.OptimizationFactor, factor},
		{"ph", rec.Reactor.PH, 6.5 + (factor - 1)},
		{"temperature", rec.Reactor.TemperatureC, 25},
		{"turbidity", rec.Reactor.TurbidityNTU, 10 * (1 - reduction)},
		{"conductivity", rec.Reactor.ConductivityMSCM, 1.5},
		{"oxygen", rec.Reactor.DissolvedOxygenMgL, 6.0},
		{"metals", rec.Reactor.HeavyMetalsPPM, 100 * (1 - reduction)},
		{"energy", rec.EnergyKWh, 0.2},
		{"minerals", rec.MineralsKg, 1.0},
		{"bioplastics", rec.BioplasticsKg, 0.2},
		{"biofertilizers", rec.BiofertilizersKg, 0.4},
		{"composites", rec.CompositesKg, 0.1},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 1e-9 {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
	if rec.Hour != 50 {
		t.Fatalf("expected hour 50, got %d", rec.Hour)
	}
	if rec.ReactorStatus != model.ReactorAnomaly || rec.EnergyStatus != model.EnergyAlert {
		t.Fatalf("expected anomaly and alert for a zero draw, got %s/%s", rec.ReactorStatus, rec.EnergyStatus)
	}
}

func TestStepStatusOKAtUpperDraw(t *testing.T) {
	eng := NewEngine(constSource(0.99))
	rec, _, err := eng.Step(1, 100)
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if rec.ReactorStatus != model.ReactorOK || rec.EnergyStatus != model.EnergyOK {
		t.Fatalf("expected OK statuses, got %s/%s", rec.ReactorStatus, rec.EnergyStatus)
	}
}

func TestStepClampsAtZeroForLargeFactor(t *testing.T) {
	// Hour 10000 gives factor 21, so a mid-range draw removes more than everything.
	eng := NewEngine(constSource(0.5))
	rec, next, err := eng.Step(10000, 42)
	if err != nil {
		t.Fatalf("step failed: %v", err)
	}
	if next != 0 {
		t.Fatalf("expected contamination clamped to 0, got %v", next)
	}
	if rec.Reactor.TurbidityNTU != 0 || rec.Reactor.HeavyMetalsPPM != 0 {
		t.Fatalf("expected readings floored at 0, got %+v", rec.Reactor)
	}
	if rec.Reactor.PH < 20 {
		t.Fatalf("expected pH to drift with the factor, got %v", rec.Reactor.PH)
	}
}

func TestStepRejectsInvalidInput(t *testing.T) {
	eng := NewEngine(NewSource(1))
	cases := []struct {
		name          string
		hour          int
		contamination float64
	}{
		{"zero hour", 0, 50},
		{"negative hour", -3, 50},
		{"negative contamination", 1, -0.1},
		{"contamination above 100", 1, 100.5},
		{"nan contamination", 1, math.NaN()},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, _, err := eng.Step(c.hour, c.contamination); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestStepSameSeedSameTrace(t *testing.T) {
	a := NewEngine(NewSource(99))
	b := NewEngine(NewSource(99))
	prevA, prevB := InitialContamination, InitialContamination
	for hour := 1; hour <= 50; hour++ {
		recA, nextA, _ := a.Step(hour, prevA)
		recB, nextB, _ := b.Step(hour, prevB)
		if recA != recB {
			t.Fatalf("hour %d: traces diverged: %+v vs %+v", hour, recA, recB)
		}
		prevA, prevB = nextA, nextB
	}
}

func TestReactorAnomalyFrequency(t *testing.T) {
	eng := NewEngine(NewSource(2024))
	const ticks = 10000
	anomalies, alerts := 0, 0
	prev := InitialContamination
	for hour := 1; hour <= ticks; hour++ {
		rec, next, err := eng.Step(hour, prev)
		if err != nil {
			t.Fatalf("step failed: %v", err)
		}
		if rec.ReactorStatus == model.ReactorAnomaly {
			anomalies++
		}
		if rec.EnergyStatus == model.EnergyAlert {
			alerts++
		}
		prev = next
	}
	anomalyRate := float64(anomalies) / ticks
	if math.Abs(anomalyRate-0.05) > 0.01 {
		t.Fatalf("anomaly rate %.4f outside tolerance of 0.05", anomalyRate)
	}
	alertRate := float64(alerts) / ticks
	if math.Abs(alertRate-0.02) > 0.008 {
		t.Fatalf("alert rate %.4f outside tolerance of 0.02", alertRate)
	}
}

func TestOptimizationFactorAndTraditionalCurve(t *testing.T) {
	if got := OptimizationFactor(500); math.Abs(got-2.0) > 1e-12 {
		t.Fatalf("expected factor 2.0 at hour 500, got %v", got)
	}
	if OptimizationFactor(501) <= 2.0 {
		t.Fatalf("expected factor above 2.0 after hour 500")
	}
	if got := TraditionalContamination(0); got != 100 {
		t.Fatalf("expected 100 at hour 0, got %v", got)
	}
	if got := TraditionalContamination(2); math.Abs(got-90.25) > 1e-9 {
		t.Fatalf("expected 90.25 at hour 2, got %v", got)
	}
}
