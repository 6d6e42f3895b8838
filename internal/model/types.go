// Package model defines shared data structures.
package model

import "time"

// Config defines simulation and dashboard settings.
type Config struct {
	Seed        int64
	Tick        time.Duration
	HistoryRows int
	LogLevel    string
	LogFile     string
}

// WebConfig defines browser dashboard settings.
type WebConfig struct {
	Addr        string
	OpenBrowser bool
}

// ReactorStatus is the operational state of the bioreactor for one hour.
type ReactorStatus string

// Reactor states.
const (
	ReactorOK      ReactorStatus = "OK"
	ReactorAnomaly ReactorStatus = "ANOMALY"
)

// EnergyStatus is the state of the energy module for one hour.
type EnergyStatus string

// Energy states.
const (
	EnergyOK    EnergyStatus = "OK"
	EnergyAlert EnergyStatus = "ALERT"
)

// ReactorReadings holds the sampled bioreactor parameters.
type ReactorReadings struct {
	PH                 float64 `json:"ph"`
	TemperatureC       float64 `json:"temperatureC"`
	TurbidityNTU       float64 `json:"turbidityNTU"`
	ConductivityMSCM   float64 `json:"conductivityMSCM"`
	DissolvedOxygenMgL float64 `json:"dissolvedOxygenMgL"`
	HeavyMetalsPPM     float64 `json:"heavyMetalsPPM"`
}

// Record captures one simulated hour of operation.
type Record struct {
	Hour               int             `json:"hour"`
	CumulativeTonnage  float64         `json:"cumulativeTonnage"`
	ContaminationPct   float64         `json:"contaminationPct"`
	MineralsKg         float64         `json:"mineralsKg"`
	BioplasticsKg      float64         `json:"bioplasticsKg"`
	BiofertilizersKg   float64         `json:"biofertilizersKg"`
	CompositesKg       float64         `json:"compositesKg"`
	EnergyKWh          float64         `json:"energyKWh"`
	OptimizationFactor float64         `json:"optimizationFactor"`
	Reactor            ReactorReadings `json:"reactor"`
	ReactorStatus      ReactorStatus   `json:"reactorStatus"`
	EnergyStatus       EnergyStatus    `json:"energyStatus"`
}

// Snapshot is a read-only copy of the session state.
type Snapshot struct {
	RunID             string   `json:"runId"`
	Running           bool     `json:"running"`
	Hour              int      `json:"hour"`
	CumulativeTonnage float64  `json:"cumulativeTonnage"`
	Contamination     float64  `json:"contamination"`
	History           []Record `json:"history"`
}

// Completed reports whether the session stopped after running at least one hour.
func (s Snapshot) Completed() bool {
	return !s.Running && s.Hour > 0
}

// Last returns the most recent record, if any.
func (s Snapshot) Last() (Record, bool) {
	if len(s.History) == 0 {
		return Record{}, false
	}
	return s.History[len(s.History)-1], true
}

// Totals aggregates per-hour yields over a history.
type Totals struct {
	MineralsKg       float64
	BioplasticsKg    float64
	BiofertilizersKg float64
	CompositesKg     float64
	EnergyKWh        float64
	Anomalies        int
	EnergyAlerts     int
}
