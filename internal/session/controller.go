// Package session drives the simulation engine and owns the session state.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rs/xid"

	"github.com/verte-zerg/biomine/internal/logging"
	"github.com/verte-zerg/biomine/internal/model"
	"github.com/verte-zerg/biomine/internal/sim"
)

// Stepper advances the process model by one hour.
type Stepper interface {
	Step(hour int, prevContamination float64) (model.Record, float64, error)
}

// Update is handed to the display after every tick.
type Update struct {
	Record   model.Record
	Snapshot model.Snapshot
}

// Display consumes per-tick updates. Show is called from the run loop and
// must not block for long.
type Display interface {
	Show(Update)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(Update)

// Show implements Display.
func (f DisplayFunc) Show(u Update) {
	f(u)
}

type discardDisplay struct{}

func (discardDisplay) Show(Update) {}

// Option configures a Controller.
type Option func(*Controller)

// WithPacer sets the wait between ticks.
func WithPacer(p Pacer) Option {
	return func(c *Controller) {
		if p != nil {
			c.pacer = p
		}
	}
}

// WithDisplay sets the display collaborator.
func WithDisplay(d Display) Option {
	return func(c *Controller) {
		if d != nil {
			c.display = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

type state struct {
	runID         string
	running       bool
	hour          int
	tonnage       float64
	contamination float64
	history       []model.Record
}

func newState() state {
	return state{
		runID:         xid.New().String(),
		contamination: sim.InitialContamination,
	}
}

func (s *state) snapshot() model.Snapshot {
	history := s.history
	if history == nil {
		history = []model.Record{}
	}
	return model.Snapshot{
		RunID:             s.runID,
		Running:           s.running,
		Hour:              s.hour,
		CumulativeTonnage: s.tonnage,
		Contamination:     s.contamination,
		// History is append-only until reset replaces it, so a
		// capacity-capped view never changes under the reader.
		History: history[:len(history):len(history)],
	}
}

// Controller is the start/stop/reset state machine around the engine.
type Controller struct {
	engine  Stepper
	pacer   Pacer
	display Display
	logger  *slog.Logger

	mu   sync.Mutex
	st   state
	wake chan struct{}
}

// NewController constructs a stopped controller.
func NewController(engine Stepper, opts ...Option) *Controller {
	c := &Controller{
		engine:  engine,
		pacer:   NoDelay,
		display: discardDisplay{},
		logger:  logging.Discard(),
		st:      newState(),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start moves STOPPED to RUNNING. It reports whether the state changed.
func (c *Controller) Start() bool {
	c.mu.Lock()
	if c.st.running {
		c.mu.Unlock()
		return false
	}
	c.st.running = true
	runID, hour := c.st.runID, c.st.hour
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	c.logger.Info("session started", "run", runID, "hour", hour)
	return true
}

// Stop moves RUNNING to STOPPED. It reports whether the state changed.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	if !c.st.running {
		c.mu.Unlock()
		return false
	}
	c.st.running = false
	runID, hour := c.st.runID, c.st.hour
	c.mu.Unlock()

	c.logger.Info("session stopped", "run", runID, "hour", hour)
	return true
}

// Reset stops the session and clears all accumulated state.
func (c *Controller) Reset() model.Snapshot {
	c.mu.Lock()
	prev := c.st.runID
	c.st = newState()
	snap := c.st.snapshot()
	c.mu.Unlock()

	c.logger.Info("session reset", "previous_run", prev, "run", snap.RunID)
	return snap
}

// Running reports whether the session is RUNNING.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.running
}

// Snapshot returns a read-only copy of the current state.
func (c *Controller) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.snapshot()
}

// Tick applies one simulated hour if the session is running. The second
// return value is false when the session was stopped and nothing happened.
// An engine failure stops the session.
func (c *Controller) Tick() (Update, bool, error) {
	c.mu.Lock()
	if !c.st.running {
		c.mu.Unlock()
		return Update{}, false, nil
	}
	hour := c.st.hour + 1
	rec, next, err := c.engine.Step(hour, c.st.contamination)
	if err != nil {
		c.st.running = false
		c.mu.Unlock()
		return Update{}, false, fmt.Errorf("failed to simulate hour %d: %w", hour, err)
	}
	c.st.hour = hour
	c.st.contamination = next
	c.st.tonnage += sim.TonnesPerHour
	rec.CumulativeTonnage = c.st.tonnage
	c.st.history = append(c.st.history, rec)
	snap := c.st.snapshot()
	c.mu.Unlock()

	c.logger.Debug("tick",
		"run", snap.RunID,
		"hour", rec.Hour,
		"contamination", rec.ContaminationPct,
		"reactor", rec.ReactorStatus,
		"energy", rec.EnergyStatus,
	)
	c.logger.Log(context.Background(), logging.LevelTrace, "tick readings",
		"run", snap.RunID,
		"hour", rec.Hour,
		"factor", rec.OptimizationFactor,
		"ph", rec.Reactor.PH,
		"temperature_c", rec.Reactor.TemperatureC,
		"turbidity_ntu", rec.Reactor.TurbidityNTU,
		"conductivity_ms_cm", rec.Reactor.ConductivityMSCM,
		"dissolved_oxygen_mg_l", rec.Reactor.DissolvedOxygenMgL,
		"heavy_metals_ppm", rec.Reactor.HeavyMetalsPPM,
		"energy_kwh", rec.EnergyKWh,
		"minerals_kg", rec.MineralsKg,
	)
	return Update{Record: rec, Snapshot: snap}, true, nil
}

// Run drives ticks until ctx is cancelled. While stopped it blocks until
// Start is called. The running flag is checked at every tick boundary, so a
// stop takes effect before the next tick and never interrupts one. Run
// returns nil on cancellation and the engine error if a tick fails.
func (c *Controller) Run(ctx context.Context) error {
	for {
		if c.awaitRunning(ctx) != nil {
			return nil
		}
		upd, ok, err := c.Tick()
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		c.display.Show(upd)
		if c.pacer.Wait(ctx) != nil {
			return nil
		}
	}
}

func (c *Controller) awaitRunning(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.Running() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		}
	}
}
