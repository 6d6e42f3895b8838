package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/verte-zerg/biomine/internal/logging"
	"github.com/verte-zerg/biomine/internal/model"
	"github.com/verte-zerg/biomine/internal/sim"
)

func newTestController(opts ...Option) *Controller {
	return NewController(sim.NewEngine(sim.NewSource(7)), opts...)
}

func TestInitialState(t *testing.T) {
	c := newTestController()
	snap := c.Snapshot()
	if snap.Running || snap.Hour != 0 || snap.CumulativeTonnage != 0 || snap.Contamination != 100 {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}
	if len(snap.History) != 0 {
		t.Fatalf("expected empty history, got %d", len(snap.History))
	}
	if snap.RunID == "" {
		t.Fatalf("expected run id")
	}
	if snap.Completed() {
		t.Fatalf("untouched session must not be completed")
	}
}

func TestStartStopAreIdempotent(t *testing.T) {
	c := newTestController()
	if !c.Start() {
		t.Fatalf("expected first start to change state")
	}
	if c.Start() {
		t.Fatalf("expected second start to be a no-op")
	}
	if !c.Running() {
		t.Fatalf("expected running")
	}
	if snap := c.Snapshot(); snap.Hour != 0 || len(snap.History) != 0 {
		t.Fatalf("start must not tick: %+v", snap)
	}
	if !c.Stop() {
		t.Fatalf("expected first stop to change state")
	}
	if c.Stop() {
		t.Fatalf("expected second stop to be a no-op")
	}
}

func TestTickWhileStoppedIsNoop(t *testing.T) {
	c := newTestController()
	_, ok, err := c.Tick()
	if err != nil || ok {
		t.Fatalf("expected no tick while stopped, got ok=%v err=%v", ok, err)
	}
	if c.Snapshot().Hour != 0 {
		t.Fatalf("hour advanced while stopped")
	}
}

func TestThreeTicks(t *testing.T) {
	c := newTestController()
	c.Start()
	for i := 0; i < 3; i++ {
		if _, ok, err := c.Tick(); err != nil || !ok {
			t.Fatalf("tick %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	snap := c.Snapshot()
	if snap.Hour != 3 || len(snap.History) != 3 {
		t.Fatalf("expected hour 3 and 3 records, got %d and %d", snap.Hour, len(snap.History))
	}
	if snap.CumulativeTonnage != 6 {
		t.Fatalf("expected 6 tonnes, got %v", snap.CumulativeTonnage)
	}
	if snap.History[2].Hour != 3 {
		t.Fatalf("expected last record hour 3, got %d", snap.History[2].Hour)
	}
	if snap.Contamination != snap.History[2].ContaminationPct {
		t.Fatalf("current contamination %v does not match last record %v", snap.Contamination, snap.History[2].ContaminationPct)
	}
}

func TestTickAccumulation(t *testing.T) {
	c := newTestController()
	c.Start()
	prevTonnage := 0.0
	prevContamination := 100.0
	for i := 1; i <= 200; i++ {
		upd, ok, err := c.Tick()
		if err != nil || !ok {
			t.Fatalf("tick %d: ok=%v err=%v", i, ok, err)
		}
		if upd.Record.Hour != i {
			t.Fatalf("expected hour %d, got %d", i, upd.Record.Hour)
		}
		if upd.Record.CumulativeTonnage-prevTonnage != 2 {
			t.Fatalf("tonnage must grow by 2, went %v -> %v", prevTonnage, upd.Record.CumulativeTonnage)
		}
		if upd.Record.ContaminationPct > prevContamination {
			t.Fatalf("contamination rose at hour %d", i)
		}
		if len(upd.Snapshot.History) != upd.Snapshot.Hour {
			t.Fatalf("history length %d != hour %d", len(upd.Snapshot.History), upd.Snapshot.Hour)
		}
		prevTonnage = upd.Record.CumulativeTonnage
		prevContamination = upd.Record.ContaminationPct
	}
}

func TestResetFromAnyState(t *testing.T) {
	cases := []struct {
		name  string
		setup func(c *Controller)
	}{
		{"initial", func(*Controller) {}},
		{"running", func(c *Controller) {
			c.Start()
			c.Tick()
			c.Tick()
		}},
		{"completed", func(c *Controller) {
			c.Start()
			c.Tick()
			c.Stop()
		}},
		{"twice", func(c *Controller) {
			c.Start()
			c.Tick()
			c.Reset()
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestController()
			tc.setup(c)
			before := c.Snapshot()
			snap := c.Reset()
			if snap.Running || snap.Hour != 0 || snap.CumulativeTonnage != 0 || snap.Contamination != 100 || len(snap.History) != 0 {
				t.Fatalf("unexpected snapshot after reset: %+v", snap)
			}
			if snap.RunID == before.RunID {
				t.Fatalf("expected a new run id after reset")
			}
			if c.Running() {
				t.Fatalf("expected stopped after reset")
			}
		})
	}
}

func TestSnapshotUnaffectedByLaterTicksAndReset(t *testing.T) {
	c := newTestController()
	c.Start()
	c.Tick()
	c.Tick()
	snap := c.Snapshot()
	first := snap.History[0]
	c.Tick()
	c.Reset()
	c.Start()
	c.Tick()
	if len(snap.History) != 2 || snap.History[0] != first {
		t.Fatalf("snapshot changed after later ticks: %+v", snap.History)
	}
}

func TestCompletedState(t *testing.T) {
	c := newTestController()
	c.Start()
	c.Tick()
	c.Stop()
	if !c.Snapshot().Completed() {
		t.Fatalf("expected completed after stop with hour > 0")
	}
}

type failingStepper struct{}

func (failingStepper) Step(hour int, _ float64) (model.Record, float64, error) {
	return model.Record{}, 0, sim.ErrInvalidInput
}

func TestEngineErrorStopsSession(t *testing.T) {
	c := NewController(failingStepper{})
	c.Start()
	_, ok, err := c.Tick()
	if ok || !errors.Is(err, sim.ErrInvalidInput) {
		t.Fatalf("expected wrapped engine error, got ok=%v err=%v", ok, err)
	}
	if c.Running() {
		t.Fatalf("expected session stopped after engine error")
	}
	if c.Snapshot().Hour != 0 {
		t.Fatalf("failed tick must not advance the hour")
	}
	c.Start()
	if err := c.Run(context.Background()); !errors.Is(err, sim.ErrInvalidInput) {
		t.Fatalf("expected Run to return the engine error, got %v", err)
	}
}

func TestRunStopTakesEffectAtTickBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var c *Controller
	var shown []int
	display := DisplayFunc(func(u Update) {
		shown = append(shown, u.Record.Hour)
		if u.Record.Hour == 2 {
			c.Stop()
		}
	})
	waits := 0
	pacer := PacerFunc(func(ctx context.Context) error {
		waits++
		if waits == 2 {
			// Give the loop a chance to tick again if the stop were ignored.
			go func() {
				time.Sleep(20 * time.Millisecond)
				cancel()
			}()
		}
		return ctx.Err()
	})
	c = newTestController(WithDisplay(display), WithPacer(pacer))
	c.Start()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	snap := c.Snapshot()
	if snap.Hour != 2 || len(snap.History) != 2 {
		t.Fatalf("expected 2 ticks before stop, got hour %d history %d", snap.Hour, len(snap.History))
	}
	if len(shown) != 2 || shown[0] != 1 || shown[1] != 2 {
		t.Fatalf("unexpected displayed hours: %v", shown)
	}
}

func TestRunWaitsForStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan Update, 1)
	display := DisplayFunc(func(u Update) {
		select {
		case updates <- u:
		default:
		}
	})
	c := newTestController(WithDisplay(display))

	var wg sync.WaitGroup
	wg.Add(1)
	var runErr error
	go func() {
		defer wg.Done()
		runErr = c.Run(ctx)
	}()

	select {
	case <-updates:
		t.Fatalf("tick before start")
	case <-time.After(20 * time.Millisecond):
	}

	c.Start()
	select {
	case u := <-updates:
		if u.Record.Hour < 1 {
			t.Fatalf("unexpected record: %+v", u.Record)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no tick after start")
	}

	c.Stop()
	stoppedAt := c.Snapshot().Hour
	time.Sleep(20 * time.Millisecond)
	if got := c.Snapshot().Hour; got != stoppedAt {
		t.Fatalf("ticks continued after stop: %d -> %d", stoppedAt, got)
	}

	cancel()
	wg.Wait()
	if runErr != nil {
		t.Fatalf("run failed: %v", runErr)
	}
}

func TestIntervalPacer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	if err := Interval(time.Millisecond).Wait(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()
	if err := Interval(time.Hour).Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if err := NoDelay.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation from NoDelay, got %v", err)
	}
}

func TestTickLogsReadingsAtTrace(t *testing.T) {
	var buf bytes.Buffer
	c := newTestController(WithLogger(logging.NewLogger("trace", &buf)))
	c.Start()
	if _, _, err := c.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "level=TRACE") || !strings.Contains(out, "tick readings") {
		t.Fatalf("expected trace readings line, got:\n%s", out)
	}
	for _, key := range []string{"ph=", "heavy_metals_ppm=", "factor="} {
		if !strings.Contains(out, key) {
			t.Fatalf("expected %s in trace output:\n%s", key, out)
		}
	}

	buf.Reset()
	c = newTestController(WithLogger(logging.NewLogger("debug", &buf)))
	c.Start()
	if _, _, err := c.Tick(); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if strings.Contains(buf.String(), "tick readings") {
		t.Fatalf("trace line emitted at debug level:\n%s", buf.String())
	}
}
