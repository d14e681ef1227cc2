package control

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/cpugovernor/internal/actuator"
	"github.com/adred-codev/cpugovernor/internal/events"
	"github.com/adred-codev/cpugovernor/internal/reservation"
	"github.com/adred-codev/cpugovernor/internal/sample"
	"github.com/adred-codev/cpugovernor/internal/solver"
	"github.com/adred-codev/cpugovernor/internal/window"
)

// constSampler always reports the same CPU percentage, letting tests drive
// the loop with a known, steady load.
type constSampler struct{ pct float64 }

func (c constSampler) Sample(now time.Time) (sample.Sample, error) {
	return sample.Sample{Ts: now, CPUPct: c.pct, Method: "test"}, nil
}

// recordingSink captures every metric/decision event for later assertions
// instead of emitting them anywhere.
type recordingSink struct {
	decisions []events.DecisionEvent
}

func (r *recordingSink) RecordMetric(events.MetricEvent) {}
func (r *recordingSink) RecordDecision(d events.DecisionEvent) {
	r.decisions = append(r.decisions, d)
}

func newFakeActuator(t *testing.T) *actuator.Cgroup {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cpu.max"), []byte("max 100000\n"), 0o644); err != nil {
		t.Fatalf("seed cpu.max: %v", err)
	}
	return actuator.New(dir, 4, nil, zerolog.Nop())
}

func newTestLoop(t *testing.T, pct float64) (*Loop, *recordingSink) {
	t.Helper()
	tick := time.Second
	controlStep := 5 * time.Second
	avgWin := window.NewAverage(60*time.Second, tick)
	peakWin := window.NewPeak(24*time.Hour, 95)
	sink := &recordingSink{}

	p := Params{
		Sampler:  constSampler{pct: pct},
		AvgWin:   avgWin,
		PeakWin:  peakWin,
		Reservs:  reservation.NewStore(),
		Actuator: newFakeActuator(t),
		Sink:     sink,
		SolverCfg: solver.Config{
			AvgBudgetPct:         30,
			PeakBudgetSeconds:    3600,
			PeakCriticalSeconds:  0,
			EmergencyLimitPct:    20,
			MinLimitPct:          5,
			MaxLimitPct:          95,
			Safety:               0.9,
			StartupSafety:        0.7,
			StartupThresholdFrac: 0.10,
			ControlStep:          controlStep,
			TickInterval:         tick,
		},
		TickInterval:       tick,
		ControlStep:        controlStep,
		ChangeThresholdPct: 1,
		SmoothFactor:       1, // apply the solved value outright
		TolerancePct:       50,
		ProcResyncInterval: time.Hour,
		ResyncDebounce:     time.Second,
		AvgBudgetPct:       30,
		PeakBudgetSeconds:  3600,
		Logger:             zerolog.Nop(),
	}
	return New(p), sink
}

func TestLoop_HysteresisLimitsWriteFrequency(t *testing.T) {
	loop, sink := newTestLoop(t, 10)
	start := time.Unix(0, 0)

	for i := 0; i < 200; i++ {
		loop.tick(start.Add(time.Duration(i) * time.Second))
	}

	for i := 1; i < len(sink.decisions); i++ {
		gap := sink.decisions[i].WallTs.Sub(sink.decisions[i-1].WallTs)
		if gap < loop.p.ControlStep {
			t.Fatalf("decisions %d and %d are %v apart, want >= control_step (%v)", i-1, i, gap, loop.p.ControlStep)
		}
	}
}

func TestLoop_ConvergesToStableLimit(t *testing.T) {
	loop, sink := newTestLoop(t, 10)
	// With smoothing at 1 the loop jumps straight to the solved ceiling and
	// stops after two writes; a partial smoothing factor makes it approach
	// the ceiling over several writes whose steps shrink.
	loop.p.SmoothFactor = 0.3
	start := time.Unix(0, 0)

	for i := 0; i < 600; i++ {
		loop.tick(start.Add(time.Duration(i) * time.Second))
	}

	if len(sink.decisions) < 3 {
		t.Fatalf("expected multiple decisions over 600 ticks, got %d", len(sink.decisions))
	}

	tail := sink.decisions[len(sink.decisions)-3:]
	for i := 1; i < len(tail); i++ {
		diff := tail[i].AfterPct - tail[i-1].AfterPct
		if diff < 0 {
			diff = -diff
		}
		if diff > 1 {
			t.Fatalf("current_limit_pct still moving under a constant load: %v -> %v", tail[i-1].AfterPct, tail[i].AfterPct)
		}
	}

	status := loop.Status()
	if status.CurrentLimitPct < loop.p.SolverCfg.MinLimitPct || status.CurrentLimitPct > loop.p.SolverCfg.MaxLimitPct {
		t.Fatalf("converged limit %v outside [%v, %v]", status.CurrentLimitPct, loop.p.SolverCfg.MinLimitPct, loop.p.SolverCfg.MaxLimitPct)
	}
}
