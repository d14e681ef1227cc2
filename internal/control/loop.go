// Package control orchestrates the per-tick sequence sample → account →
// solve → actuate → event, implementing hysteresis, smoothing, and
// debounced resync (spec.md §4.7). The loop is single-threaded
// cooperative: exactly one task owns the windows, the solver's inputs,
// and the actuator (spec.md §5).
package control

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/adred-codev/cpugovernor/internal/actuator"
	"github.com/adred-codev/cpugovernor/internal/events"
	"github.com/adred-codev/cpugovernor/internal/reservation"
	"github.com/adred-codev/cpugovernor/internal/sample"
	"github.com/adred-codev/cpugovernor/internal/solver"
	"github.com/adred-codev/cpugovernor/internal/window"
)

// resyncDebounceBurst allows exactly one immediate resync before the
// limiter starts spacing further triggers out (spec.md §4.7 item 8).
const resyncDebounceBurst = 1

// Params bundles everything the loop needs to construct itself.
type Params struct {
	Sampler  sample.Sampler
	DiskNet  *sample.DiskNetSampler // nil disables auxiliary rate metrics
	AvgWin   *window.Average
	PeakWin  *window.Peak
	Reservs  *reservation.Store
	Actuator *actuator.Cgroup
	Sink     events.Sink

	SolverCfg solver.Config

	TickInterval       time.Duration
	ControlStep        time.Duration
	ChangeThresholdPct float64
	SmoothFactor       float64
	TolerancePct       float64
	ProcResyncInterval time.Duration
	ResyncDebounce     time.Duration
	AvgBudgetPct       float64
	PeakBudgetSeconds  float64

	Logger zerolog.Logger
}

// Loop is the running control loop. Its ControlState (spec.md §3) lives
// in the unexported fields below; external callers observe it only
// through Status, never through direct references (spec.md §9).
type Loop struct {
	p Params

	currentLimitPct float64
	currentLimitSet bool
	lastAdjust      time.Time

	lastResyncTick time.Time
	resyncLimiter  *rate.Limiter
}

// New builds a Loop. The initial current_limit is max_limit, matching
// scenario A's cold-start assumption (spec.md §8).
func New(p Params) *Loop {
	return &Loop{
		p:               p,
		currentLimitPct: p.SolverCfg.MaxLimitPct,
		currentLimitSet: true,
		resyncLimiter:   rate.NewLimiter(rate.Every(p.ResyncDebounce), resyncDebounceBurst),
	}
}

// Status is the immutable view external callers may observe (spec.md §9).
type Status struct {
	CurrentLimitPct float64
	LimitIsSet      bool
	LastAdjust      time.Time
}

// Status returns a snapshot of the loop's control state. It reads the
// fields without locking; internal/governor's Controller.Status forwards
// to it unchanged, so neither is synchronized with a running tick.
func (l *Loop) Status() Status {
	return Status{CurrentLimitPct: l.currentLimitPct, LimitIsSet: l.currentLimitSet, LastAdjust: l.lastAdjust}
}

// Run executes the tick loop until ctx is canceled. Cancellation is
// checked at the inter-tick boundary; an in-flight tick is always allowed
// to finish (spec.md §5 gives it a 2s budget, which every I/O call inside
// a tick is expected to finish well within).
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.p.TickInterval)
	defer ticker.Stop()
	defer l.p.Actuator.Teardown()

	for {
		select {
		case <-ctx.Done():
			l.p.Logger.Info().Msg("control loop stopping")
			return
		case now := <-ticker.C:
			l.tick(now)
		}
	}
}

func (l *Loop) tick(now time.Time) {
	s, err := l.p.Sampler.Sample(now)
	if err != nil {
		l.p.Logger.Error().Err(err).Msg("sample failed, skipping tick")
		return
	}

	if err := l.p.AvgWin.Push(s.Ts, s.CPUPct); err != nil {
		l.p.Logger.Warn().Err(err).Msg("average window push rejected")
	}
	l.p.AvgWin.Evict(now)
	l.p.PeakWin.Update(now, s.CPUPct)

	res, hasRes := l.p.Reservs.Active(now)
	var resPtr *reservation.Reservation
	if hasRes {
		resPtr = &res
	}

	decision := solver.Solve(solver.State{
		AvgWin:      l.p.AvgWin,
		PeakWin:     l.p.PeakWin,
		Reservation: resPtr,
		NowMono:     now,
		NowWall:     now,
	}, l.p.SolverCfg)

	l.maybeWrite(now, decision, resPtr)
	l.maybeResync(now, s.CPUPct)

	var rates sample.DiskNetRates
	if l.p.DiskNet != nil {
		rates = l.p.DiskNet.Sample(now)
	}

	limitPct, limitSet, _ := l.p.Actuator.CurrentLimit()
	l.p.Sink.RecordMetric(events.MetricEvent{
		WallTs:          now,
		CPUPct:          s.CPUPct,
		AppliedLimitPct: limitPct,
		AppliedLimitSet: limitSet,
		WindowAvgPct:    l.p.AvgWin.Average(),
		PeakTotalSec:    l.p.PeakWin.TotalPeakSeconds(now),
		Method:          s.Method,
		DiskReadBps:     rates.DiskReadBps,
		DiskWriteBps:    rates.DiskWriteBps,
		NetRecvBps:      rates.NetRecvBps,
		NetSentBps:      rates.NetSentBps,
	})
}

// maybeWrite implements the hysteresis + smoothing sequence of spec.md
// §4.7 items 5–7.
func (l *Loop) maybeWrite(now time.Time, decision solver.Decision, res *reservation.Reservation) {
	if absDiff(decision.LimitPct, l.currentLimitPct) < l.p.ChangeThresholdPct {
		return
	}
	if !l.lastAdjust.IsZero() && now.Sub(l.lastAdjust) < l.p.ControlStep {
		return
	}

	smoothed := l.currentLimitPct*(1-l.p.SmoothFactor) + decision.LimitPct*l.p.SmoothFactor

	before := l.currentLimitPct
	if err := l.p.Actuator.SetLimit(smoothed); err != nil {
		l.p.Logger.Error().Err(err).Msg("set_limit failed")
		return
	}

	l.currentLimitPct = smoothed
	l.currentLimitSet = !l.p.Actuator.ObserveOnly()
	l.lastAdjust = now

	reservationID := ""
	if res != nil {
		reservationID = res.ID
	}

	l.p.Sink.RecordDecision(events.DecisionEvent{
		WallTs:        now,
		BeforePct:     before,
		AfterPct:      smoothed,
		AvgPct:        l.p.AvgWin.Average(),
		PeakTotalSec:  l.p.PeakWin.TotalPeakSeconds(now),
		PeakRemainSec: l.p.PeakWin.Remaining(now, l.p.PeakBudgetSeconds),
		ReservationID: reservationID,
		Reason:        events.DecisionReason(decision.Reason),
		RiskLevel:     events.RiskLevel(l.p.AvgWin.Average(), l.p.AvgBudgetPct),
	})
}

// maybeResync runs the periodic and tolerance-triggered resync of spec.md
// §4.7 item 8.
func (l *Loop) maybeResync(now time.Time, cpuPct float64) {
	periodic := l.lastResyncTick.IsZero() || now.Sub(l.lastResyncTick) >= l.p.ProcResyncInterval
	violated := cpuPct > l.currentLimitPct+l.p.TolerancePct

	if !periodic && !(violated && l.resyncLimiter.Allow()) {
		return
	}

	stats, err := l.p.Actuator.ResyncAll()
	if err != nil {
		l.p.Logger.Error().Err(err).Msg("resync_all failed")
		return
	}
	l.lastResyncTick = now
	l.p.Logger.Debug().
		Int("scanned", stats.Scanned).Int("added", stats.Added).
		Int("skipped", stats.Skipped).Int("failed", stats.Failed).
		Bool("tolerance_triggered", violated).
		Msg("resync complete")
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
