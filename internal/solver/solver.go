// Package solver implements the lookahead reshaping rule: the pure
// function translating window state into the next control step's CPU
// ceiling (spec.md §4.5).
package solver

import (
	"time"

	"github.com/adred-codev/cpugovernor/internal/reservation"
	"github.com/adred-codev/cpugovernor/internal/window"
)

// Reason identifies why the solver produced the value it did, surfaced on
// decision events (spec.md §4.8, §6).
type Reason string

const (
	ReasonScheduled         Reason = "scheduled"
	ReasonReservation       Reason = "reservation"
	ReasonPeakCritical      Reason = "peak-critical"
	ReasonStartup           Reason = "startup"
	ReasonToleranceViolation Reason = "tolerance-violation"
	ReasonManual            Reason = "manual"
	// ReasonQuotaExhausted is additive (SPEC_FULL.md §C.3): the path the
	// solver took this tick (lookahead or residual fallback) ended at or
	// below min_limit and no other reason applied. Only that one path is
	// evaluated, and earlier ticks are not considered.
	ReasonQuotaExhausted Reason = "quota-exhausted"
)

// Config bundles the solver's tunables (spec.md §3, §6). Field names
// mirror internal/config.Config; the solver takes its own copy so it
// never depends on the config package's env/validation concerns.
type Config struct {
	AvgBudgetPct         float64
	PeakBudgetSeconds    float64
	PeakCriticalSeconds  float64
	EmergencyLimitPct    float64
	MinLimitPct          float64
	MaxLimitPct          float64
	Safety               float64
	StartupSafety        float64
	StartupThresholdFrac float64
	ControlStep          time.Duration
	TickInterval         time.Duration
	// ResidualFloorPct is SPEC_FULL.md §C.1's ported minimum-load floor,
	// applied only inside the residual-rule fallback. Zero disables it.
	ResidualFloorPct float64
}

// State is everything the solver reads for one tick (spec.md §4.5 Inputs).
type State struct {
	AvgWin        *window.Average
	PeakWin       *window.Peak
	Reservation   *reservation.Reservation
	NowMono       time.Time
	NowWall       time.Time
}

// Decision is the solver's output plus the reason it picked that path.
type Decision struct {
	LimitPct float64
	Reason   Reason
}

// Solve computes the next control step's ceiling. It is a pure function of
// State and Config: no I/O, no clock reads beyond what State carries.
func Solve(st State, cfg Config) Decision {
	windowTicks := float64(st.AvgWin.Capacity())
	stepTicks := stepTicksOf(cfg)
	count := st.AvgWin.Count()

	reason := ReasonScheduled
	var result float64

	fallback := cfg.ControlStep >= st.AvgWin.Horizon() || count < 2
	if fallback {
		// The residual rule's own formula already folds in the safety
		// factor (spec.md §4.5: "target = max(min_limit, safety ·
		// remaining_budget / ...)"), so step 3 below is skipped for this
		// path — applying it twice would double-discount the ceiling.
		result = residualRule(st, cfg, windowTicks)
	} else {
		sumCurrent := st.AvgWin.Sum()
		cutoff := st.NowMono.Add(-st.AvgWin.Horizon() + cfg.ControlStep)
		sumOldestStep := st.AvgWin.SumOverSuffix(cutoff)
		result = (cfg.AvgBudgetPct*windowTicks - sumCurrent + sumOldestStep) / stepTicks
	}

	if st.Reservation != nil {
		result = min(result, st.Reservation.CPUQuotaPct)
		reason = ReasonReservation
	}

	if st.PeakWin.Remaining(st.NowWall, cfg.PeakBudgetSeconds) <= cfg.PeakCriticalSeconds {
		if cfg.EmergencyLimitPct < result {
			result = cfg.EmergencyLimitPct
			reason = ReasonPeakCritical
		}
	}

	startup := float64(count) < cfg.StartupThresholdFrac*windowTicks
	switch {
	case fallback:
		// safety already applied inside residualRule.
	case startup:
		result *= cfg.StartupSafety
		if reason == ReasonScheduled {
			reason = ReasonStartup
		}
	default:
		result *= cfg.Safety
	}

	result = clamp(result, cfg.MinLimitPct, cfg.MaxLimitPct)

	if result <= cfg.MinLimitPct && reason == ReasonScheduled {
		reason = ReasonQuotaExhausted
	}

	return Decision{LimitPct: result, Reason: reason}
}

func stepTicksOf(cfg Config) float64 {
	if cfg.TickInterval <= 0 {
		return 1
	}
	return float64(cfg.ControlStep) / float64(cfg.TickInterval)
}

// residualRule is the fallback of spec.md §4.5: used when the lookahead
// algebra is ill-conditioned (step >= horizon, or fewer than 2 samples).
func residualRule(st State, cfg Config, windowTicks float64) float64 {
	count := float64(st.AvgWin.Count())
	remainingBudget := cfg.AvgBudgetPct*windowTicks - st.AvgWin.Sum()
	denom := windowTicks - count
	if denom < 1 {
		denom = 1
	}
	target := cfg.Safety * remainingBudget / denom
	if cfg.ResidualFloorPct > 0 && target < cfg.ResidualFloorPct {
		target = cfg.ResidualFloorPct
	}
	if target < cfg.MinLimitPct {
		target = cfg.MinLimitPct
	}
	return target
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
