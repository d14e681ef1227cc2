// Package events defines the narrow write-only sink the control loop
// emits metric and decision records through (spec.md §4.8), and the
// concrete sinks: structured logs, Prometheus, and NATS publish.
package events

import "time"

// MetricEvent is emitted once per tick (spec.md §6).
type MetricEvent struct {
	WallTs          time.Time
	CPUPct          float64
	AppliedLimitPct float64
	AppliedLimitSet bool // false in observe-only mode (spec.md §4.6)
	WindowAvgPct    float64
	PeakTotalSec    float64
	Method          string // "host" or "cgroup" (spec.md §4.1 rationale)

	// DiskReadBps, DiskWriteBps, NetRecvBps, NetSentBps are
	// SPEC_FULL.md §C.5's auxiliary rate metrics, populated only when
	// disk/net sampling is enabled.
	DiskReadBps  float64
	DiskWriteBps float64
	NetRecvBps   float64
	NetSentBps   float64
}

// DecisionReason carries the solver.Reason behind an actuator write onto
// the decision event (spec.md §6); the control loop adds no reasons of
// its own.
type DecisionReason string

// DecisionEvent is emitted once per actuator write (spec.md §6).
type DecisionEvent struct {
	WallTs         time.Time
	BeforePct      float64
	AfterPct       float64
	AvgPct         float64
	PeakTotalSec   float64
	PeakRemainSec  float64
	ReservationID  string // empty when none active
	Reason         DecisionReason
	// RiskLevel is SPEC_FULL.md §C.2's ported classification, observational
	// context only — never read back by the solver.
	RiskLevel string
}

// Sink is the core's only outward-facing interface for telemetry. Both
// methods are non-blocking from the caller's perspective: an
// implementation that cannot keep up drops events rather than stall the
// loop (spec.md §4.8).
type Sink interface {
	RecordMetric(MetricEvent)
	RecordDecision(DecisionEvent)
}

// Multi fans a single call out to every child sink. Each
// RecordMetric/RecordDecision call is handed to the children
// synchronously and in order, so a child that blocks also delays the
// children after it and the caller. PromSink only updates in-memory
// metrics and NATSSink relies on nats.Conn's internal buffering; Multi
// adds no concurrency of its own.
type Multi struct {
	sinks []Sink
}

// NewMulti builds a fan-out sink over the given children.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) RecordMetric(e MetricEvent) {
	for _, s := range m.sinks {
		s.RecordMetric(e)
	}
}

func (m *Multi) RecordDecision(e DecisionEvent) {
	for _, s := range m.sinks {
		s.RecordDecision(e)
	}
}

// RiskLevel buckets quota consumption the way original_source's
// get_scheduler_status does (SPEC_FULL.md §C.2): high at or above 90% of
// budget consumed, medium at or above 70%, low otherwise.
func RiskLevel(usedPct, totalPct float64) string {
	if totalPct <= 0 {
		return "low"
	}
	ratio := usedPct / totalPct
	switch {
	case ratio >= 0.9:
		return "high"
	case ratio >= 0.7:
		return "medium"
	default:
		return "low"
	}
}
