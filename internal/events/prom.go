package events

import "github.com/prometheus/client_golang/prometheus"

// PromSink exposes governor state as Prometheus gauges/counters, grounded
// on the teacher's metrics.go registration style (package-level vars,
// MustRegister in a constructor rather than a package init, since a
// governor process owns exactly one registry-worthy instance).
type PromSink struct {
	cpuPct          prometheus.Gauge
	windowAvgPct    prometheus.Gauge
	peakTotalSec    prometheus.Gauge
	appliedLimitPct prometheus.Gauge
	observeOnly     prometheus.Gauge
	decisionsTotal  *prometheus.CounterVec
}

// NewPromSink creates and registers the governor's metric set against reg.
func NewPromSink(reg prometheus.Registerer) *PromSink {
	s := &PromSink{
		cpuPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "governor_cpu_percent",
			Help: "Most recent normalized CPU sample.",
		}),
		windowAvgPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "governor_window_average_percent",
			Help: "Rolling average CPU percent over the average horizon.",
		}),
		peakTotalSec: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "governor_peak_total_seconds",
			Help: "Cumulative wall time spent at or above the peak threshold within the peak horizon.",
		}),
		appliedLimitPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "governor_applied_limit_percent",
			Help: "Currently applied cpu.max limit, normalized to whole-machine percent.",
		}),
		observeOnly: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "governor_observe_only",
			Help: "1 when the actuator is degraded to observe-only mode, 0 otherwise.",
		}),
		decisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "governor_decisions_total",
			Help: "Count of actuator writes by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(s.cpuPct, s.windowAvgPct, s.peakTotalSec, s.appliedLimitPct, s.observeOnly, s.decisionsTotal)
	return s
}

func (s *PromSink) RecordMetric(e MetricEvent) {
	s.cpuPct.Set(e.CPUPct)
	s.windowAvgPct.Set(e.WindowAvgPct)
	s.peakTotalSec.Set(e.PeakTotalSec)
	if e.AppliedLimitSet {
		s.appliedLimitPct.Set(e.AppliedLimitPct)
		s.observeOnly.Set(0)
	} else {
		s.observeOnly.Set(1)
	}
}

func (s *PromSink) RecordDecision(e DecisionEvent) {
	s.decisionsTotal.WithLabelValues(string(e.Reason)).Inc()
}
