package events

import "github.com/rs/zerolog"

// LogSink emits every event as a structured zerolog line. Grounded on the
// teacher's logger construction (internal/shared/monitoring/logger.go):
// one process-wide logger, fields attached per call rather than per
// sub-logger.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink wraps logger for metric/decision emission.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) RecordMetric(e MetricEvent) {
	s.logger.Debug().
		Time("wall_ts", e.WallTs).
		Float64("cpu_pct", e.CPUPct).
		Float64("window_avg_pct", e.WindowAvgPct).
		Float64("peak_total_sec", e.PeakTotalSec).
		Bool("limit_set", e.AppliedLimitSet).
		Float64("applied_limit_pct", e.AppliedLimitPct).
		Str("method", e.Method).
		Msg("tick")
}

func (s *LogSink) RecordDecision(e DecisionEvent) {
	s.logger.Info().
		Time("wall_ts", e.WallTs).
		Float64("before_pct", e.BeforePct).
		Float64("after_pct", e.AfterPct).
		Float64("avg_pct", e.AvgPct).
		Float64("peak_total_sec", e.PeakTotalSec).
		Float64("peak_remaining_sec", e.PeakRemainSec).
		Str("reservation_id", e.ReservationID).
		Str("reason", string(e.Reason)).
		Str("risk_level", e.RiskLevel).
		Msg("quota adjusted")
}
