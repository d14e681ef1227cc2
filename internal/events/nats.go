package events

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSSink publishes events as JSON to a subject for the external
// persistence collaborator spec.md §1 places out of scope. Publish is
// fire-and-forget: nats.Conn buffers internally, and marshal/publish
// errors are logged rather than returned, preserving the sink's
// non-blocking contract (spec.md §4.8).
type NATSSink struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSSink dials url and returns a sink publishing to subject.
func NewNATSSink(url, subject string, logger zerolog.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(url, nats.Name("cpugovernor"))
	if err != nil {
		return nil, err
	}
	return &NATSSink{conn: conn, subject: subject, logger: logger}, nil
}

func (s *NATSSink) RecordMetric(e MetricEvent) {
	s.publish("metric", e)
}

func (s *NATSSink) RecordDecision(e DecisionEvent) {
	s.publish("decision", e)
}

func (s *NATSSink) publish(kind string, payload any) {
	body, err := json.Marshal(struct {
		Kind string `json:"kind"`
		Data any    `json:"data"`
	}{Kind: kind, Data: payload})
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", kind).Msg("failed to marshal event")
		return
	}
	if err := s.conn.Publish(s.subject, body); err != nil {
		s.logger.Warn().Err(err).Str("kind", kind).Msg("failed to publish event")
	}
}

// Close drains and closes the underlying connection.
func (s *NATSSink) Close() {
	_ = s.conn.Drain()
}
