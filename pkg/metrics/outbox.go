package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outbox publish outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetry        = "retry"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics counts publisher outcomes per event type.
type OutboxMetrics struct {
	publishes *prometheus.CounterVec
}

// NewOutboxMetrics registers the outbox publisher collectors.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	publishes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_publish_total",
		Help:      "Outbox rows handled by the publisher grouped by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(publishes)
	return &OutboxMetrics{publishes: publishes}
}

func (m *OutboxMetrics) ObservePublish(eventType, outcome string) {
	if m == nil || m.publishes == nil {
		return
	}
	m.publishes.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
