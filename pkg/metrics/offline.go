package metrics

import "github.com/prometheus/client_golang/prometheus"

// OfflineQueueMetrics describes the client-side operation queue.
type OfflineQueueMetrics struct {
	enqueued    *prometheus.CounterVec
	replayed    *prometheus.CounterVec
	retried     *prometheus.CounterVec
	deadLetters *prometheus.CounterVec
	depth       *prometheus.GaugeVec
}

func NewOfflineQueueMetrics(reg prometheus.Registerer) *OfflineQueueMetrics {
	if reg == nil {
		return &OfflineQueueMetrics{}
	}
	label := []string{"type"}
	m := &OfflineQueueMetrics{
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "offline", Name: "enqueued_total",
			Help: "Operations deferred to the offline queue.",
		}, label),
		replayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "offline", Name: "replayed_total",
			Help: "Queued operations confirmed by the server.",
		}, label),
		retried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "offline", Name: "retries_total",
			Help: "Replay attempts that failed with a transport error.",
		}, label),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "offline", Name: "dead_letters_total",
			Help: "Operations moved to the dead letter queue.",
		}, label),
		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "offline", Name: "pending",
			Help: "Operations currently waiting for replay.",
		}, label),
	}
	reg.MustRegister(m.enqueued, m.replayed, m.retried, m.deadLetters, m.depth)
	return m
}

func (m *OfflineQueueMetrics) Enqueued(opType string) {
	if m == nil || m.enqueued == nil {
		return
	}
	m.enqueued.WithLabelValues(normalizeLabel(opType)).Inc()
}

func (m *OfflineQueueMetrics) Replayed(opType string) {
	if m == nil || m.replayed == nil {
		return
	}
	m.replayed.WithLabelValues(normalizeLabel(opType)).Inc()
}

func (m *OfflineQueueMetrics) Retried(opType string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(normalizeLabel(opType)).Inc()
}

func (m *OfflineQueueMetrics) DeadLettered(opType string) {
	if m == nil || m.deadLetters == nil {
		return
	}
	m.deadLetters.WithLabelValues(normalizeLabel(opType)).Inc()
}

func (m *OfflineQueueMetrics) SetPending(opType string, n int64) {
	if m == nil || m.depth == nil {
		return
	}
	m.depth.WithLabelValues(normalizeLabel(opType)).Set(float64(n))
}
