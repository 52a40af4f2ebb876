package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PromMetrics struct {
	cycles        prometheus.Counter
	failures      *prometheus.CounterVec
	scanned       prometheus.Counter
	escalated     prometheus.Counter
	conflicts     prometheus.Counter
	publishFailed prometheus.Counter
	cycleDuration prometheus.Histogram
}

func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	m := &PromMetrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escalator_cycles_total",
			Help: "Number of completed escalation cycles",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "escalator_cycles_failed_total",
			Help: "Number of failed escalation cycles by failure kind",
		}, []string{"kind"}),
		scanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escalator_items_scanned_total",
			Help: "Number of due work items read",
		}),
		escalated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escalator_items_escalated_total",
			Help: "Number of work items escalated",
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escalator_escalation_conflicts_total",
			Help: "Number of escalations rejected by their write precondition",
		}),
		publishFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "escalator_events_publish_failed_total",
			Help: "Number of escalation events that could not be published",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "escalator_cycle_duration_seconds",
			Help:    "Duration of completed escalation cycles",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.cycles, m.failures, m.scanned, m.escalated, m.conflicts, m.publishFailed, m.cycleDuration)
	return m
}

func (m *PromMetrics) CycleCompleted(d time.Duration) {
	m.cycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
}
func (m *PromMetrics) CycleFailed(kind string) {
	m.failures.WithLabelValues(kind).Inc()
}
func (m *PromMetrics) ItemsScanned(n int) {
	m.scanned.Add(float64(n))
}
func (m *PromMetrics) ItemsEscalated(n int) {
	m.escalated.Add(float64(n))
}
func (m *PromMetrics) Conflicts(n int) {
	m.conflicts.Add(float64(n))
}
func (m *PromMetrics) PublishFailed() {
	m.publishFailed.Inc()
}
