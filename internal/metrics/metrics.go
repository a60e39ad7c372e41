// Package metrics счётчики Prometheus для жизненного цикла занятий.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tutorflow"

// Metrics держит собственный реестр, поэтому в тестах можно создавать сколько угодно экземпляров.
// Все методы безопасны для nil.
type Metrics struct {
	registry *prometheus.Registry

	sessionsGenerated   prometheus.Counter
	entitlementConsumed prometheus.Counter
	sessionTransitions  *prometheus.CounterVec
	auditWriteFailures  prometheus.Counter
	lateReschedules     prometheus.Counter
	packagesExpired     prometheus.Counter
	rateLimited         *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_generated_total",
			Help:      "Sessions created by schedule generation.",
		}),
		entitlementConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entitlement_consumed_total",
			Help:      "Package sessions consumed by done or student no-show outcomes.",
		}),
		sessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session status transitions by target status.",
		}, []string{"status"}),
		auditWriteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Audit entries that could not be persisted.",
		}),
		lateReschedules: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "late_reschedules_total",
			Help:      "Reschedules to a start time inside the late window.",
		}),
		packagesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packages_expired_total",
			Help:      "Packages moved to expired by the sweep.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Commands rejected by the rate limiter.",
		}, []string{"transport"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sessionsGenerated,
		m.entitlementConsumed,
		m.sessionTransitions,
		m.auditWriteFailures,
		m.lateReschedules,
		m.packagesExpired,
		m.rateLimited,
	)

	return m
}

// Handler отдаёт /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry для тестов
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SessionsGenerated(n int) {
	if m == nil {
		return
	}
	m.sessionsGenerated.Add(float64(n))
}

func (m *Metrics) EntitlementConsumed() {
	if m == nil {
		return
	}
	m.entitlementConsumed.Inc()
}

func (m *Metrics) SessionTransition(status string) {
	if m == nil {
		return
	}
	m.sessionTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) AuditWriteFailed() {
	if m == nil {
		return
	}
	m.auditWriteFailures.Inc()
}

func (m *Metrics) LateReschedule() {
	if m == nil {
		return
	}
	m.lateReschedules.Inc()
}

func (m *Metrics) PackagesExpired(n int) {
	if m == nil {
		return
	}
	m.packagesExpired.Add(float64(n))
}

func (m *Metrics) RateLimited(transport string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(transport).Inc()
}
