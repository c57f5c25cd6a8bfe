package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cryptoalerts"

// Metrics holds every collector the service exports. All methods are safe
// on a nil receiver so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	Ticks           *prometheus.CounterVec
	TickDuration    *prometheus.HistogramVec
	FetchFailures   *prometheus.CounterVec
	AlertsEvaluated prometheus.Counter
	AlertsTriggered *prometheus.CounterVec
	Notifications   *prometheus.CounterVec
	ActiveAlerts    prometheus.Gauge
}

// New registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Scheduled job executions by outcome.",
		}, []string{"job", "status"}),
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time of scheduled job executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Symbols that could not be priced during a tick.",
		}, []string{"symbol"}),
		AlertsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_evaluated_total",
			Help:      "Alert evaluations performed.",
		}),
		AlertsTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_triggered_total",
			Help:      "Alert evaluations that fired.",
		}, []string{"kind"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by channel and outcome.",
		}, []string{"channel", "status"}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Active alerts seen by the last evaluation.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Ticks,
		m.TickDuration,
		m.FetchFailures,
		m.AlertsEvaluated,
		m.AlertsTriggered,
		m.Notifications,
		m.ActiveAlerts,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTick(job string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Ticks.WithLabelValues(job, status).Inc()
	m.TickDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// SkipTick counts a tick that did not run, e.g. because another instance holds the lock.
func (m *Metrics) SkipTick(job string) {
	if m == nil {
		return
	}
	m.Ticks.WithLabelValues(job, "skipped").Inc()
}

func (m *Metrics) FetchFailed(symbol string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(symbol).Inc()
}

func (m *Metrics) Evaluated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AlertsEvaluated.Add(float64(n))
}

func (m *Metrics) Triggered(kind string) {
	if m == nil {
		return
	}
	m.AlertsTriggered.WithLabelValues(kind).Inc()
}

func (m *Metrics) NotificationSent(channel string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Notifications.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) SetActiveAlerts(n int) {
	if m == nil {
		return
	}
	m.ActiveAlerts.Set(float64(n))
}
