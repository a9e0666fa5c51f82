package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — метрики выполнения workflow.
//
// Все методы допускают nil-получатель: движок без метрик
// работает без дополнительных проверок.
type Metrics struct {
	RunsTotal    *prometheus.CounterVec
	StepsTotal   *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	ActiveRuns   prometheus.Gauge
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics регистрирует метрики в reg.
// nil — глобальный prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cascade_runs_total",
			Help: "Total finished workflow runs by final state",
		}, []string{"state"}),
		StepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cascade_steps_total",
			Help: "Total finished steps by kind and final state",
		}, []string{"kind", "state"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cascade_step_duration_seconds",
			Help:    "Step execution duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cascade_active_runs",
			Help: "Runs currently executing",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cascade_api_http_requests_total",
			Help: "Total HTTP requests handled by cascade-api",
		}, []string{"method", "status"}),
	}
}

// RunStarted увеличивает число активных run.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Inc()
}

// RunEnded уменьшает число активных run.
func (m *Metrics) RunEnded() {
	if m == nil {
		return
	}
	m.ActiveRuns.Dec()
}

// RunFinished учитывает завершённый run.
func (m *Metrics) RunFinished(state string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(state).Inc()
}

// StepFinished учитывает завершённый шаг.
func (m *Metrics) StepFinished(kind, state string, d time.Duration) {
	if m == nil {
		return
	}
	m.StepsTotal.WithLabelValues(kind, state).Inc()
	m.StepDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// HTTPRequest учитывает обработанный HTTP-запрос.
func (m *Metrics) HTTPRequest(method, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, status).Inc()
}
