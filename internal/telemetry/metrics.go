package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики движка.
//
// Все методы безопасны для nil receiver: компоненты, которым метрики
// не переданы, просто их не пишут.
type Metrics struct {
	executionsStarted  *prometheus.CounterVec
	executionsFinished *prometheus.CounterVec
	executionsActive   prometheus.Gauge
	stepsFinished      *prometheus.CounterVec
	stepDuration       prometheus.Histogram
	httpRequests       *prometheus.CounterVec
}

// NewMetrics создаёт и регистрирует метрики в reg.
// Если reg == nil, используется prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		executionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dagflow_executions_started_total",
			Help: "Total number of started workflow executions.",
		}, []string{"workflow"}),

		executionsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dagflow_executions_finished_total",
			Help: "Total number of finished workflow executions by final status.",
		}, []string{"workflow", "status"}),

		executionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dagflow_executions_active",
			Help: "Number of executions currently being driven by the scheduler.",
		}),

		stepsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dagflow_steps_finished_total",
			Help: "Total number of finished steps by status.",
		}, []string{"status"}),

		stepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dagflow_step_duration_seconds",
			Help:    "Step executor duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dagflow_http_requests_total",
			Help: "Total number of HTTP API requests by method and status code.",
		}, []string{"method", "code"}),
	}
}

// ExecutionStarted фиксирует старт execution.
func (m *Metrics) ExecutionStarted(workflowID string) {
	if m == nil {
		return
	}
	m.executionsStarted.WithLabelValues(workflowID).Inc()
	m.executionsActive.Inc()
}

// ExecutionFinished фиксирует выход scheduler'а из execution.
func (m *Metrics) ExecutionFinished(workflowID, status string) {
	if m == nil {
		return
	}
	m.executionsFinished.WithLabelValues(workflowID, status).Inc()
	m.executionsActive.Dec()
}

// StepFinished фиксирует завершение шага.
func (m *Metrics) StepFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepsFinished.WithLabelValues(status).Inc()
	m.stepDuration.Observe(d.Seconds())
}

// HTTPRequest фиксирует обработанный HTTP запрос.
func (m *Metrics) HTTPRequest(method, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, code).Inc()
}
