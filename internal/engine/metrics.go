package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько заняла операция (включая исполнитель перевода)
	OpDuration *prometheus.HistogramVec

	// Traffic: операции по типу и результату
	OpTotal *prometheus.CounterVec

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Ledger: сумма исполненных трат и поток заявок. Очередь = created - sum(resolved) по всем процессам.
	SpentTotal      prometheus.Counter
	PendingCreated  prometheus.Counter
	PendingResolved *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - ок, 1 - выбило, 0.5 - проба)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		OpDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_operation_duration_seconds",
			Help:    "Histogram of vault operation latencies.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"op", "result"}),

		OpTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_operations_total",
			Help: "Total number of vault operations by result.",
		}, []string{"op", "result"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_errors_total",
			Help: "Total number of errors by class.",
		}, []string{"type"}), // validation, policy, temporal, authorization, state, execution ...

		SpentTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "aegis_spent_amount_total",
			Help: "Sum of executed spend amounts in base units.",
		}),

		PendingCreated: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "aegis_pending_created_total",
			Help: "Total number of actions deferred for owner decision.",
		}),

		PendingResolved: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_pending_resolved_total",
			Help: "Total number of pending actions resolved by final status.",
		}, []string{"status"}), // APPROVED, REJECTED, EXPIRED, FAILED

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "aegis_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 0.5=half-open, 1=open).",
		}, []string{"connector_id"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "aegis_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),
	}
}
