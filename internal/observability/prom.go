package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prom holds every Prometheus collector exposed on /metrics by both the
// scheduler and worker processes: one *Prom built at startup, registered
// once, and passed down into every repo/component that records against it.
type Prom struct {
	// DB, shared by every postgres repo via observe(op, fn).
	DbQueryDuration *prometheus.HistogramVec
	DbErrorsTotal   *prometheus.CounterVec

	// Scheduler
	SchedulerClaimedTotal prometheus.Counter
	SchedulerTickDuration prometheus.Histogram

	// Check executor
	ProbeDuration     *prometheus.HistogramVec
	ProbeResultsTotal *prometheus.CounterVec

	// Alert engine
	AlertSendTotal *prometheus.CounterVec
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		DbQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "monitron",
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "DB operation latency (logical op, not raw SQL)",
				Buckets:   []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.35, 0.5, 1, 2, 5},
			},
			[]string{"op", "status"},
		),
		DbErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "monitron",
				Subsystem: "db",
				Name:      "errors_total",
				Help:      "DB errors by logical op and class.",
			},
			[]string{"op", "class"},
		),

		SchedulerClaimedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "monitron",
				Subsystem: "scheduler",
				Name:      "claimed_total",
				Help:      "Total monitors claimed across all scheduler ticks.",
			},
		),
		SchedulerTickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "monitron",
				Subsystem: "scheduler",
				Name:      "tick_duration_seconds",
				Help:      "Wall time spent claiming and dispatching per scheduler tick.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
		),

		ProbeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "monitron",
				Subsystem: "probe",
				Name:      "duration_seconds",
				Help:      "End-to-end check execution duration by outcome and result.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"outcome", "result"}, // outcome=up|down, result=done|persist_error
		),
		ProbeResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "monitron",
				Subsystem: "probe",
				Name:      "results_total",
				Help:      "Check executions by outcome and result.",
			},
			[]string{"outcome", "result"},
		),

		AlertSendTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "monitron",
				Subsystem: "alert",
				Name:      "send_total",
				Help:      "Sustained-down alert emails attempted, by result.",
			},
			[]string{"result"}, // result=sent|error
		),
	}

	reg.MustRegister(
		p.DbQueryDuration, p.DbErrorsTotal,
		p.SchedulerClaimedTotal, p.SchedulerTickDuration,
		p.ProbeDuration, p.ProbeResultsTotal,
		p.AlertSendTotal,
	)

	return p
}
