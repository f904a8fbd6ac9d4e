package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	MessagesTotal    *prometheus.CounterVec
	TriagesTotal     *prometheus.CounterVec
	TriageDuration   *prometheus.HistogramVec
	DecisionDuration *prometheus.HistogramVec
	ResolutionsTotal *prometheus.CounterVec
	ConflictsTotal   prometheus.Counter
	BackendErrors    prometheus.Counter
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_messages_created_total",
			Help: "Messages ingested, by channel.",
		}, []string{"channel"}),
		TriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_triages_total",
			Help: "Completed triage runs by verdict.",
		}, []string{"model", "route", "urgency"}),
		TriageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_triage_duration_seconds",
			Help:    "End-to-end duration of triage runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~40s
		}, []string{"model"}),
		DecisionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "intake_decision_duration_seconds",
			Help:    "Duration of decision backend calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~40s
		}, []string{"model"}),
		ResolutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_resolutions_total",
			Help: "Human resolutions of triage actions by outcome.",
		}, []string{"outcome"}),
		ConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_resolution_conflicts_total",
			Help: "Resolution attempts rejected because the action was already resolved.",
		}),
		BackendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "intake_backend_errors_total",
			Help: "Decision backend failures.",
		}),
	}

	reg.MustRegister(
		m.MessagesTotal,
		m.TriagesTotal,
		m.TriageDuration,
		m.DecisionDuration,
		m.ResolutionsTotal,
		m.ConflictsTotal,
		m.BackendErrors,
	)

	return m
}
