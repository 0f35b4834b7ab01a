package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================================
// PROMETHEUS METRICS
// ============================================================================

// Metrics holds the session collectors. A nil *Metrics records nothing.
type Metrics struct {
	questions      *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	rulesFired     *prometheus.CounterVec
	datasetsLoaded prometheus.Counter
	historySize    prometheus.Gauge
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		questions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storequery",
			Subsystem: "router",
			Name:      "questions_total",
			Help:      "Questions answered by source and outcome",
		}, []string{"source", "outcome"}),

		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storequery",
			Subsystem: "router",
			Name:      "question_duration_seconds",
			Help:      "Time to resolve one question",
			Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 5, 15, 30, 60},
		}, []string{"source"}),

		rulesFired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storequery",
			Subsystem: "router",
			Name:      "rules_fired_total",
			Help:      "Rule matches by rule kind",
		}, []string{"kind"}),

		datasetsLoaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "storequery",
			Subsystem: "router",
			Name:      "datasets_loaded_total",
			Help:      "Datasets loaded or replaced",
		}),

		historySize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "storequery",
			Subsystem: "router",
			Name:      "history_entries",
			Help:      "Resolutions retained in session history",
		}),
	}
}

func (m *Metrics) observe(r *QueryResolution, kind string, historyLen int) {
	if m == nil {
		return
	}
	outcome := "ok"
	if r.err != nil {
		outcome = "error"
	}
	m.questions.WithLabelValues(string(r.Source), outcome).Inc()
	m.duration.WithLabelValues(string(r.Source)).Observe(r.Duration.Seconds())
	if kind != "" {
		m.rulesFired.WithLabelValues(kind).Inc()
	}
	m.historySize.Set(float64(historyLen))
}

func (m *Metrics) loaded() {
	if m == nil {
		return
	}
	m.datasetsLoaded.Inc()
}
