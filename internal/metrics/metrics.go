// Package metrics exposes Prometheus counters for selection and progress.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// result: served/exhausted
	selections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "practice_selections_total",
			Help: "Question selections by subject, filter mode and result",
		},
		[]string{"subject", "mode", "result"},
	)

	outcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "practice_outcomes_total",
			Help: "Recorded outcomes by subject and outcome, lacking_context included",
		},
		[]string{"subject", "outcome"},
	)

	resets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "practice_progress_resets_total",
			Help: "Full progress resets by subject",
		},
		[]string{"subject"},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "practice_active_sessions",
			Help: "Sessions currently held in memory",
		},
	)
)

func Selection(subject, mode string, served bool) {
	result := "served"
	if !served {
		result = "exhausted"
	}
	selections.WithLabelValues(subject, mode, result).Inc()
}

func Outcome(subject, outcome string) {
	outcomes.WithLabelValues(subject, outcome).Inc()
}

func Reset(subject string) {
	resets.WithLabelValues(subject).Inc()
}

func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
