// Package metrics exports chat session observations to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "streamchat"

// Sessions counts and times chat sessions per strategy. It satisfies chat.Metrics.
type Sessions struct {
	started  *prometheus.CounterVec
	finished *prometheus.CounterVec
	deltas   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewSessions registers the session collectors on reg. A nil reg uses prometheus.DefaultRegisterer.
func NewSessions(reg prometheus.Registerer) Sessions {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return Sessions{
		started: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Number of streaming sessions opened.",
		}, []string{"strategy"}),
		finished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_finished_total",
			Help:      "Number of sessions closed, by the reason they ended.",
		}, []string{"strategy", "reason"}),
		deltas: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deltas_total",
			Help:      "Number of text deltas applied to the transcript.",
		}, []string{"strategy"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Time from submit to session close.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"strategy"}),
	}
}

// SessionStarted implements chat.Metrics.
func (s Sessions) SessionStarted(strategy string) {
	s.started.WithLabelValues(strategy).Inc()
}

// SessionFinished implements chat.Metrics.
func (s Sessions) SessionFinished(strategy, reason string, elapsed time.Duration) {
	s.finished.WithLabelValues(strategy, reason).Inc()
	s.duration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// DeltaReceived implements chat.Metrics.
func (s Sessions) DeltaReceived(strategy string) {
	s.deltas.WithLabelValues(strategy).Inc()
}
