package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stateSaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_state_saves_total",
		Help: "Total number of successful state document saves.",
	})

	stateSaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_state_save_failures_total",
		Help: "Total number of state document saves that failed and were swallowed.",
	})

	stateSaveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "warden_state_save_duration_seconds",
		Help:    "Time spent marshaling and replacing the state file.",
		Buckets: prometheus.DefBuckets,
	})
)
