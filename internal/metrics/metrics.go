package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttempts counts logins by outcome ("ok" or an error kind).
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geoattend",
		Name:      "login_attempts_total",
		Help:      "Login attempts by outcome.",
	}, []string{"role", "outcome"})

	// MarkAttempts counts attendance marking attempts by outcome.
	MarkAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geoattend",
		Name:      "mark_attempts_total",
		Help:      "Attendance marking attempts by outcome.",
	}, []string{"outcome"})

	MarkDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "geoattend",
		Name:      "mark_distance_meters",
		Help:      "Distance between submitted position and window centre.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000},
	})

	WindowsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geoattend",
		Name:      "windows_opened_total",
		Help:      "Attendance windows opened.",
	})

	WindowsStopped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "geoattend",
		Name:      "windows_stopped_total",
		Help:      "Attendance windows stopped.",
	})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "geoattend",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	QueueMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geoattend",
		Name:      "queue_messages_total",
		Help:      "Queue messages handled by the worker.",
	}, []string{"type", "result"})
)
