// Package metrics provides Prometheus metrics for the status bot.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Pipeline metrics.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statusbot",
		Subsystem: "pipeline",
		Name:      "events_total",
		Help:      "Status events processed, by terminal result.",
	}, []string{"result"}) // "filtered", "denied", "completed", "abandoned", "panic"
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "statusbot",
		Subsystem: "pipeline",
		Name:      "queue_depth",
		Help:      "Number of status events waiting for the pipeline worker.",
	})
	PacingDelaySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "statusbot",
		Subsystem: "pipeline",
		Name:      "pacing_delay_seconds",
		Help:      "Randomized delay applied before each action.",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
	}, []string{"kind"})

	// Action executor metrics.
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statusbot",
		Subsystem: "action",
		Name:      "total",
		Help:      "Engagement actions executed, by kind and result.",
	}, []string{"kind", "result"})
	MethodAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statusbot",
		Subsystem: "action",
		Name:      "method_attempts_total",
		Help:      "Fallback chain attempts, by kind, method ordinal and result.",
	}, []string{"kind", "method", "result"})

	// Admission controller metrics.
	AdmissionDeniedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statusbot",
		Subsystem: "throttle",
		Name:      "denied_total",
		Help:      "Admission denials, by reason.",
	}, []string{"reason"})
	ActionsThisHour = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "statusbot",
		Subsystem: "throttle",
		Name:      "actions_this_hour",
		Help:      "Actions recorded in the current hourly window.",
	})
	ActionsToday = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "statusbot",
		Subsystem: "throttle",
		Name:      "actions_today",
		Help:      "Actions recorded since the last daily reset.",
	})
	InCooldown = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "statusbot",
		Subsystem: "throttle",
		Name:      "in_cooldown",
		Help:      "Whether the post-burst cooldown is active (1) or not (0).",
	})

	// Gateway metrics.
	GatewayRequestErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statusbot",
		Subsystem: "gateway",
		Name:      "request_errors_total",
		Help:      "Failed gateway requests, by endpoint.",
	}, []string{"endpoint"})

	// Archive metrics.
	ArchivedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "statusbot",
		Subsystem: "archive",
		Name:      "entries_total",
		Help:      "Archived status payloads, by content type.",
	}, []string{"type"})
	ArchivedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "statusbot",
		Subsystem: "archive",
		Name:      "bytes_total",
		Help:      "Bytes written to the status archive.",
	})
)

func init() {
	prometheus.MustRegister(
		EventsTotal,
		QueueDepth,
		PacingDelaySeconds,

		ActionsTotal,
		MethodAttemptsTotal,

		AdmissionDeniedTotal,
		ActionsThisHour,
		ActionsToday,
		InCooldown,

		GatewayRequestErrors,

		ArchivedTotal,
		ArchivedBytes,
	)
}

// BoolGauge converts a flag to a gauge value.
func BoolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
