package mcclient

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "minio_bucket_operator",
			Subsystem: "mc",
			Name:      "command_duration_seconds",
			Help:      "Duration of mc invocations, alias setup included",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"command"},
	)

	commandFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minio_bucket_operator",
			Subsystem: "mc",
			Name:      "command_failures_total",
			Help:      "Failed mc invocations by command and failure kind",
		},
		[]string{"command", "kind"},
	)
)

func init() {
	metrics.Registry.MustRegister(commandDuration, commandFailures)
}

func failureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthContextFailed):
		return "auth"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed"
	case errors.Is(err, ErrCommandFailed):
		return "command"
	default:
		return "other"
	}
}
