package auth

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "clinic_auth"

var (
	providerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "provider_calls_total",
			Help:      "Provider calls issued by the session gate, by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	providerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Latency of provider calls issued by the session gate",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	gateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "gate_transitions_total",
			Help:      "Committed gate state transitions",
		},
		[]string{"from", "to"},
	)
)

// RegisterMetrics registers the gate collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{providerCalls, providerLatency, gateTransitions} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

func observeProviderCall(operation string, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = string(ClassifyError(err))
	}
	providerCalls.WithLabelValues(operation, outcome).Inc()
	providerLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}
