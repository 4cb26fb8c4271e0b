// Package metrics exposes session statistics as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector bundles the voice masking metrics. Create one per process and
// share it across sessions.
type Collector struct {
	BlocksProcessed  prometheus.Counter
	BlocksDropped    prometheus.Counter
	DeadlineOverruns prometheus.Counter
	ProfileSwitches  *prometheus.CounterVec

	InputLevel     prometheus.Gauge
	OutputLevel    prometheus.Gauge
	SessionsActive prometheus.Gauge
}

// NewCollector registers the metrics with reg under the given namespace.
// Pass prometheus.DefaultRegisterer in production; tests use a fresh
// registry to avoid duplicate registration.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		BlocksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_processed_total",
			Help:      "Total audio blocks transformed",
		}),
		BlocksDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_dropped_total",
			Help:      "Blocks lost to ring overwrites and underruns",
		}),
		DeadlineOverruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deadline_overruns_total",
			Help:      "Blocks whose processing exceeded the block period",
		}),
		ProfileSwitches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_switches_total",
			Help:      "Profile activations by profile id",
		}, []string{"profile"}),
		InputLevel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "input_level_rms",
			Help:      "Running RMS level of captured audio",
		}),
		OutputLevel: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_level_rms",
			Help:      "Running RMS level of rendered audio",
		}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Sessions currently in the running state",
		}),
	}
}
