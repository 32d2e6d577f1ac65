package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the bot.
type Metrics struct {
	IncomingUpdates  *prometheus.CounterVec
	OutgoingMessages *prometheus.CounterVec
	DispatchPasses   *prometheus.CounterVec
	DispatchLatency  *prometheus.HistogramVec
	Rewards          *prometheus.CounterVec
	Backups          *prometheus.CounterVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			IncomingUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "incoming_updates_total",
				Help:      "Total inbound updates handled, by kind.",
			}, []string{"kind"}),
			OutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outgoing_messages_total",
				Help:      "Total outbound messages, by message kind and outcome.",
			}, []string{"kind", "status"}),
			DispatchPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_passes_total",
				Help:      "Total dispatch loop passes, by loop and outcome.",
			}, []string{"loop", "status"}),
			DispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_pass_duration_seconds",
				Help:      "Duration of dispatch loop passes.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"loop"}),
			Rewards: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rewards_total",
				Help:      "Total reward decisions, by path and verdict.",
			}, []string{"path", "verdict"}),
			Backups: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backups_total",
				Help:      "Total backup runs by outcome.",
			}, []string{"status"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.IncomingUpdates,
			metricsInstance.OutgoingMessages,
			metricsInstance.DispatchPasses,
			metricsInstance.DispatchLatency,
			metricsInstance.Rewards,
			metricsInstance.Backups,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
