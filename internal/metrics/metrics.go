package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	GatewayRequests *prometheus.CounterVec
	GatewayLatency  *prometheus.HistogramVec
	QuotaDenials    *prometheus.CounterVec
	Messages        *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_requests_total",
				Help:      "Total Evolution API requests by operation and outcome.",
			}, []string{"op", "status"}),
			GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_request_duration_seconds",
				Help:      "Latency distribution for Evolution API calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			QuotaDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_denials_total",
				Help:      "Total quota admission denials by kind.",
			}, []string{"kind"}),
			Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Total message send attempts by outcome.",
			}, []string{"status"}),
		}

		prometheus.MustRegister(
			metricsInstance.GatewayRequests,
			metricsInstance.GatewayLatency,
			metricsInstance.QuotaDenials,
			metricsInstance.Messages,
		)
	})
	return metricsInstance
}
