package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the delivery counters for the slack output service.
type Metrics struct {
	registry *prometheus.Registry

	BatchesConsumed  prometheus.Counter
	PayloadsBuilt    prometheus.Counter
	Delivered        prometheus.Counter
	Failed           prometheus.Counter
	Discarded        prometheus.Counter
	ChannelsCreated  prometheus.Counter
	Suppressed       prometheus.Counter
	DeliveryDuration prometheus.Histogram
}

// New registers and returns the collector set on a dedicated registry so
// tests can construct independent instances.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		BatchesConsumed: factory.NewCounter(prometheus.CounterOpts{
			Name: "slack_output_batches_consumed_total",
			Help: "Total flushed batches received from the buffer queue.",
		}),
		PayloadsBuilt: factory.NewCounter(prometheus.CounterOpts{
			Name: "slack_output_payloads_built_total",
			Help: "Total payloads produced by the aggregation engine.",
		}),
		Delivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "slack_output_payloads_delivered_total",
			Help: "Total payloads acknowledged by the backend.",
		}),
		Failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "slack_output_deliveries_failed_total",
			Help: "Total payloads rejected with a terminal backend error.",
		}),
		Discarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "slack_output_batches_discarded_total",
			Help: "Total batches dropped after an unresolvable delivery error.",
		}),
		ChannelsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "slack_output_channels_created_total",
			Help: "Total channels auto-created before a delivery retry.",
		}),
		Suppressed: factory.NewCounter(prometheus.CounterOpts{
			Name: "slack_output_payloads_suppressed_total",
			Help: "Total payloads skipped because their channel is suppressed.",
		}),
		DeliveryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "slack_output_delivery_duration_seconds",
			Help:    "Duration of backend post requests including auto-create retries.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// Handler serves the registry for the /metrics route.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
