package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EventsMetrics contains Prometheus metrics for the change event publisher.
type EventsMetrics struct {
	Published        *prometheus.CounterVec
	Dropped          *prometheus.CounterVec
	PublishDuration  *prometheus.HistogramVec
	ConnectionStatus prometheus.Gauge
}

// NewEventsMetrics creates and registers event publisher metrics.
func NewEventsMetrics(reg prometheus.Registerer, namespace string) *EventsMetrics {
	m := &EventsMetrics{
		Published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Total number of change events confirmed by RabbitMQ",
			},
			[]string{"queue"},
		),
		Dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "dropped_total",
				Help:      "Total number of change events that were not delivered",
			},
			[]string{"queue", "reason"},
		),
		PublishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "publish_duration_seconds",
				Help:      "Duration of confirmed publish operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		ConnectionStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "connection_status",
				Help:      "Current connection status (1=connected, 0=disconnected)",
			},
		),
	}

	MustRegister(reg,
		m.Published,
		m.Dropped,
		m.PublishDuration,
		m.ConnectionStatus,
	)

	return m
}
