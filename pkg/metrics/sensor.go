package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SensorMetrics contains Prometheus metrics for the sensor service.
type SensorMetrics struct {
	ReaderBytes      prometheus.Counter
	ReaderReconnects prometheus.Counter
	ReaderConnected  prometheus.Gauge
	ReadingsServed   *prometheus.CounterVec
	ConfigOperations *prometheus.CounterVec
}

// NewSensorMetrics creates and registers sensor service metrics.
func NewSensorMetrics(reg prometheus.Registerer, namespace string) *SensorMetrics {
	m := &SensorMetrics{
		ReaderBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sensor_reader",
				Name:      "bytes_total",
				Help:      "Total number of bytes read from the serial transport",
			},
		),
		ReaderReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sensor_reader",
				Name:      "reconnects_total",
				Help:      "Total number of serial transport reconnection attempts",
			},
		),
		ReaderConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sensor_reader",
				Name:      "connected",
				Help:      "Current transport status (1=connected, 0=disconnected)",
			},
		),
		ReadingsServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sensor",
				Name:      "readings_served_total",
				Help:      "Total number of readings returned to clients",
			},
			[]string{"scale", "source"},
		),
		ConfigOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sensor",
				Name:      "config_operations_total",
				Help:      "Total number of sensor config operations",
			},
			[]string{"operation", "status"},
		),
	}

	MustRegister(reg,
		m.ReaderBytes,
		m.ReaderReconnects,
		m.ReaderConnected,
		m.ReadingsServed,
		m.ConfigOperations,
	)

	return m
}

// ObserveConfig counts one config operation outcome. Safe on a nil receiver.
func (m *SensorMetrics) ObserveConfig(operation, status string) {
	if m == nil {
		return
	}
	m.ConfigOperations.WithLabelValues(operation, status).Inc()
}

// ObserveReading counts one reading returned to a client. Safe on a nil receiver.
func (m *SensorMetrics) ObserveReading(scale, source string) {
	if m == nil {
		return
	}
	m.ReadingsServed.WithLabelValues(scale, source).Inc()
}

// AddReaderBytes counts bytes read from the transport. Safe on a nil receiver.
func (m *SensorMetrics) AddReaderBytes(n int) {
	if m == nil {
		return
	}
	m.ReaderBytes.Add(float64(n))
}

// IncReaderReconnects counts one reconnection attempt. Safe on a nil receiver.
func (m *SensorMetrics) IncReaderReconnects() {
	if m == nil {
		return
	}
	m.ReaderReconnects.Inc()
}

// SetReaderConnected records the transport status. Safe on a nil receiver.
func (m *SensorMetrics) SetReaderConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.ReaderConnected.Set(1)
		return
	}
	m.ReaderConnected.Set(0)
}
