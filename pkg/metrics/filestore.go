package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// FileStoreMetrics contains Prometheus metrics for the file store service.
type FileStoreMetrics struct {
	OperationsTotal *prometheus.CounterVec
}

// NewFileStoreMetrics creates and registers file store metrics.
func NewFileStoreMetrics(reg prometheus.Registerer, namespace string) *FileStoreMetrics {
	m := &FileStoreMetrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "filestore",
				Name:      "operations_total",
				Help:      "Total number of file store operations",
			},
			[]string{"operation", "status"}, // status: success, not_found, invalid, error
		),
	}

	MustRegister(reg, m.OperationsTotal)

	return m
}

// Observe counts one operation outcome. Safe on a nil receiver.
func (m *FileStoreMetrics) Observe(operation, status string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
}
