// Package metrics provides Prometheus metrics collection for all services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the process-wide Prometheus registry used by the binaries.
var Registry = NewRegistry()

// NewRegistry returns a registry preloaded with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an HTTP handler exposing the metrics gathered by g.
// A nil gatherer exposes the global Registry.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = Registry
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// MustRegister registers collectors with reg, or with the global Registry when reg is nil.
// Panics if registration fails.
func MustRegister(reg prometheus.Registerer, cs ...prometheus.Collector) {
	if reg == nil {
		reg = Registry
	}
	reg.MustRegister(cs...)
}
