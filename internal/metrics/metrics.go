// Package metrics exposes Prometheus gauges/counters for the agent's
// operational state: buffer depth, append rate, asset counts, and
// per-adapter connection state. Grounded on the pack's
// 99souls-ariadne repo, the only example that wires
// github.com/prometheus/client_golang end-to-end.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors the agent registers at startup.
type Metrics struct {
	BufferAppends    prometheus.Counter
	BufferDepth      prometheus.Gauge
	AssetCount       prometheus.Gauge
	AdapterConnected *prometheus.GaugeVec
	HTTPRequests     *prometheus.CounterVec
}

// New registers and returns the agent's collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BufferAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mtconnect_agent_buffer_appends_total",
			Help: "Total observations appended to the ring buffer.",
		}),
		BufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mtconnect_agent_buffer_depth",
			Help: "Number of sequences currently retained in the ring buffer.",
		}),
		AssetCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mtconnect_agent_asset_count",
			Help: "Number of assets currently held in the asset store.",
		}),
		AdapterConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mtconnect_agent_adapter_connected",
			Help: "1 if the named adapter is currently connected, else 0.",
		}, []string{"adapter"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mtconnect_agent_http_requests_total",
			Help: "HTTP requests served, by path and status class.",
		}, []string{"path", "status"}),
	}

	reg.MustRegister(m.BufferAppends, m.BufferDepth, m.AssetCount, m.AdapterConnected, m.HTTPRequests)
	return m
}
