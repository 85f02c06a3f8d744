package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the RSI service.
type Metrics struct {
	TicksTotal  *prometheus.CounterVec // labels: outcome
	Diagnostics *prometheus.CounterVec // labels: kind
	IngestDur   prometheus.Histogram
	LastRSI     *prometheus.GaugeVec // labels: symbol
	Symbols     prometheus.Gauge
	PollErrors  *prometheus.CounterVec // labels: symbol
	StoreErrors prometheus.Counter
	gatherer    prometheus.Gatherer
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in tests
// to avoid duplicate registration on the default registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsipulse_ticks_total",
			Help: "Ticks ingested, by outcome",
		}, []string{"outcome"}),
		Diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsipulse_diagnostics_total",
			Help: "Ticks skipped by the engine, by diagnostic kind",
		}, []string{"kind"}),
		IngestDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rsipulse_ingest_duration_seconds",
			Help:    "Engine update latency per tick",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		LastRSI: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rsipulse_rsi",
			Help: "Latest RSI value per symbol",
		}, []string{"symbol"}),
		Symbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rsipulse_symbols",
			Help: "Symbols with a live engine",
		}),
		PollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rsipulse_poll_errors_total",
			Help: "Upstream fetch failures, by symbol",
		}, []string{"symbol"}),
		StoreErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rsipulse_store_errors_total",
			Help: "Failed reading cache writes",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.TicksTotal,
		m.Diagnostics,
		m.IngestDur,
		m.LastRSI,
		m.Symbols,
		m.PollErrors,
		m.StoreErrors,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
