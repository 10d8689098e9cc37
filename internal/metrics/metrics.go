package metrics

import (
	"net/http"

	"tokentable/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tokentable"

// Metrics owns its registry so several instances (tests, embedded apps) never collide
type Metrics struct {
	reg *prometheus.Registry

	UpdatesApplied prometheus.Counter
	UpdatesStale   prometheus.Counter
	SimulatorTicks prometheus.Counter
	TickBatch      prometheus.Histogram
	Mutations      *prometheus.CounterVec
	VisibleTokens  *prometheus.GaugeVec
	StreamClients  prometheus.Gauge
	PublishErrors  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,

		UpdatesApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "price_updates_applied_total",
			Help:      "Price patches merged into a known token",
		}),
		UpdatesStale: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "price_updates_stale_total",
			Help:      "Price patches dropped because the token id is unknown",
		}),
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "mutations_total",
			Help:      "Accepted store mutations by kind",
		}, []string{"kind"}),
		VisibleTokens: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "visible_tokens",
			Help:      "Tokens passing the current filter, per category",
		}, []string{"category"}),

		SimulatorTicks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "ticks_total",
			Help:      "Simulator rounds executed",
		}),
		TickBatch: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "tick_batch_size",
			Help:      "Patches submitted per simulator round",
			Buckets:   []float64{0, 1, 2, 3, 5, 8},
		}),

		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "stream_clients",
			Help:      "Open server-sent event streams",
		}),
		PublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pubsub",
			Name:      "publish_errors_total",
			Help:      "Failed broadcast publishes by subject",
		}, []string{"subject"}),
	}
}

// ObserveTick is the simulator tick hook
func (m *Metrics) ObserveTick(submitted int) {
	m.SimulatorTicks.Inc()
	m.TickBatch.Observe(float64(submitted))
}

// ObserveSections refreshes the per-category visible gauge
func (m *Metrics) ObserveSections(sections map[domain.Category][]domain.Token) {
	for _, c := range domain.Categories {
		m.VisibleTokens.WithLabelValues(string(c)).Set(float64(len(sections[c])))
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
