package cart

import "github.com/prometheus/client_golang/prometheus"

const (
	labelOp     = "op"
	labelResult = "result"

	resultApplied  = "applied"
	resultNoop     = "noop"
	resultRejected = "rejected"

	hydrateLoaded  = "loaded"
	hydrateEmpty   = "empty"
	hydrateCorrupt = "corrupt"
	hydrateFailed  = "failed"
)

type Metrics struct {
	Mutations       *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
	Hydrations      *prometheus.CounterVec
	Lines           prometheus.Gauge
	Units           prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cart_mutations_total",
				Help: "Cart mutations by operation and result",
			},
			[]string{labelOp, labelResult},
		),
		PersistFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cart_persist_failures_total",
				Help: "Failed writes of the cart slot",
			},
			[]string{labelOp},
		),
		Hydrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cart_hydrations_total",
				Help: "Startup loads of the cart slot by result",
			},
			[]string{labelResult},
		),
		Lines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cart_lines",
			Help: "Distinct items currently in the cart",
		}),
		Units: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cart_units",
			Help: "Total quantity currently in the cart",
		}),
	}

	reg.MustRegister(m.Mutations, m.PersistFailures, m.Hydrations, m.Lines, m.Units)
	return m
}

func (m *Metrics) mutation(op, result string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) persistFailed(op string) {
	if m == nil {
		return
	}
	m.PersistFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) hydrated(result string) {
	if m == nil {
		return
	}
	m.Hydrations.WithLabelValues(result).Inc()
}

func (m *Metrics) observe(c Cart) {
	if m == nil {
		return
	}
	m.Lines.Set(float64(len(c)))
	m.Units.Set(float64(c.Units()))
}
