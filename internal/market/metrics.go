package market

import "github.com/prometheus/client_golang/prometheus"

const (
	labelOp     = "op"
	labelResult = "result"
	labelName   = "collection"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	Operations    *prometheus.CounterVec
	CheckoutLines prometheus.Histogram
	Reseeds       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_store_operations_total",
				Help: "Store operations by result kind",
			},
			[]string{labelOp, labelResult},
		),
		CheckoutLines: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "market_checkout_lines",
				Help:    "Distinct products per committed checkout",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
			},
		),
		Reseeds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "market_collection_resets_total",
				Help: "Collections rewritten from seed or empty state after a failed load",
			},
			[]string{labelName},
		),
	}

	reg.MustRegister(m.Operations, m.CheckoutLines, m.Reseeds)
	return m
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, Kind(err)).Inc()
}

func (m *Metrics) checkout(lines int) {
	if m == nil {
		return
	}
	m.CheckoutLines.Observe(float64(lines))
}

func (m *Metrics) reset(collection string) {
	if m == nil {
		return
	}
	m.Reseeds.WithLabelValues(collection).Inc()
}

// reseeded counts a reseed triggered by an unreadable products or stocks
// collection, which rewrites all three.
func (m *Metrics) reseeded() {
	m.reset(productsCollection)
	m.reset(stocksCollection)
	m.reset(receiptsCollection)
}
