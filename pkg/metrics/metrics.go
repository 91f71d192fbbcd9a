package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StockMetrics groups the collectors the stock engine reports into.
// A nil *StockMetrics is valid and records nothing.
type StockMetrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	CASRetries *prometheus.CounterVec
	UnitsMoved *prometheus.CounterVec
	Alerts     *prometheus.GaugeVec
	registry   *prometheus.Registry
}

func NewStockMetrics(namespace string) *StockMetrics {
	reg := prometheus.NewRegistry()
	m := &StockMetrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stock",
			Name:      "operations_total",
			Help:      "Stock engine operations by name and result.",
		}, []string{"operation", "result"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "stock",
			Name:      "operation_duration_seconds",
			Help:      "Stock engine operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		CASRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stock",
			Name:      "cas_retries_total",
			Help:      "Compare-and-swap attempts that lost a race or hit a store error.",
		}, []string{"operation"}),
		UnitsMoved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stock",
			Name:      "units_moved_total",
			Help:      "Absolute units moved through the ledger by transaction type.",
		}, []string{"type"}),
		Alerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stock",
			Name:      "alerts",
			Help:      "Alerts produced by the last scan per tenant and kind.",
		}, []string{"tenant", "kind"}),
		registry: reg,
	}

	reg.MustRegister(
		m.Operations, m.Duration, m.CASRetries, m.UnitsMoved, m.Alerts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *StockMetrics) Observe(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Operations.WithLabelValues(operation, result).Inc()
	m.Duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *StockMetrics) Retry(operation string) {
	if m == nil {
		return
	}
	m.CASRetries.WithLabelValues(operation).Inc()
}

func (m *StockMetrics) Moved(txType string, units int64) {
	if m == nil {
		return
	}
	if units < 0 {
		units = -units
	}
	m.UnitsMoved.WithLabelValues(txType).Add(float64(units))
}

func (m *StockMetrics) SetAlerts(tenant, kind string, n int) {
	if m == nil {
		return
	}
	m.Alerts.WithLabelValues(tenant, kind).Set(float64(n))
}

func (m *StockMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
