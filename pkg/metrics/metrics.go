// Package metrics exposes pipeline counters to Prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "itchmoe"

type Metrics struct {
	reg *prometheus.Registry

	Messages   prometheus.Counter
	AddOrders  prometheus.Counter
	Rejected   prometheus.Counter
	Trades     prometheus.Counter
	MatchedQty prometheus.Counter
	Signals    *prometheus.CounterVec
	BookLevels *prometheus.GaugeVec
}

// New registers every collector on a private registry, so several pipelines
// (and tests) can coexist in one process.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		Messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_total",
			Help: "Non-empty buffers handed to the decoder",
		}),
		AddOrders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "add_orders_total",
			Help: "Buffers decoded as Add Order",
		}),
		Rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rejected_total",
			Help: "Buffers the decoder rejected",
		}),
		Trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "trades_total",
			Help: "Submissions that matched",
		}),
		MatchedQty: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "matched_shares_total",
			Help: "Shares traded",
		}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_total",
			Help: "Model signals by action",
		}, []string{"action"}),
		BookLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "book_levels",
			Help: "Resting price levels per side",
		}, []string{"side"}),
	}
	m.reg.MustRegister(
		m.Messages, m.AddOrders, m.Rejected, m.Trades, m.MatchedQty, m.Signals, m.BookLevels,
		collectors.NewGoCollector(),
	)
	return m
}

// Decoded records one decoder call on a non-empty buffer.
func (m *Metrics) Decoded(accepted bool) {
	if m == nil {
		return
	}
	m.Messages.Inc()
	if accepted {
		m.AddOrders.Inc()
	} else {
		m.Rejected.Inc()
	}
}

// Signal counts one model decision.
func (m *Metrics) Signal(action string) {
	if m == nil {
		return
	}
	m.Signals.WithLabelValues(action).Inc()
}

// Trade counts one match of qty shares.
func (m *Metrics) Trade(qty uint32) {
	if m == nil {
		return
	}
	m.Trades.Inc()
	m.MatchedQty.Add(float64(qty))
}

// Depth publishes the current number of levels on each side.
func (m *Metrics) Depth(bids, asks int) {
	if m == nil {
		return
	}
	m.BookLevels.WithLabelValues("bid").Set(float64(bids))
	m.BookLevels.WithLabelValues("ask").Set(float64(asks))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
