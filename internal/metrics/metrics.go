// Package metrics registers prometheus collectors shared across the pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BarsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "bars_total", Help: "Count of market bars ingested"},
		[]string{"symbol"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals emitted by strategies"},
		[]string{"symbol", "strategy"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side"},
	)
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fills_total", Help: "Order fills received"},
		[]string{"symbol"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sizing_rejections_total", Help: "Signals rejected by the position sizer"},
		[]string{"symbol", "reason"},
	)
	OpenPositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "open_positions", Help: "Currently open positions"},
		[]string{"symbol", "strategy"},
	)
)

func init() {
	prometheus.MustRegister(BarsTotal, SignalsTotal, OrdersTotal, FillsTotal, RejectionsTotal, OpenPositions)
}

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
