// Package metrics holds the Prometheus collectors of the card service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

var (
	CardsRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventcard_cards_rendered_total",
			Help: "Total number of card render attempts by outcome",
		},
		[]string{"engine", "status"},
	)

	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventcard_render_duration_seconds",
			Help:    "Time spent rasterizing one card",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"engine"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventcard_cache_lookups_total",
			Help: "Card cache lookups by result",
		},
		[]string{"result"},
	)

	RendersInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventcard_renders_in_flight",
			Help: "Number of cards currently being rendered",
		},
	)
)

// ObserveRender records one finished render.
func ObserveRender(engine string, err error, elapsed time.Duration) {
	status := StatusOK
	if err != nil {
		status = StatusFailed
	}
	CardsRendered.WithLabelValues(engine, status).Inc()
	RenderDuration.WithLabelValues(engine).Observe(elapsed.Seconds())
}

// ObserveCache records a cache hit or miss.
func ObserveCache(hit bool) {
	if hit {
		CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	CacheLookups.WithLabelValues("miss").Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
