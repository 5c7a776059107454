package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviefinder",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moviefinder",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"method", "path"})

	TMDBRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviefinder",
		Name:      "tmdb_requests_total",
		Help:      "Total movie metadata requests by mode (search, discover) and outcome.",
	}, []string{"mode", "status"})

	TMDBRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "moviefinder",
		Name:      "tmdb_request_duration_seconds",
		Help:      "Movie metadata request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"mode"})

	TrackerWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviefinder",
		Name:      "tracker_writes_total",
		Help:      "Search counter writes by outcome (created, incremented, failed).",
	}, []string{"outcome"})

	TrackerTrendingReadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "moviefinder",
		Name:      "tracker_trending_reads_total",
		Help:      "Trending reads by outcome (ok, failed, abandoned).",
	}, []string{"outcome"})

	LiveSearchClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "moviefinder",
		Name:      "live_search_clients",
		Help:      "Number of connected live search WebSocket clients.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TMDBRequestsTotal,
		TMDBRequestDuration,
		TrackerWritesTotal,
		TrackerTrendingReadsTotal,
		LiveSearchClients,
	)
}
