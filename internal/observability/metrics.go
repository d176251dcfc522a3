package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchesTotal  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_sharing", Name: "matches_total", Help: "Total number of successful matches"})
	MatchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_sharing", Name: "match_attempts_total", Help: "Match attempts by result"}, []string{"result"})
	RequeuesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_sharing", Name: "requeues_total", Help: "Requests put back after an unsuccessful match"})
	MatchLatency  = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_sharing", Name: "match_latency_seconds", Help: "Match latency seconds"})
	QueueDepth    = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_sharing", Name: "request_queue_depth", Help: "Requests waiting for a match"})
	OpenOffers    = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_sharing", Name: "open_offers", Help: "Offers with seats left"})
	DriverSockets = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_sharing", Name: "driver_sessions", Help: "Connected driver websocket sessions"})
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_sharing", Name: "events_dropped_total", Help: "Match notifications that could not be delivered"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_sharing", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_sharing",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
