package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sumatin_token_refresh_total",
			Help: "Total number of access token refresh calls by outcome",
		},
		[]string{"outcome"},
	)

	TokenRefreshWaiters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sumatin_token_refresh_waiters_total",
			Help: "Total number of requests that joined a refresh already in flight",
		},
	)

	TokenRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sumatin_token_refresh_duration_seconds",
			Help:    "Time spent exchanging a refresh token",
			Buckets: prometheus.DefBuckets,
		},
	)
)
