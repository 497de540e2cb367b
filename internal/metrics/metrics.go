package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubscriptionsProcessed counts per-subscription outcomes. "deferred"
	// appears only here and in logs; BatchResult excludes it.
	SubscriptionsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperwatch_subscriptions_processed_total",
			Help: "Subscription processing outcomes per batch run",
		},
		[]string{"outcome"},
	)

	PapersDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "paperwatch_papers_delivered_total",
			Help: "Papers delivered to users after dedup",
		},
	)

	ProviderQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperwatch_provider_queries_total",
			Help: "Queries issued to the paper search provider",
		},
		[]string{"status"},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperwatch_cache_requests_total",
			Help: "Result cache lookups",
		},
		[]string{"result"},
	)

	RateLimitDeferrals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paperwatch_rate_limit_deferrals_total",
			Help: "Subscriptions deferred by rate limiting",
		},
		[]string{"op"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "paperwatch_batch_duration_seconds",
			Help:    "Duration of one worker batch run",
			Buckets: prometheus.DefBuckets,
		},
	)

	RateLimiterWindows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "paperwatch_rate_limiter_windows",
			Help: "Live rate limiter windows after the last sweep",
		},
	)
)
