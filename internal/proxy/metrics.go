package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeCached      = "cached"
	outcomeCacheHit    = "cache_hit"
	outcomeFallback    = "fallback"
	outcomePassthrough = "passthrough"
	outcomeError       = "error"
)

var outcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fetch_cache_requests_total",
		Help: "Cache requests by terminal outcome",
	},
	[]string{"outcome"},
)
