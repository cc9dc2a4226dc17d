package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var storeOps = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fetch_cache_store_operations_total",
		Help: "Object store operations by operation and result",
	},
	[]string{"op", "result"}, // op: head, put, get; result: ok, hit, miss, skipped, error
)
