// internal/inventory/application/metrics.go
package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 引擎级指标，通过 /metrics 暴露给 Prometheus。
var (
	reserveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lager_reserve_total",
		Help: "Reserve operations by strategy and result.",
	}, []string{"strategy", "result"})

	reserveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lager_reserve_duration_seconds",
		Help:    "Reserve latency by strategy. Lock wait time is included.",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})

	optimisticConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lager_optimistic_conflicts_total",
		Help: "Version mismatches observed by the optimistic strategy.",
	})

	sweepReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lager_sweep_released_total",
		Help: "Expired reservations released by the sweeper.",
	})
)
