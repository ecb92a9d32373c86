// Package metrics exposes prometheus collectors for the serial engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	identitiesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mes",
		Subsystem: "serial",
		Name:      "identities_created_total",
		Help:      "Total number of serial identities created broken down by origin method.",
	}, []string{"origin"})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mes",
		Subsystem: "serial",
		Name:      "transitions_total",
		Help:      "Total number of audited state transitions broken down by subject type and event type.",
	}, []string{"subject", "event"})

	conflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mes",
		Subsystem: "serial",
		Name:      "conflicts_total",
		Help:      "Total number of rejected writes broken down by conflict kind.",
	}, []string{"kind"})

	propagations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mes",
		Subsystem: "lineage",
		Name:      "edges_total",
		Help:      "Total number of propagation edges recorded broken down by propagation type.",
	}, []string{"type"})

	lineageDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mes",
		Subsystem: "lineage",
		Name:      "traversal_depth",
		Help:      "Depth reached by ancestor/descendant traversals.",
		Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
	})

	generationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mes",
		Subsystem: "serial",
		Name:      "generation_seconds",
		Help:      "Latency of system serial generation broken down by mode and result.",
		Buckets: []float64{
			0.001, 0.002, 0.005, 0.01,
			0.02, 0.05, 0.1, 0.2,
			0.5, 1, 2,
		},
	}, []string{"mode", "result"})

	partCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mes",
		Subsystem: "part_cache",
		Name:      "requests_total",
		Help:      "Total number of part master data cache lookups broken down by hit/miss.",
	}, []string{"result"})
)

// IdentitiesCreated 记录新建序列号
func IdentitiesCreated(origin string, n int) {
	identitiesCreated.WithLabelValues(origin).Add(float64(n))
}

// Transition 记录一次状态迁移
func Transition(subject, event string) {
	transitions.WithLabelValues(subject, event).Inc()
}

// Conflict 记录一次冲突
func Conflict(kind string) {
	if kind == "" {
		kind = "other"
	}
	conflicts.WithLabelValues(kind).Inc()
}

// Propagated 记录流转边
func Propagated(propagationType string, edges int) {
	propagations.WithLabelValues(propagationType).Add(float64(edges))
}

// LineageDepth 记录谱系遍历深度
func LineageDepth(depth int) {
	lineageDepth.Observe(float64(depth))
}

// ObserveGeneration 记录赋号耗时
func ObserveGeneration(mode string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	generationLatency.WithLabelValues(mode, result).Observe(time.Since(start).Seconds())
}

// PartCacheRequest 记录物料缓存命中情况
func PartCacheRequest(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	partCache.WithLabelValues(result).Inc()
}
