// Package metrics exposes Prometheus collectors for the query API,
// scraped at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueryLatency records end-to-end handler duration per route.
var QueryLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "geoindex_query_duration_seconds",
		Help:    "Query handler duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"route", "region"},
)

// CandidateSetSize records how many records a query returned. For
// /intersect this is the number of buildings that survived the hit
// filter, not the size of the candidate set the sweep started from.
var CandidateSetSize = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "geoindex_candidate_set_size",
		Help:    "Number of records returned by the query",
		Buckets: []float64{1, 5, 10, 25, 50, 100},
	},
	[]string{"route"},
)

// CacheResult counts cache hits and misses for the response cache.
var CacheResult = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "geoindex_cache_results_total",
		Help: "Response cache hits and misses",
	},
	[]string{"route", "result"},
)

// IndexLoadSeconds records how long loading a region's spatial index
// from disk took, observed once per region load at server startup.
var IndexLoadSeconds = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "geoindex_index_load_seconds",
		Help:    "Time to load a region's spatial index from disk",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"region", "kind"},
)

// ObserveQuery records a query's duration and result count in one
// call, made by a handler once its results are known.
func ObserveQuery(route, region string, start time.Time, candidateCount int) {
	QueryLatency.WithLabelValues(route, region).Observe(time.Since(start).Seconds())
	CandidateSetSize.WithLabelValues(route).Observe(float64(candidateCount))
}
