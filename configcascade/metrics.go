package configcascade

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "glimmer_configcascade_cache_hits",
	Help: "Number of cascade resolutions served from cache",
})

var cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "glimmer_configcascade_cache_misses",
	Help: "Number of cascade resolutions recomputed from the store",
})

var tierFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "glimmer_configcascade_tier_fetch_errors_total",
	Help: "Number of tier fetches that failed and were skipped, per tier",
}, []string{"tier"})

var tiersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "glimmer_configcascade_tiers_rejected_total",
	Help: "Number of stored override payloads rejected by strict validation, per tier",
}, []string{"tier"})
