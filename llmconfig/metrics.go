package llmconfig

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var cacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "glimmer_llmconfig_cache_hits",
	Help: "Number of LLM config resolutions served from cache",
})

var cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "glimmer_llmconfig_cache_misses",
	Help: "Number of LLM config resolutions recomputed from the store",
})

var fetchErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "glimmer_llmconfig_fetch_errors_total",
	Help: "Number of failed LLM override fetches degraded to the baseline",
})

var rowsRejected = promauto.NewCounter(prometheus.CounterOpts{
	Name: "glimmer_llmconfig_rows_rejected_total",
	Help: "Number of stored LLM override rows rejected by strict validation",
})
