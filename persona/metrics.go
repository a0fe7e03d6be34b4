package persona

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lookupHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "glimmer_persona_cache_hits",
	Help: "Number of persona lookups served from cache",
})

var lookupMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "glimmer_persona_cache_misses",
	Help: "Number of persona lookups that went to the store",
})
