package activation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var lookupHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "glimmer_activation_cache_hits",
	Help: "Number of channel activation checks served from cache",
})

var lookupMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "glimmer_activation_cache_misses",
	Help: "Number of channel activation checks that went to the store",
})
