package apikey

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var checkHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "glimmer_apikey_cache_hits",
	Help: "Number of api key checks served from cache",
})

var checkMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "glimmer_apikey_cache_misses",
	Help: "Number of api key checks that went to the store",
})
