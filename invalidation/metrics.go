package invalidation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "glimmer_invalidation_events_published_total",
	Help: "Number of invalidation events published, per topic",
}, []string{"topic"})

var eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "glimmer_invalidation_events_received_total",
	Help: "Number of valid invalidation events received, per topic",
}, []string{"topic"})

var eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "glimmer_invalidation_events_dropped_total",
	Help: "Number of malformed invalidation events dropped, per topic",
}, []string{"topic"})

var callbackErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "glimmer_invalidation_callback_errors_total",
	Help: "Number of panics recovered from invalidation callbacks, per topic",
}, []string{"topic"})
