package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torbobase_eventbus_published_total",
		Help: "Total events published to the event bus, by name.",
	}, []string{"name"})

	eventsEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "torbobase_eventbus_ring_evicted_total",
		Help: "Total events evicted from the ring buffer once capacity was reached.",
	})

	criticalEventsPersistedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "torbobase_eventbus_critical_persisted_total",
		Help: "Total critical events persisted to the audit store, by severity.",
	}, []string{"severity"})

	streamingClientsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "torbobase_eventbus_streaming_clients",
		Help: "Current number of live streaming (SSE) subscribers.",
	})
)
