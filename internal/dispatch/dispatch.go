// Package dispatch registers the event handlers of the process on the bus.
// Every subscription is an explicit call made once at startup.
package dispatch

import (
	"github.com/Ramsey-B/fennel/pkg/events"
	"github.com/Ramsey-B/fennel/pkg/metrics"
)

var mockDataKinds = []events.Kind{
	events.KindMockDataReconciled,
	events.KindMockDataCreated,
}

type Subscribers struct {
	// Kafka receives every kind. Nil when no brokers are configured.
	Kafka events.Handler
	// Cache drops mock data listings. Nil when Redis is disabled.
	Cache events.Handler
}

func SubscribeMetrics(bus *events.Bus) {
	for _, kind := range mockDataKinds {
		bus.Subscribe(kind, "metrics", metrics.HandleEvent)
	}
}

func SubscribeCacheInvalidation(bus *events.Bus, handler events.Handler) {
	if handler == nil {
		return
	}
	for _, kind := range mockDataKinds {
		bus.Subscribe(kind, "cache_invalidation", handler)
	}
}

func SubscribeKafka(bus *events.Bus, handler events.Handler) {
	if handler == nil {
		return
	}
	for _, kind := range events.Kinds() {
		bus.Subscribe(kind, "kafka", handler)
	}
}

// Dispatch wires every subscription. Cache invalidation runs first so a
// consumer reacting to the Kafka event never reads a stale listing.
func Dispatch(bus *events.Bus, subs Subscribers) {
	SubscribeCacheInvalidation(bus, subs.Cache)
	SubscribeMetrics(bus)
	SubscribeKafka(bus, subs.Kafka)
}
