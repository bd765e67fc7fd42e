// Package metrics provides Prometheus metrics for the fennel service.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Ramsey-B/fennel/pkg/events"
)

var (
	// MockDataWritesTotal tracks mock data batch operations by outcome
	MockDataWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fennel",
			Subsystem: "mock_data",
			Name:      "writes_total",
			Help:      "Total number of mock data reconcile / batch create calls by outcome",
		},
		[]string{"operation", "status"},
	)

	// MockDataWriteDuration tracks how long a batch operation takes end to end
	MockDataWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fennel",
			Subsystem: "mock_data",
			Name:      "write_duration_seconds",
			Help:      "Duration of mock data reconcile / batch create calls in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	// MockDataRecordsTotal tracks records created, updated and deleted
	MockDataRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fennel",
			Subsystem: "mock_data",
			Name:      "records_total",
			Help:      "Total number of mock data records written by action",
		},
		[]string{"action"},
	)

	// CacheLookupsTotal tracks listing cache hits and misses
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fennel",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of mock data listing cache lookups by result",
		},
		[]string{"result"},
	)

	// EventsPublishedTotal tracks events published on the in-process bus
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fennel",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of domain events published by kind and outcome",
		},
		[]string{"event_type", "status"},
	)
)

const (
	StatusSuccess = "success"
	StatusInvalid = "invalid"
	StatusFailed  = "failed"
)

// ObserveWrite records one reconcile / batch create call.
func ObserveWrite(operation, status string, started time.Time) {
	MockDataWritesTotal.WithLabelValues(operation, status).Inc()
	MockDataWriteDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func ObserveCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

func ObservePublish(kind events.Kind, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailed
	}
	EventsPublishedTotal.WithLabelValues(string(kind), status).Inc()
}

// HandleEvent counts the records written by a mock data event.
func HandleEvent(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.MockDataPayload)
	if !ok {
		return nil
	}
	MockDataRecordsTotal.WithLabelValues("created").Add(float64(payload.Created))
	MockDataRecordsTotal.WithLabelValues("updated").Add(float64(payload.Updated))
	MockDataRecordsTotal.WithLabelValues("deleted").Add(float64(payload.Deleted))
	return nil
}
