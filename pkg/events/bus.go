// Package events is an in-process event bus. Handlers are registered per event
// kind when the process starts and run in registration order on Publish.
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fennel/pkg/tracing"
)

type Kind string

const (
	KindMockDataReconciled Kind = "template_mock_data.reconciled"
	KindMockDataCreated    Kind = "template_mock_data.created"
	KindMockSchemeSaved    Kind = "template_mock_scheme.saved"
	KindSpaceConfigRenewed Kind = "space_config.renewed"

	KindTemplateCreated         Kind = "template.created"
	KindTemplateSnapshotUpdated Kind = "template_snapshot.updated"
)

// Kinds lists every kind the services publish.
func Kinds() []Kind {
	return []Kind{
		KindMockDataReconciled,
		KindMockDataCreated,
		KindMockSchemeSaved,
		KindSpaceConfigRenewed,
		KindTemplateCreated,
		KindTemplateSnapshotUpdated,
	}
}

// Event describes a committed write. Payload never carries mock data bodies.
type Event struct {
	Kind       Kind      `json:"event_type"`
	SpaceID    int64     `json:"space_id"`
	TemplateID int64     `json:"template_id,omitempty"`
	Operator   string    `json:"operator,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Payload    any       `json:"payload,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// MockDataPayload is the payload of the mock data kinds.
type MockDataPayload struct {
	Created    int      `json:"created"`
	Updated    int      `json:"updated"`
	Deleted    int      `json:"deleted"`
	NodeIDs    []string `json:"node_ids"`
	DeletedIDs []int64  `json:"deleted_ids,omitempty"`
}

// SpaceConfigPayload is the payload of KindSpaceConfigRenewed.
type SpaceConfigPayload struct {
	Names []string `json:"names"`
}

// TemplatePayload is the payload of the template kinds.
type TemplatePayload struct {
	SnapshotID int64  `json:"snapshot_id"`
	MD5Sum     string `json:"md5sum"`
}

type Handler func(ctx context.Context, event Event) error

type subscription struct {
	name    string
	handler Handler
}

type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]subscription
	logger   ectologger.Logger
}

func NewBus(logger ectologger.Logger) *Bus {
	return &Bus{
		handlers: map[Kind][]subscription{},
		logger:   logger,
	}
}

// Subscribe registers handler for kind under name. Subscribing the same name
// to the same kind twice replaces the earlier handler in place.
func (b *Bus) Subscribe(kind Kind, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[kind]
	for i, s := range subs {
		if s.name == name {
			subs[i].handler = handler
			return
		}
	}
	b.handlers[kind] = append(subs, subscription{name: name, handler: handler})
}

// Handlers returns the names subscribed to kind, in run order.
func (b *Bus) Handlers(kind Kind) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, len(b.handlers[kind]))
	for i, s := range b.handlers[kind] {
		names[i] = s.name
	}
	return names
}

// Publish runs every handler of event.Kind. A failing handler does not stop
// the ones after it; all failures are joined into the returned error.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	ctx, span := tracing.StartSpan(ctx, "Bus.Publish")
	defer span.End()

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.handlers[event.Kind]...)
	b.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := s.handler(ctx, event); err != nil {
			b.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"event_type":  event.Kind,
				"handler":     s.name,
				"space_id":    event.SpaceID,
				"template_id": event.TemplateID,
			}).Error("event handler failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}

	return errors.Join(errs...)
}
