package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fennel/pkg/events"
	"github.com/Ramsey-B/fennel/pkg/models"
	"github.com/Ramsey-B/fennel/pkg/tracing"
)

// Store is the key/value surface the cache needs. *Client implements it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// MockDataCache holds the full mock data listing of a template. Entries are
// dropped whenever a write to the template is published on the bus.
type MockDataCache struct {
	store  Store
	ttl    time.Duration
	prefix string
	logger ectologger.Logger
}

func NewMockDataCache(store Store, ttl time.Duration, prefix string, logger ectologger.Logger) *MockDataCache {
	if prefix == "" {
		prefix = "fennel"
	}
	return &MockDataCache{
		store:  store,
		ttl:    ttl,
		prefix: prefix,
		logger: logger,
	}
}

func (c *MockDataCache) Key(scope models.TemplateScope) string {
	return fmt.Sprintf("%s:mock_data:%d:%d", c.prefix, scope.SpaceID, scope.TemplateID)
}

// Get reports ok=false on a miss. Undecodable entries are treated as misses.
func (c *MockDataCache) Get(ctx context.Context, scope models.TemplateScope) ([]models.MockData, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "MockDataCache.Get")
	defer span.End()

	raw, err := c.store.Get(ctx, c.Key(scope))
	if errors.Is(err, ErrMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var records []models.MockData
	if err := json.Unmarshal(raw, &records); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("key", c.Key(scope)).Warn("dropping undecodable cache entry")
		return nil, false, nil
	}
	return records, true, nil
}

func (c *MockDataCache) Set(ctx context.Context, scope models.TemplateScope, records []models.MockData) error {
	ctx, span := tracing.StartSpan(ctx, "MockDataCache.Set")
	defer span.End()

	if records == nil {
		records = []models.MockData{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.Key(scope), raw, c.ttl)
}

func (c *MockDataCache) Invalidate(ctx context.Context, scope models.TemplateScope) error {
	return c.store.Del(ctx, c.Key(scope))
}

// HandleEvent drops the listing of the template named by event.
func (c *MockDataCache) HandleEvent(ctx context.Context, event events.Event) error {
	return c.Invalidate(ctx, models.TemplateScope{SpaceID: event.SpaceID, TemplateID: event.TemplateID})
}
