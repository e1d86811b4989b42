package catalog

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medserve/discovery/internal/domain/entities"
	"github.com/medserve/discovery/internal/domain/providers"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	if !ok {
		return nil, providers.ErrCacheMiss
	}
	return data, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

type countingProvider struct {
	mu          sync.Mutex
	pageCalls   int
	byIDCalls   int
	submitCalls int
	page        *providers.ServicePage
	record      *entities.ServiceRecord
	submitResp  *entities.RatingUpdateEvent
}

func (p *countingProvider) FetchServicePage(ctx context.Context, pageToken string, pageSize int) (*providers.ServicePage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageCalls++
	return p.page, nil
}

func (p *countingProvider) FetchServiceByID(ctx context.Context, id string, providerTypeHint entities.ProviderType) (*entities.ServiceRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byIDCalls++
	return p.record, nil
}

func (p *countingProvider) SubmitRating(ctx context.Context, serviceID string, score float64, providerTypeHint entities.ProviderType) (*entities.RatingUpdateEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitCalls++
	return p.submitResp, nil
}

func (p *countingProvider) calls() (int, int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageCalls, p.byIDCalls, p.submitCalls
}

func TestFetchServicePage_ServesFromCache(t *testing.T) {
	cache := newMemoryCache()
	provider := &countingProvider{}

	cached := &providers.ServicePage{
		Services: []*entities.ServiceRecord{{ID: "svc-1", Name: "Dental Checkup"}},
		HasMore:  false,
	}
	data, err := json.Marshal(cached)
	require.NoError(t, err)
	require.NoError(t, cache.Set(context.Background(), servicePageCacheKey("", 10), data, servicePageTTL))

	adapter := NewCachedCatalogAdapter(provider, cache, nil)
	page, err := adapter.FetchServicePage(context.Background(), "", 10)

	require.NoError(t, err)
	require.Len(t, page.Services, 1)
	assert.Equal(t, "svc-1", page.Services[0].ID)

	pageCalls, _, _ := provider.calls()
	assert.Zero(t, pageCalls, "cache hit must not reach the backend")
}

func TestFetchServicePage_MissPopulatesCache(t *testing.T) {
	cache := newMemoryCache()
	provider := &countingProvider{
		page: &providers.ServicePage{
			Services: []*entities.ServiceRecord{{ID: "svc-1"}},
			HasMore:  true,
		},
	}

	adapter := NewCachedCatalogAdapter(provider, cache, nil)
	page, err := adapter.FetchServicePage(context.Background(), "tok", 10)

	require.NoError(t, err)
	assert.True(t, page.HasMore)

	pageCalls, _, _ := provider.calls()
	assert.Equal(t, 1, pageCalls)

	// The cache write happens off the request path.
	assert.Eventually(t, func() bool {
		return cache.has(servicePageCacheKey("tok", 10))
	}, time.Second, 5*time.Millisecond)
}

func TestFetchServiceByID_ServesFromCache(t *testing.T) {
	cache := newMemoryCache()
	provider := &countingProvider{}

	data, err := json.Marshal(&entities.ServiceRecord{ID: "svc-1", AverageRating: 4.2})
	require.NoError(t, err)
	require.NoError(t, cache.Set(context.Background(), serviceCacheKey("svc-1"), data, serviceByIDTTL))

	adapter := NewCachedCatalogAdapter(provider, cache, nil)
	rec, err := adapter.FetchServiceByID(context.Background(), "svc-1", "")

	require.NoError(t, err)
	assert.InDelta(t, 4.2, rec.AverageRating, 0.0001)

	_, byIDCalls, _ := provider.calls()
	assert.Zero(t, byIDCalls)
}

func TestSubmitRating_InvalidatesRecordCache(t *testing.T) {
	cache := newMemoryCache()
	provider := &countingProvider{
		submitResp: &entities.RatingUpdateEvent{ServiceID: "svc-1", AverageRating: 4.0, TotalRatings: 3},
	}

	data, err := json.Marshal(&entities.ServiceRecord{ID: "svc-1", AverageRating: 3.0})
	require.NoError(t, err)
	require.NoError(t, cache.Set(context.Background(), serviceCacheKey("svc-1"), data, serviceByIDTTL))

	adapter := NewCachedCatalogAdapter(provider, cache, nil)
	ev, err := adapter.SubmitRating(context.Background(), "svc-1", 5, entities.ProviderTypeClinic)

	require.NoError(t, err)
	assert.Equal(t, 3, ev.TotalRatings)
	assert.False(t, cache.has(serviceCacheKey("svc-1")))

	// The next lookup goes back to the provider.
	provider.mu.Lock()
	provider.record = &entities.ServiceRecord{ID: "svc-1", AverageRating: 4.0}
	provider.mu.Unlock()

	rec, err := adapter.FetchServiceByID(context.Background(), "svc-1", "")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, rec.AverageRating, 0.0001)

	_, byIDCalls, _ := provider.calls()
	assert.Equal(t, 1, byIDCalls)
}
