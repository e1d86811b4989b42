package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/medserve/discovery/internal/domain/entities"
	"github.com/medserve/discovery/internal/domain/providers"
	"github.com/medserve/discovery/internal/infrastructure/observability"
)

// CachedCatalogAdapter wraps a CatalogProvider with read-through caching.
// Rating submissions invalidate the affected record's cache entry so the
// post-submission refetch always reaches the backend.
type CachedCatalogAdapter struct {
	provider providers.CatalogProvider
	cache    providers.CacheProvider
	metrics  *observability.Metrics
}

// NewCachedCatalogAdapter creates a new cached catalog adapter
func NewCachedCatalogAdapter(provider providers.CatalogProvider, cache providers.CacheProvider, metrics *observability.Metrics) providers.CatalogProvider {
	return &CachedCatalogAdapter{
		provider: provider,
		cache:    cache,
		metrics:  metrics,
	}
}

// Cache TTLs (in seconds)
const (
	serviceByIDTTL = 300 // 5 minutes for single records
	servicePageTTL = 60  // 1 minute for pages; ratings move through the event stream anyway
)

func serviceCacheKey(id string) string {
	return fmt.Sprintf("service:%s", id)
}

func servicePageCacheKey(pageToken string, pageSize int) string {
	return fmt.Sprintf("services:page:%s:%d", pageToken, pageSize)
}

// FetchServicePage returns a page, serving from cache when possible
func (a *CachedCatalogAdapter) FetchServicePage(ctx context.Context, pageToken string, pageSize int) (*providers.ServicePage, error) {
	cacheKey := servicePageCacheKey(pageToken, pageSize)

	if cached, err := a.cache.Get(ctx, cacheKey); err == nil {
		var page providers.ServicePage
		if err := json.Unmarshal(cached, &page); err == nil {
			observability.RecordCacheHit(ctx, a.metrics, "service_page")
			return &page, nil
		}
		log.Warn().Err(err).Str("key", cacheKey).Msg("failed to unmarshal cached page")
	}
	observability.RecordCacheMiss(ctx, a.metrics, "service_page")

	page, err := a.provider.FetchServicePage(ctx, pageToken, pageSize)
	if err != nil {
		return nil, err
	}

	// Update cache asynchronously to avoid blocking the response
	go func() {
		bgCtx := context.Background()
		if data, err := json.Marshal(page); err == nil {
			if err := a.cache.Set(bgCtx, cacheKey, data, servicePageTTL); err != nil {
				log.Warn().Err(err).Str("key", cacheKey).Msg("failed to cache page")
			}
		}
	}()

	return page, nil
}

// FetchServiceByID refreshes a single record, serving from cache when possible
func (a *CachedCatalogAdapter) FetchServiceByID(ctx context.Context, id string, providerTypeHint entities.ProviderType) (*entities.ServiceRecord, error) {
	cacheKey := serviceCacheKey(id)

	if cached, err := a.cache.Get(ctx, cacheKey); err == nil {
		var record entities.ServiceRecord
		if err := json.Unmarshal(cached, &record); err == nil {
			observability.RecordCacheHit(ctx, a.metrics, "service_by_id")
			return &record, nil
		}
		log.Warn().Err(err).Str("key", cacheKey).Msg("failed to unmarshal cached record")
	}
	observability.RecordCacheMiss(ctx, a.metrics, "service_by_id")

	record, err := a.provider.FetchServiceByID(ctx, id, providerTypeHint)
	if err != nil {
		return nil, err
	}

	go func() {
		bgCtx := context.Background()
		if data, err := json.Marshal(record); err == nil {
			if err := a.cache.Set(bgCtx, cacheKey, data, serviceByIDTTL); err != nil {
				log.Warn().Err(err).Str("key", cacheKey).Msg("failed to cache record")
			}
		}
	}()

	return record, nil
}

// SubmitRating writes through to the backend and invalidates the record cache
func (a *CachedCatalogAdapter) SubmitRating(ctx context.Context, serviceID string, score float64, providerTypeHint entities.ProviderType) (*entities.RatingUpdateEvent, error) {
	event, err := a.provider.SubmitRating(ctx, serviceID, score, providerTypeHint)
	if err != nil {
		return nil, err
	}

	if err := a.cache.Delete(ctx, serviceCacheKey(serviceID)); err != nil {
		log.Warn().Err(err).Str("service_id", serviceID).Msg("failed to invalidate record cache")
	}

	return event, nil
}
