package providers

import (
	"context"

	"github.com/medserve/discovery/internal/domain/entities"
)

// ServicePage is one page of catalog records plus a continuation token.
type ServicePage struct {
	Services      []*entities.ServiceRecord `json:"services"`
	NextPageToken string                    `json:"next_page_token"`
	HasMore       bool                      `json:"has_more"`
}

// CatalogProvider is the contract of the external catalog backend. Services,
// bookings and ratings are persisted elsewhere; this subsystem only reads pages
// and submits ratings through it.
type CatalogProvider interface {
	// FetchServicePage returns the page identified by pageToken. An empty token
	// requests the first page.
	FetchServicePage(ctx context.Context, pageToken string, pageSize int) (*ServicePage, error)

	// FetchServiceByID refreshes a single record, typically after a rating
	// submission. providerTypeHint helps the backend route the lookup.
	FetchServiceByID(ctx context.Context, id string, providerTypeHint entities.ProviderType) (*entities.ServiceRecord, error)

	// SubmitRating writes a rating and returns the authoritative post-write
	// aggregate for the service.
	SubmitRating(ctx context.Context, serviceID string, score float64, providerTypeHint entities.ProviderType) (*entities.RatingUpdateEvent, error)
}
