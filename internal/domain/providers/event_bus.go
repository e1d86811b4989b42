package providers

import (
	"context"

	"github.com/medserve/discovery/internal/domain/entities"
)

// RatingEventBus delivers rating updates to subscribers. Delivery is at least
// once and ordered per service; no ordering is guaranteed across services.
type RatingEventBus interface {
	// Publish publishes an aggregate rating update to all subscribers.
	Publish(ctx context.Context, channel string, event *entities.RatingUpdateEvent) error

	// Subscribe subscribes to aggregate rating updates on a channel. The
	// returned channel is closed when ctx is cancelled.
	Subscribe(ctx context.Context, channel string) (<-chan *entities.RatingUpdateEvent, error)

	// PublishOwnRating publishes the submitting user's own badge for a service.
	PublishOwnRating(ctx context.Context, userID string, event *entities.OwnRatingEvent) error

	// SubscribeOwnRatings subscribes to the current user's own-rating channel.
	SubscribeOwnRatings(ctx context.Context, userID string) (<-chan *entities.OwnRatingEvent, error)

	// Unsubscribe tears down a channel subscription.
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the bus and all subscriptions.
	Close() error
}

// Channel names for rating events.
const (
	// EventChannelRatingUpdates carries aggregate updates for all services.
	EventChannelRatingUpdates = "service:ratings"

	// EventChannelServicePrefix prefixes per-service channels.
	EventChannelServicePrefix = "service:"

	// EventChannelOwnRatingPrefix prefixes per-user own-rating channels.
	EventChannelOwnRatingPrefix = "user:ratings:"
)

// GetServiceChannel returns the channel name for one service's updates.
func GetServiceChannel(serviceID string) string {
	return EventChannelServicePrefix + serviceID
}

// GetOwnRatingChannel returns the own-rating channel name for a user.
func GetOwnRatingChannel(userID string) string {
	return EventChannelOwnRatingPrefix + userID
}
