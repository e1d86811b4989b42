package entities

import (
	"time"

	"github.com/google/uuid"
)

// RatingUpdateEvent is broadcast whenever any user's rating submission changes
// a service's aggregate rating. The payload is a full replacement of the three
// rating fields, so applying the same event twice is harmless.
type RatingUpdateEvent struct {
	ID            string      `json:"id"`
	ServiceID     string      `json:"service_id"`
	AverageRating float64     `json:"average_rating"`
	TotalRatings  int         `json:"total_ratings"`
	RatingBadge   RatingBadge `json:"rating_badge"`
	Timestamp     time.Time   `json:"timestamp"`
}

// NewRatingUpdateEvent creates a rating update event for a service.
func NewRatingUpdateEvent(serviceID string, averageRating float64, totalRatings int) *RatingUpdateEvent {
	return &RatingUpdateEvent{
		ID:            uuid.New().String(),
		ServiceID:     serviceID,
		AverageRating: averageRating,
		TotalRatings:  totalRatings,
		RatingBadge:   BadgeFor(averageRating, totalRatings),
		Timestamp:     time.Now().UTC(),
	}
}

// OwnRatingEvent carries the current user's own badge for a service. It travels
// on a separate channel from aggregate updates and never overwrites them.
type OwnRatingEvent struct {
	ServiceID    string       `json:"service_id"`
	ProviderType ProviderType `json:"provider_type"`
	YourBadge    RatingBadge  `json:"your_badge"`
}
