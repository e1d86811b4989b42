package entities

import "time"

// ServiceCategory classifies what kind of offering a service is.
type ServiceCategory string

const (
	ServiceCategoryTreatment ServiceCategory = "Treatment"
	ServiceCategoryMedicine  ServiceCategory = "Medicine"
	ServiceCategoryTest      ServiceCategory = "Test"
	ServiceCategorySurgery   ServiceCategory = "Surgery"
)

// ProviderType identifies the kind of provider that owns a service.
type ProviderType string

const (
	ProviderTypeDoctor     ProviderType = "doctor"
	ProviderTypeClinic     ProviderType = "clinic"
	ProviderTypeLaboratory ProviderType = "laboratory"
	ProviderTypePharmacy   ProviderType = "pharmacy"
)

// RatingBadge is the coarse tier derived from the aggregate rating.
type RatingBadge string

const (
	RatingBadgeExcellent RatingBadge = "excellent"
	RatingBadgeGood      RatingBadge = "good"
	RatingBadgeNormal    RatingBadge = "normal"
	RatingBadgePoor      RatingBadge = "poor"
	RatingBadgeNone      RatingBadge = "none"
)

// BadgeFor derives the display badge from an average rating and the number of
// submissions. A service with no ratings always carries RatingBadgeNone.
func BadgeFor(averageRating float64, totalRatings int) RatingBadge {
	if totalRatings == 0 {
		return RatingBadgeNone
	}
	switch {
	case averageRating >= 4.5:
		return RatingBadgeExcellent
	case averageRating >= 3.5:
		return RatingBadgeGood
	case averageRating >= 2.5:
		return RatingBadgeNormal
	default:
		return RatingBadgePoor
	}
}

// ServiceRecord represents one bookable healthcare offering in the catalog.
type ServiceRecord struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         float64         `json:"price"`
	Category      ServiceCategory `json:"category"`
	ProviderID    string          `json:"provider_id"`
	ProviderName  string          `json:"provider_name"`
	ProviderType  ProviderType    `json:"provider_type"`
	City          string          `json:"city"`
	DetailAddress string          `json:"detail_address"`
	MapLink       string          `json:"map_link,omitempty"`
	Image         string          `json:"image,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	AverageRating float64         `json:"average_rating"`
	TotalRatings  int             `json:"total_ratings"`
	RatingBadge   RatingBadge     `json:"rating_badge"`

	// Synthetic marks placeholder records mixed in when the live backend has no
	// data yet. Real records sort ahead of synthetic ones in the default order.
	Synthetic bool `json:"synthetic,omitempty"`
}

// HomeServiceCapable reports whether the service can be delivered at the
// patient's home. Only doctor-owned services are modeled as home-capable.
func (s *ServiceRecord) HomeServiceCapable() bool {
	return s.ProviderType == ProviderTypeDoctor
}
