package services

import (
	"sort"
	"strings"

	"github.com/medserve/discovery/internal/domain/entities"
)

// WildcardAll matches every category or location.
const WildcardAll = "all"

// FilterSpec is the caller-supplied, per-query filter and sort specification.
// It is ephemeral: reconstructed for every query, never persisted.
type FilterSpec struct {
	// Term is matched case-insensitively against service and provider names.
	Term string

	// Category is a ServiceCategory value, or empty / "all" for any.
	Category string

	// Location is matched exactly or as a substring against the city, or
	// empty / "all" for any.
	Location string

	// MinPrice and MaxPrice bound the inclusive price range. Inverted bounds
	// are swapped, not rejected.
	MinPrice *float64
	MaxPrice *float64

	// MinRating is the minimum average rating, inclusive.
	MinRating *float64

	// HomeServiceOnly keeps only services that can be delivered at home.
	HomeServiceOnly bool

	// HighlightName promotes exact case-insensitive name matches to the front
	// of the result, used when the user arrives via a deep link.
	HighlightName string

	// ComparedIDs carries the current compare selection so renderers can mark
	// results already chosen for comparison. It does not affect matching.
	ComparedIDs []string
}

// IsCompared reports whether an id is in the spec's compare selection.
func (f *FilterSpec) IsCompared(id string) bool {
	for _, existing := range f.ComparedIDs {
		if existing == id {
			return true
		}
	}
	return false
}

// CatalogQueryService turns a snapshot and a FilterSpec into an ordered result
// set. It is pure: the input sequence is never mutated and the result is
// freshly constructed on every call.
type CatalogQueryService struct{}

// NewCatalogQueryService creates a catalog query service.
func NewCatalogQueryService() *CatalogQueryService {
	return &CatalogQueryService{}
}

// Search filters records against the spec and orders the result. The input is
// expected in the snapshot's default display order; filtering is stable, and
// highlight promotion reorders exact name matches to the front while keeping
// the default order among ties.
func (s *CatalogQueryService) Search(records []*entities.ServiceRecord, spec FilterSpec) []*entities.ServiceRecord {
	minPrice, maxPrice := normalizedPriceRange(spec)

	out := make([]*entities.ServiceRecord, 0, len(records))
	for _, rec := range records {
		if rec == nil {
			continue
		}
		if matches(rec, spec, minPrice, maxPrice) {
			out = append(out, rec)
		}
	}

	if highlight := strings.TrimSpace(spec.HighlightName); highlight != "" {
		sort.SliceStable(out, func(i, j int) bool {
			hi := strings.EqualFold(out[i].Name, highlight)
			hj := strings.EqualFold(out[j].Name, highlight)
			return hi && !hj
		})
	}

	return out
}

// matches is the AND of all filter predicates.
func matches(rec *entities.ServiceRecord, spec FilterSpec, minPrice, maxPrice *float64) bool {
	if term := strings.TrimSpace(spec.Term); term != "" {
		lower := strings.ToLower(term)
		if !strings.Contains(strings.ToLower(rec.Name), lower) &&
			!strings.Contains(strings.ToLower(rec.ProviderName), lower) {
			return false
		}
	}

	if category := strings.TrimSpace(spec.Category); category != "" && !strings.EqualFold(category, WildcardAll) {
		if !strings.EqualFold(string(rec.Category), category) {
			return false
		}
	}

	if location := strings.TrimSpace(spec.Location); location != "" && !strings.EqualFold(location, WildcardAll) {
		city := strings.ToLower(rec.City)
		if !strings.Contains(city, strings.ToLower(location)) {
			return false
		}
	}

	if minPrice != nil && rec.Price < *minPrice {
		return false
	}
	if maxPrice != nil && rec.Price > *maxPrice {
		return false
	}

	if spec.MinRating != nil && rec.AverageRating < *spec.MinRating {
		return false
	}

	if spec.HomeServiceOnly && !rec.HomeServiceCapable() {
		return false
	}

	return true
}

// normalizedPriceRange swaps inverted bounds instead of raising an error.
func normalizedPriceRange(spec FilterSpec) (*float64, *float64) {
	minPrice, maxPrice := spec.MinPrice, spec.MaxPrice
	if minPrice != nil && maxPrice != nil && *minPrice > *maxPrice {
		return maxPrice, minPrice
	}
	return minPrice, maxPrice
}
