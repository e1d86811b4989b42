package services

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/medserve/discovery/internal/domain/entities"
	"github.com/medserve/discovery/internal/domain/providers"
)

// SnapshotStore holds the de-duplicated superset of all service records
// fetched so far, keyed by id. It is the single shared mutable resource of the
// discovery engine: all mutation goes through LoadPage and ApplyRatingPatch,
// and each of those is atomic under the store lock so consumers never observe
// a half-merged snapshot.
type SnapshotStore struct {
	catalog  providers.CatalogProvider
	ownerID  string
	pageSize int

	mu        sync.RWMutex
	records   map[string]*entities.ServiceRecord
	nextToken string
	hasMore   bool
	loaded    bool
}

// NewSnapshotStore creates a snapshot store backed by the given catalog.
// ownerID is the provider id of the authenticated user, empty for patients;
// owned records sort first in the default display order.
func NewSnapshotStore(catalog providers.CatalogProvider, ownerID string, pageSize int) *SnapshotStore {
	return &SnapshotStore{
		catalog:  catalog,
		ownerID:  ownerID,
		pageSize: pageSize,
		records:  make(map[string]*entities.ServiceRecord),
		hasMore:  true,
	}
}

// LoadPage fetches the next page from the catalog backend and merges it into
// the snapshot. A fetch failure leaves the snapshot untouched; the caller
// keeps its last-known-good view and may retry. The returned count is the
// number of records merged.
func (s *SnapshotStore) LoadPage(ctx context.Context) (int, error) {
	s.mu.RLock()
	token := s.nextToken
	more := s.hasMore
	s.mu.RUnlock()

	if !more {
		return 0, nil
	}

	page, err := s.catalog.FetchServicePage(ctx, token, s.pageSize)
	if err != nil {
		log.Warn().Err(err).Msg("catalog page load failed, keeping prior snapshot")
		return 0, err
	}

	// The consuming view may have been torn down while the fetch was in
	// flight; a cancelled context must not mutate shared state.
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range page.Services {
		if rec == nil || rec.ID == "" {
			continue
		}
		// Last write wins on full-record fields: a later fetch of the same id
		// overwrites stale price, description and rating fields alike.
		clone := *rec
		s.records[rec.ID] = &clone
	}
	s.nextToken = page.NextPageToken
	s.hasMore = page.HasMore
	s.loaded = true

	return len(page.Services), nil
}

// ApplyRatingPatch replaces the three rating fields of the matching record.
// The patch is a full replacement, so reapplying the same event is a no-op.
// Returns false when the id is not in the snapshot; the event is dropped,
// there is nothing to reconcile into.
func (s *SnapshotStore) ApplyRatingPatch(ev *entities.RatingUpdateEvent) bool {
	if ev == nil || ev.ServiceID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[ev.ServiceID]
	if !ok {
		return false
	}

	rec.AverageRating = ev.AverageRating
	rec.TotalRatings = ev.TotalRatings
	rec.RatingBadge = ev.RatingBadge
	return true
}

// Get returns a copy of the record with the given id.
func (s *SnapshotStore) Get(id string) (*entities.ServiceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	clone := *rec
	return &clone, true
}

// Records returns copies of all records in the default display order: the
// caller's own records first, then real-backend records before synthetic
// placeholders, then newest createdAt first. Callers may re-sort freely.
func (s *SnapshotStore) Records() []*entities.ServiceRecord {
	s.mu.RLock()
	out := make([]*entities.ServiceRecord, 0, len(s.records))
	for _, rec := range s.records {
		clone := *rec
		out = append(out, &clone)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if s.ownerID != "" {
			aOwned := a.ProviderID == s.ownerID
			bOwned := b.ProviderID == s.ownerID
			if aOwned != bOwned {
				return aOwned
			}
		}
		if a.Synthetic != b.Synthetic {
			return !a.Synthetic
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	return out
}

// DistinctNames returns the distinct set of service names in the snapshot.
func (s *SnapshotStore) DistinctNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.records))
	names := make([]string, 0, len(s.records))
	for _, rec := range s.records {
		if _, ok := seen[rec.Name]; ok {
			continue
		}
		seen[rec.Name] = struct{}{}
		names = append(names, rec.Name)
	}
	return names
}

// OwnerID returns the provider id owning this session, empty for patients.
func (s *SnapshotStore) OwnerID() string {
	return s.ownerID
}

// Loaded reports whether at least one page has been merged since the last
// Reset.
func (s *SnapshotStore) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// HasMore reports whether more pages remain to be loaded.
func (s *SnapshotStore) HasMore() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasMore
}

// Len returns the number of records in the snapshot.
func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Reset clears the snapshot for a full refresh or logout.
func (s *SnapshotStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*entities.ServiceRecord)
	s.nextToken = ""
	s.hasMore = true
	s.loaded = false
}
