package services

import (
	"sync"

	"github.com/medserve/discovery/internal/domain/entities"
)

// MaxCompareSize is the hard ceiling on the compare selection.
const MaxCompareSize = 4

// CompareService maintains the bounded, session-scoped compare selection. It
// stores ids only and reads live records from the snapshot at derive time, so
// a compared service never shows staler data than the catalog view next to it.
type CompareService struct {
	store *SnapshotStore

	mu  sync.Mutex
	ids []string // insertion order
}

// CompareMetrics are the derived tie-break metrics over the current members.
// Both pointers are nil when the selection is empty.
type CompareMetrics struct {
	Cheapest  *entities.ServiceRecord
	BestRated *entities.ServiceRecord
}

// NewCompareService creates a compare service reading from the given store.
func NewCompareService(store *SnapshotStore) *CompareService {
	return &CompareService{store: store}
}

// Toggle removes the id when present, adds it when absent and the selection
// has room. A fifth distinct id is silently rejected: the existing members are
// preserved and no error is reported. Returns whether the id is selected
// after the call.
func (c *CompareService) Toggle(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.ids {
		if existing == id {
			c.ids = append(c.ids[:i], c.ids[i+1:]...)
			return false
		}
	}

	if len(c.ids) >= MaxCompareSize {
		return false
	}

	c.ids = append(c.ids, id)
	return true
}

// Contains reports whether an id is currently selected.
func (c *CompareService) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.ids {
		if existing == id {
			return true
		}
	}
	return false
}

// IDs returns the selected ids in insertion order.
func (c *CompareService) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Len returns the current selection size.
func (c *CompareService) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

// Clear empties the selection.
func (c *CompareService) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = nil
}

// Members resolves the selection against the snapshot, in insertion order.
// Ids no longer present in the snapshot are skipped.
func (c *CompareService) Members() []*entities.ServiceRecord {
	ids := c.IDs()

	members := make([]*entities.ServiceRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := c.store.Get(id); ok {
			members = append(members, rec)
		}
	}
	return members
}

// Derive recomputes the aggregate metrics over the current members. With at
// most four members a full recompute per call is cheaper than keeping an
// incremental derivation correct. Ties go to the first member in insertion
// order reaching the extreme.
func (c *CompareService) Derive() CompareMetrics {
	members := c.Members()
	if len(members) == 0 {
		return CompareMetrics{}
	}

	cheapest := members[0]
	bestRated := members[0]
	for _, m := range members[1:] {
		if m.Price < cheapest.Price {
			cheapest = m
		}
		if m.AverageRating > bestRated.AverageRating {
			bestRated = m
		}
	}

	return CompareMetrics{Cheapest: cheapest, BestRated: bestRated}
}
