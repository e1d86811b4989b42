package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medserve/discovery/internal/domain/entities"
	"github.com/medserve/discovery/internal/domain/providers"
	apperrors "github.com/medserve/discovery/pkg/errors"
)

// fakeBus is an in-memory RatingEventBus for bridge tests.
type fakeBus struct {
	mu        sync.Mutex
	aggCh     chan *entities.RatingUpdateEvent
	ownCh     chan *entities.OwnRatingEvent
	published []*entities.RatingUpdateEvent
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		aggCh: make(chan *entities.RatingUpdateEvent, 16),
		ownCh: make(chan *entities.OwnRatingEvent, 16),
	}
}

func (f *fakeBus) Publish(ctx context.Context, channel string, event *entities.RatingUpdateEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, event)
	return nil
}

func (f *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.RatingUpdateEvent, error) {
	return f.aggCh, nil
}

func (f *fakeBus) PublishOwnRating(ctx context.Context, userID string, event *entities.OwnRatingEvent) error {
	return nil
}

func (f *fakeBus) SubscribeOwnRatings(ctx context.Context, userID string) (<-chan *entities.OwnRatingEvent, error) {
	return f.ownCh, nil
}

func (f *fakeBus) Unsubscribe(ctx context.Context, channel string) error { return nil }
func (f *fakeBus) Close() error                                          { return nil }

func (f *fakeBus) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeBus) publishedEvents() []*entities.RatingUpdateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entities.RatingUpdateEvent, len(f.published))
	copy(out, f.published)
	return out
}

func bridgeFixture(t *testing.T, rec *entities.ServiceRecord, catalog *fakeCatalog) (*SnapshotStore, *RatingBridge, *fakeBus) {
	t.Helper()
	if catalog.pages == nil {
		catalog.pages = map[string]*providers.ServicePage{
			"": {Services: []*entities.ServiceRecord{rec}, HasMore: false},
		}
	}
	store := NewSnapshotStore(catalog, "", 50)
	_, err := store.LoadPage(context.Background())
	require.NoError(t, err)

	bus := newFakeBus()
	bridge := NewRatingBridge(store, catalog, bus, "user-1", nil)
	return store, bridge, bus
}

func TestRatingBridge_SubmitRating_AuthoritativeWins(t *testing.T) {
	rec := svc("svc-1", "Dental Checkup", 1500, 4.0, 4)
	refreshed := svc("svc-1", "Dental Checkup", 1500, 3.9, 6)
	catalog := &fakeCatalog{
		records:    map[string]*entities.ServiceRecord{"svc-1": refreshed},
		submitResp: entities.NewRatingUpdateEvent("svc-1", 4.1, 5),
	}
	store, bridge, _ := bridgeFixture(t, rec, catalog)

	err := bridge.SubmitRating(context.Background(), "svc-1", 5.0, entities.ProviderTypeClinic)
	require.NoError(t, err)

	// The authoritative refetched aggregate wins over the optimistic
	// locally computed (4.0*4+5)/5 = 4.2 estimate.
	got, ok := store.Get("svc-1")
	require.True(t, ok)
	assert.Equal(t, 3.9, got.AverageRating)
	assert.Equal(t, 6, got.TotalRatings)
	assert.Equal(t, entities.RatingBadgeGood, got.RatingBadge)
}

func TestRatingBridge_SubmitRating_FailureKeepsOptimistic(t *testing.T) {
	rec := svc("svc-1", "Dental Checkup", 1500, 4.0, 4)
	catalog := &fakeCatalog{
		submitErr: apperrors.NewExternalError("backend down", nil),
	}
	store, bridge, _ := bridgeFixture(t, rec, catalog)

	err := bridge.SubmitRating(context.Background(), "svc-1", 5.0, entities.ProviderTypeClinic)
	require.NoError(t, err) // failure is logged, not surfaced as a blocking error

	// The optimistic estimate stays displayed: (4.0*4 + 5.0)/5 = 4.2.
	got, ok := store.Get("svc-1")
	require.True(t, ok)
	assert.InDelta(t, 4.2, got.AverageRating, 1e-9)
	assert.Equal(t, 5, got.TotalRatings)
}

func TestRatingBridge_SubmitRating_RefetchFailureFallsBackToSubmitResponse(t *testing.T) {
	rec := svc("svc-1", "Dental Checkup", 1500, 4.0, 4)
	catalog := &fakeCatalog{
		fetchErr:   apperrors.NewExternalError("backend down", nil),
		submitResp: entities.NewRatingUpdateEvent("svc-1", 4.1, 5),
	}
	store, bridge, _ := bridgeFixture(t, rec, catalog)

	err := bridge.SubmitRating(context.Background(), "svc-1", 5.0, entities.ProviderTypeClinic)
	require.NoError(t, err)

	got, ok := store.Get("svc-1")
	require.True(t, ok)
	assert.Equal(t, 4.1, got.AverageRating)
	assert.Equal(t, 5, got.TotalRatings)
}

func TestRatingBridge_SubmitRating_BroadcastsAuthoritativeEvent(t *testing.T) {
	rec := svc("svc-1", "Dental Checkup", 1500, 4.0, 4)
	catalog := &fakeCatalog{
		records:    map[string]*entities.ServiceRecord{"svc-1": svc("svc-1", "Dental Checkup", 1500, 4.1, 5)},
		submitResp: entities.NewRatingUpdateEvent("svc-1", 4.1, 5),
	}
	_, bridge, bus := bridgeFixture(t, rec, catalog)

	require.NoError(t, bridge.SubmitRating(context.Background(), "svc-1", 5.0, entities.ProviderTypeClinic))

	// Global channel plus the per-service channel.
	assert.Equal(t, 2, bus.publishedCount())
}

func TestRatingBridge_SubmitRating_StampsMissingEventID(t *testing.T) {
	rec := svc("svc-1", "Dental Checkup", 1500, 4.0, 4)
	catalog := &fakeCatalog{
		records: map[string]*entities.ServiceRecord{"svc-1": svc("svc-1", "Dental Checkup", 1500, 4.1, 5)},
		// A bare aggregate, the way a backend without event ids responds.
		submitResp: &entities.RatingUpdateEvent{ServiceID: "svc-1", AverageRating: 4.1, TotalRatings: 5},
	}
	_, bridge, bus := bridgeFixture(t, rec, catalog)

	require.NoError(t, bridge.SubmitRating(context.Background(), "svc-1", 5.0, entities.ProviderTypeClinic))

	events := bus.publishedEvents()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestRatingBridge_OwnRatingOverlaySurvivesAggregateEvents(t *testing.T) {
	rec := svc("svc-1", "Dental Checkup", 1500, 4.0, 4)
	catalog := &fakeCatalog{
		records:    map[string]*entities.ServiceRecord{"svc-1": svc("svc-1", "Dental Checkup", 1500, 4.1, 5)},
		submitResp: entities.NewRatingUpdateEvent("svc-1", 4.1, 5),
	}
	_, bridge, _ := bridgeFixture(t, rec, catalog)

	require.NoError(t, bridge.SubmitRating(context.Background(), "svc-1", 5.0, entities.ProviderTypeClinic))

	badge, ok := bridge.OwnRating("svc-1")
	require.True(t, ok)
	assert.Equal(t, entities.RatingBadgeExcellent, badge)

	// Another user's rating drags the aggregate down; the own badge stays.
	bridge.applyReconciled(context.Background(), entities.NewRatingUpdateEvent("svc-1", 2.1, 6))

	badge, ok = bridge.OwnRating("svc-1")
	require.True(t, ok)
	assert.Equal(t, entities.RatingBadgeExcellent, badge)
}

func TestRatingBridge_StaleOptimisticNeverClobbersReconciled(t *testing.T) {
	rec := svc("svc-1", "Dental Checkup", 1500, 4.0, 4)
	catalog := &fakeCatalog{}
	store, bridge, _ := bridgeFixture(t, rec, catalog)

	// An optimistic write computed before a reconciled value arrived must be
	// rejected when it finally tries to apply.
	staleGeneration := bridge.currentGeneration("svc-1")

	authoritative := entities.NewRatingUpdateEvent("svc-1", 4.5, 10)
	bridge.applyReconciled(context.Background(), authoritative)

	applied := bridge.applyOptimistic("svc-1", &entities.RatingUpdateEvent{
		ServiceID:     "svc-1",
		AverageRating: 4.2,
		TotalRatings:  5,
		RatingBadge:   entities.RatingBadgeGood,
	}, staleGeneration)

	assert.False(t, applied)
	got, _ := store.Get("svc-1")
	assert.Equal(t, 4.5, got.AverageRating)
	assert.Equal(t, 10, got.TotalRatings)
}

func TestRatingBridge_RunAppliesStreamedEvents(t *testing.T) {
	rec := svc("svc-1", "Dental Checkup", 1500, 4.0, 4)
	catalog := &fakeCatalog{}
	store, bridge, bus := bridgeFixture(t, rec, catalog)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = bridge.Run(ctx)
		close(done)
	}()

	event := entities.NewRatingUpdateEvent("svc-1", 4.6, 20)
	bus.aggCh <- event
	bus.aggCh <- event // duplicate delivery

	assert.Eventually(t, func() bool {
		got, ok := store.Get("svc-1")
		return ok && got.AverageRating == 4.6 && got.TotalRatings == 20
	}, time.Second, 10*time.Millisecond)

	// Own-rating events from another session update the overlay.
	bus.ownCh <- &entities.OwnRatingEvent{ServiceID: "svc-1", YourBadge: entities.RatingBadgeGood}
	assert.Eventually(t, func() bool {
		badge, ok := bridge.OwnRating("svc-1")
		return ok && badge == entities.RatingBadgeGood
	}, time.Second, 10*time.Millisecond)

	// Teardown: once the context is cancelled, the loop exits and late
	// events no longer touch shared state.
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bridge did not stop after context cancellation")
	}

	bus.aggCh <- entities.NewRatingUpdateEvent("svc-1", 1.0, 21)
	time.Sleep(20 * time.Millisecond)
	got, _ := store.Get("svc-1")
	assert.Equal(t, 4.6, got.AverageRating)
}

func TestRatingBridge_UnknownServiceEventDropped(t *testing.T) {
	rec := svc("svc-1", "Dental Checkup", 1500, 4.0, 4)
	catalog := &fakeCatalog{}
	store, bridge, _ := bridgeFixture(t, rec, catalog)

	before := store.Records()
	bridge.applyReconciled(context.Background(), entities.NewRatingUpdateEvent("svc-unknown", 5.0, 1))
	assert.Equal(t, before, store.Records())
}
