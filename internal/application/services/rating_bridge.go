package services

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/medserve/discovery/internal/domain/entities"
	"github.com/medserve/discovery/internal/domain/providers"
	"github.com/medserve/discovery/internal/infrastructure/observability"
)

// RatingBridge keeps every open view's notion of a service's rating consistent
// with the most recent rating submitted by any user, without a full catalog
// refetch. It is the only writer of rating fields in the snapshot.
//
// Each service record moves through a two-phase rating state: an Optimistic
// value written locally on the user's own submission, and a Reconciled value
// from the backend (submit response, refetch, or broadcast event). Only a
// reconciled transition may overwrite another state; a slow optimistic write
// can never clobber a newer authoritative read.
type RatingBridge struct {
	store   *SnapshotStore
	catalog providers.CatalogProvider
	bus     providers.RatingEventBus
	metrics *observability.Metrics
	userID  string

	mu         sync.Mutex
	generation map[string]uint64 // bumped on every reconciled apply
	ownRatings map[string]entities.RatingBadge
}

// NewRatingBridge creates a rating bridge for one browsing session.
func NewRatingBridge(store *SnapshotStore, catalog providers.CatalogProvider, bus providers.RatingEventBus, userID string, metrics *observability.Metrics) *RatingBridge {
	return &RatingBridge{
		store:      store,
		catalog:    catalog,
		bus:        bus,
		metrics:    metrics,
		userID:     userID,
		generation: make(map[string]uint64),
		ownRatings: make(map[string]entities.RatingBadge),
	}
}

// Run subscribes to the rating event stream and applies incoming updates until
// ctx is cancelled. Cancel the context when the consuming view is torn down;
// no event received after cancellation touches shared state.
func (b *RatingBridge) Run(ctx context.Context) error {
	aggregate, err := b.bus.Subscribe(ctx, providers.EventChannelRatingUpdates)
	if err != nil {
		return err
	}

	var own <-chan *entities.OwnRatingEvent
	if b.userID != "" {
		own, err = b.bus.SubscribeOwnRatings(ctx, b.userID)
		if err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-aggregate:
			if !ok {
				return nil
			}
			b.applyReconciled(ctx, ev)
		case ev, ok := <-own:
			if !ok {
				own = nil
				continue
			}
			b.setOwnRating(ev.ServiceID, ev.YourBadge)
		}
	}
}

// SubmitRating submits the current user's rating for a service. The snapshot
// reflects a locally computed optimistic aggregate immediately; the
// authoritative backend value reconciles it once the round trip completes. If
// the backend call or the follow-up refetch fails, the optimistic value stays
// displayed (stale but plausible) and the failure is only logged.
func (b *RatingBridge) SubmitRating(ctx context.Context, serviceID string, score float64, providerTypeHint entities.ProviderType) error {
	logger := observability.LoggerFromContext(ctx)

	if rec, ok := b.store.Get(serviceID); ok {
		// Optimistic estimate from the precise running mean, never from
		// rounded display values.
		total := rec.TotalRatings + 1
		avg := (rec.AverageRating*float64(rec.TotalRatings) + score) / float64(total)
		optimistic := &entities.RatingUpdateEvent{
			ServiceID:     serviceID,
			AverageRating: avg,
			TotalRatings:  total,
			RatingBadge:   entities.BadgeFor(avg, total),
		}
		b.applyOptimistic(serviceID, optimistic, b.currentGeneration(serviceID))
	}

	// The user's own badge is tracked separately from the aggregate and is
	// never overwritten by other users' rating events.
	b.setOwnRating(serviceID, entities.BadgeFor(score, 1))
	b.publishOwnRating(ctx, serviceID, providerTypeHint, score)

	authoritative, err := b.catalog.SubmitRating(ctx, serviceID, score, providerTypeHint)
	if err != nil {
		logger.Warn().Err(err).Str("service_id", serviceID).
			Msg("rating submission failed, keeping optimistic value")
		return nil
	}

	// Authoritative refetch: the full record, not just the aggregate.
	if refreshed, err := b.catalog.FetchServiceByID(ctx, serviceID, providerTypeHint); err == nil {
		authoritative = &entities.RatingUpdateEvent{
			ID:            authoritative.ID,
			ServiceID:     serviceID,
			AverageRating: refreshed.AverageRating,
			TotalRatings:  refreshed.TotalRatings,
			RatingBadge:   refreshed.RatingBadge,
			Timestamp:     authoritative.Timestamp,
		}
	} else {
		logger.Warn().Err(err).Str("service_id", serviceID).
			Msg("post-submission refetch failed, reconciling from submit response")
	}

	// A view torn down while the round trip was in flight must not have its
	// result applied.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	b.applyReconciled(ctx, authoritative)
	b.broadcast(ctx, authoritative)
	return nil
}

// OwnRating returns the current user's own badge for a service, if any.
func (b *RatingBridge) OwnRating(serviceID string) (entities.RatingBadge, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	badge, ok := b.ownRatings[serviceID]
	return badge, ok
}

// applyReconciled applies an authoritative rating update. Reconciled values
// always win: the generation bump invalidates any optimistic write still in
// flight for the same service.
func (b *RatingBridge) applyReconciled(ctx context.Context, ev *entities.RatingUpdateEvent) {
	if ev == nil || ev.ServiceID == "" {
		return
	}

	b.mu.Lock()
	b.generation[ev.ServiceID]++
	b.mu.Unlock()

	applied := b.store.ApplyRatingPatch(ev)
	observability.RecordRatingEvent(ctx, b.metrics, ev.ServiceID, applied)
	if !applied {
		log.Debug().Str("service_id", ev.ServiceID).Msg("rating event for unknown service dropped")
	}
}

// applyOptimistic applies a locally computed estimate, but only when no
// reconciled value has arrived for the service since baseGeneration was read.
func (b *RatingBridge) applyOptimistic(serviceID string, ev *entities.RatingUpdateEvent, baseGeneration uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.generation[serviceID] != baseGeneration {
		return false
	}
	return b.store.ApplyRatingPatch(ev)
}

func (b *RatingBridge) currentGeneration(serviceID string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation[serviceID]
}

func (b *RatingBridge) setOwnRating(serviceID string, badge entities.RatingBadge) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ownRatings[serviceID] = badge
}

func (b *RatingBridge) publishOwnRating(ctx context.Context, serviceID string, providerType entities.ProviderType, score float64) {
	if b.bus == nil || b.userID == "" {
		return
	}
	ev := &entities.OwnRatingEvent{
		ServiceID:    serviceID,
		ProviderType: providerType,
		YourBadge:    entities.BadgeFor(score, 1),
	}
	if err := b.bus.PublishOwnRating(ctx, b.userID, ev); err != nil {
		log.Warn().Err(err).Str("service_id", serviceID).Msg("failed to publish own-rating event")
	}
}

// broadcast republishes the authoritative aggregate so other open views learn
// of it without refetching. Duplicate delivery is harmless: the patch is a
// full replacement.
func (b *RatingBridge) broadcast(ctx context.Context, ev *entities.RatingUpdateEvent) {
	if b.bus == nil {
		return
	}
	// Backends that return a bare aggregate leave the event id empty; stamp
	// one so subscribers can dedupe and log deliveries.
	if ev.ID == "" {
		ev = entities.NewRatingUpdateEvent(ev.ServiceID, ev.AverageRating, ev.TotalRatings)
	}
	for _, channel := range []string{providers.EventChannelRatingUpdates, providers.GetServiceChannel(ev.ServiceID)} {
		if err := b.bus.Publish(ctx, channel, ev); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("failed to broadcast rating event")
		}
	}
}
