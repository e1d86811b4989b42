package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/medserve/discovery/internal/domain/entities"
	"github.com/medserve/discovery/internal/domain/providers"
	redisclient "github.com/medserve/discovery/internal/infrastructure/clients/redis"
)

// RedisEventBus implements the RatingEventBus interface using Redis Pub/Sub.
// Redis guarantees per-channel delivery order, which gives the per-service
// ordering the rating bridge relies on.
type RedisEventBus struct {
	client        *redisclient.Client
	subscriptions map[string]*redis.PubSub
	subscribers   map[string]map[chan *entities.RatingUpdateEvent]struct{}
	ownSubs       map[string]map[chan *entities.OwnRatingEvent]struct{}
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewRedisEventBus creates a new Redis-based rating event bus
func NewRedisEventBus(client *redisclient.Client) providers.RatingEventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		client:        client,
		subscriptions: make(map[string]*redis.PubSub),
		subscribers:   make(map[string]map[chan *entities.RatingUpdateEvent]struct{}),
		ownSubs:       make(map[string]map[chan *entities.OwnRatingEvent]struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Publish publishes an aggregate rating update to all subscribers
func (b *RedisEventBus) Publish(ctx context.Context, channel string, event *entities.RatingUpdateEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.client.Client().Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	log.Debug().Str("channel", channel).Str("event_id", event.ID).Msg("published rating event")
	return nil
}

// Subscribe subscribes to aggregate rating updates on a channel
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.RatingUpdateEvent, error) {
	b.mu.Lock()

	if _, exists := b.subscriptions[channel]; !exists {
		pubsub := b.client.Client().Subscribe(b.ctx, channel)
		b.subscriptions[channel] = pubsub
		go b.receiveMessages(channel, pubsub)
	}

	if b.subscribers[channel] == nil {
		b.subscribers[channel] = make(map[chan *entities.RatingUpdateEvent]struct{})
	}

	eventChan := make(chan *entities.RatingUpdateEvent, 100)
	b.subscribers[channel][eventChan] = struct{}{}
	subscriberCount := len(b.subscribers[channel])
	b.mu.Unlock()

	log.Debug().Str("channel", channel).Int("subscribers", subscriberCount).Msg("subscribed")

	go func() {
		<-ctx.Done()
		b.removeSubscriber(channel, eventChan)
	}()

	return eventChan, nil
}

// PublishOwnRating publishes the submitting user's own badge for a service
func (b *RedisEventBus) PublishOwnRating(ctx context.Context, userID string, event *entities.OwnRatingEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal own-rating event: %w", err)
	}

	channel := providers.GetOwnRatingChannel(userID)
	if err := b.client.Client().Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish own-rating event: %w", err)
	}
	return nil
}

// SubscribeOwnRatings subscribes to the current user's own-rating channel
func (b *RedisEventBus) SubscribeOwnRatings(ctx context.Context, userID string) (<-chan *entities.OwnRatingEvent, error) {
	channel := providers.GetOwnRatingChannel(userID)

	b.mu.Lock()
	if b.ownSubs[channel] == nil {
		b.ownSubs[channel] = make(map[chan *entities.OwnRatingEvent]struct{})
		pubsub := b.client.Client().Subscribe(b.ctx, channel)
		go b.receiveOwnMessages(channel, pubsub)
	}

	eventChan := make(chan *entities.OwnRatingEvent, 16)
	b.ownSubs[channel][eventChan] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if subs, ok := b.ownSubs[channel]; ok {
			if _, present := subs[eventChan]; present {
				delete(subs, eventChan)
				close(eventChan)
			}
		}
		b.mu.Unlock()
	}()

	return eventChan, nil
}

// receiveMessages receives messages from Redis and broadcasts them to subscribers
func (b *RedisEventBus) receiveMessages(channel string, pubsub *redis.PubSub) {
	defer func() {
		if err := b.cleanupChannel(channel); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("failed to cleanup channel")
		}
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event entities.RatingUpdateEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("failed to unmarshal rating event")
				continue
			}

			b.mu.RLock()
			for subscriber := range b.subscribers[channel] {
				select {
				case subscriber <- &event:
				default:
					// Subscriber channel full, skip event
					log.Warn().Str("channel", channel).Str("event_id", event.ID).Msg("subscriber channel full, skipping event")
				}
			}
			b.mu.RUnlock()
		}
	}
}

// receiveOwnMessages fans out own-rating events to the user's subscribers
func (b *RedisEventBus) receiveOwnMessages(channel string, pubsub *redis.PubSub) {
	defer func() {
		_ = pubsub.Close()
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event entities.OwnRatingEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("channel", channel).Msg("failed to unmarshal own-rating event")
				continue
			}

			b.mu.RLock()
			for subscriber := range b.ownSubs[channel] {
				select {
				case subscriber <- &event:
				default:
				}
			}
			b.mu.RUnlock()
		}
	}
}

func (b *RedisEventBus) removeSubscriber(channel string, eventChan chan *entities.RatingUpdateEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, exists := b.subscribers[channel]
	if !exists {
		return
	}

	if _, ok := subscribers[eventChan]; !ok {
		return
	}

	delete(subscribers, eventChan)
	close(eventChan)

	if len(subscribers) == 0 {
		delete(b.subscribers, channel)
		if pubsub, ok := b.subscriptions[channel]; ok {
			_ = pubsub.Close()
			delete(b.subscriptions, channel)
			log.Debug().Str("channel", channel).Msg("closed subscription")
		}
	}
}

func (b *RedisEventBus) cleanupChannel(channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers, exists := b.subscribers[channel]
	if exists {
		for subscriber := range subscribers {
			close(subscriber)
		}
		delete(b.subscribers, channel)
	}

	if pubsub, ok := b.subscriptions[channel]; ok {
		if err := pubsub.Close(); err != nil {
			return fmt.Errorf("failed to close subscription %s: %w", channel, err)
		}
		delete(b.subscriptions, channel)
	}

	return nil
}

// Unsubscribe unsubscribes from a channel
func (b *RedisEventBus) Unsubscribe(ctx context.Context, channel string) error {
	if err := b.cleanupChannel(channel); err != nil {
		return err
	}
	log.Debug().Str("channel", channel).Msg("unsubscribed")
	return nil
}

// Close closes the event bus and all subscriptions
func (b *RedisEventBus) Close() error {
	b.cancel()

	b.mu.RLock()
	channels := make([]string, 0, len(b.subscriptions))
	for channel := range b.subscriptions {
		channels = append(channels, channel)
	}
	b.mu.RUnlock()

	var errs []error
	for _, channel := range channels {
		if err := b.cleanupChannel(channel); err != nil {
			errs = append(errs, err)
		}
	}

	b.mu.Lock()
	for channel, subs := range b.ownSubs {
		for subscriber := range subs {
			close(subscriber)
		}
		delete(b.ownSubs, channel)
	}
	b.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("errors closing event bus: %v", errs)
	}

	log.Debug().Msg("event bus closed")
	return nil
}
