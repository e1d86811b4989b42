package handlers_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medserve/discovery/internal/api/handlers"
	"github.com/medserve/discovery/internal/domain/entities"
	"github.com/medserve/discovery/internal/domain/providers"
)

type mockEventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *entities.RatingUpdateEvent
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{
		subscribers: make(map[string][]chan *entities.RatingUpdateEvent),
	}
}

func (m *mockEventBus) Publish(ctx context.Context, channel string, event *entities.RatingUpdateEvent) error {
	m.mu.RLock()
	channels := append([]chan *entities.RatingUpdateEvent(nil), m.subscribers[channel]...)
	m.mu.RUnlock()

	for _, ch := range channels {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (m *mockEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.RatingUpdateEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan *entities.RatingUpdateEvent, 10)
	m.subscribers[channel] = append(m.subscribers[channel], ch)
	return ch, nil
}

func (m *mockEventBus) PublishOwnRating(ctx context.Context, userID string, event *entities.OwnRatingEvent) error {
	return nil
}

func (m *mockEventBus) SubscribeOwnRatings(ctx context.Context, userID string) (<-chan *entities.OwnRatingEvent, error) {
	return make(chan *entities.OwnRatingEvent), nil
}

func (m *mockEventBus) Unsubscribe(ctx context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, channel)
	return nil
}

func (m *mockEventBus) Close() error {
	return nil
}

func (m *mockEventBus) subscriberCount(channel string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscribers[channel])
}

// safeRecorder is an http.ResponseWriter whose body can be read while the
// handler goroutine is still streaming.
type safeRecorder struct {
	mu     sync.Mutex
	header http.Header
	body   bytes.Buffer
	code   int
}

func newSafeRecorder() *safeRecorder {
	return &safeRecorder{header: make(http.Header), code: http.StatusOK}
}

func (r *safeRecorder) Header() http.Header {
	return r.header
}

func (r *safeRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.Write(p)
}

func (r *safeRecorder) WriteHeader(statusCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.code = statusCode
}

func (r *safeRecorder) Flush() {}

func (r *safeRecorder) bodyString() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}

func TestSSEHandler_StreamServiceRatings(t *testing.T) {
	bus := newMockEventBus()
	handler := handlers.NewSSEHandler(bus)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/stream/services/svc-1", nil).WithContext(ctx)
	req.SetPathValue("id", "svc-1")
	rec := newSafeRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.StreamServiceRatings(rec, req)
	}()

	// Wait until the handler has subscribed before publishing.
	require.Eventually(t, func() bool {
		return bus.subscriberCount(providers.GetServiceChannel("svc-1")) == 1
	}, time.Second, 5*time.Millisecond)

	event := entities.NewRatingUpdateEvent("svc-1", 4.6, 11)
	require.NoError(t, bus.Publish(context.Background(), providers.GetServiceChannel("svc-1"), event))

	assert.Eventually(t, func() bool {
		return strings.Contains(rec.bodyString(), "event: rating_update")
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	body := rec.bodyString()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, `"service_id":"svc-1"`)
	assert.Contains(t, body, `"average_rating":4.6`)
	assert.Zero(t, handler.GetClientCount())
}

func TestSSEHandler_StreamServiceRatings_MissingID(t *testing.T) {
	handler := handlers.NewSSEHandler(newMockEventBus())

	req := httptest.NewRequest(http.MethodGet, "/api/stream/services/", nil)
	rec := httptest.NewRecorder()
	handler.StreamServiceRatings(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "service ID is required")
}

func TestSSEHandler_StreamAllRatings(t *testing.T) {
	bus := newMockEventBus()
	handler := handlers.NewSSEHandler(bus)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/stream/ratings", nil).WithContext(ctx)
	rec := newSafeRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.StreamAllRatings(rec, req)
	}()

	require.Eventually(t, func() bool {
		return bus.subscriberCount(providers.EventChannelRatingUpdates) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), providers.EventChannelRatingUpdates,
		entities.NewRatingUpdateEvent("svc-9", 3.1, 4)))

	assert.Eventually(t, func() bool {
		return strings.Contains(rec.bodyString(), `"service_id":"svc-9"`)
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
