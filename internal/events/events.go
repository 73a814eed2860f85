package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neboloop/texbridge/internal/logging"
)

// ErrFull is returned by TryEmit when the event buffer has no room.
var ErrFull = errors.New("event buffer full")

// ErrClosed is returned when emitting on a completed subject.
var ErrClosed = errors.New("event subject closed")

// HandlerFunc is the function called when an event is emitted.
type HandlerFunc func(context.Context, any) error

// SubjectOption configures a Subject
type SubjectOption func(*subjectConfig)

type subjectConfig struct {
	replayDepth    int
	bufferSize     int
	syncDelivery   bool
	emitTimeout    time.Duration
	handlerTimeout time.Duration
	logger         *slog.Logger
}

// WithBufferSize sets the event channel buffer size
func WithBufferSize(size int) SubjectOption {
	return func(cfg *subjectConfig) {
		cfg.bufferSize = size
	}
}

// WithReplay keeps the last depth events of every topic and hands them to
// subscribers that ask for replay.
func WithReplay(depth int) SubjectOption {
	return func(cfg *subjectConfig) {
		cfg.replayDepth = depth
	}
}

// WithLogger sets a structured logger for event system errors
func WithLogger(logger *slog.Logger) SubjectOption {
	return func(cfg *subjectConfig) {
		cfg.logger = logger
	}
}

// WithSyncDelivery forces synchronous (inline) event delivery.
// This serializes all handler calls within the single eventLoop goroutine,
// which is useful when handlers must not be called concurrently (e.g. WebSocket writes).
func WithSyncDelivery() SubjectOption {
	return func(cfg *subjectConfig) {
		cfg.syncDelivery = true
	}
}

// WithEmitTimeout bounds how long Emit waits for buffer space.
func WithEmitTimeout(d time.Duration) SubjectOption {
	return func(cfg *subjectConfig) {
		cfg.emitTimeout = d
	}
}

// Emit emits an event to the given topic, waiting for buffer space up to the
// subject's emit timeout.
func Emit[T any](subject *Subject, topic string, value T) error {
	if subject.isClosed() {
		return ErrClosed
	}
	evt := event{topic: topic, message: value}

	timer := time.NewTimer(subject.config.emitTimeout)
	defer timer.Stop()
	select {
	case subject.events <- evt:
		return nil
	case <-subject.shutdown:
		return ErrClosed
	case <-timer.C:
		return fmt.Errorf("emit %s: %w", topic, ErrFull)
	}
}

// TryEmit emits without waiting. Frames use it: a viewer that falls behind
// misses frames instead of stalling the frame loop.
func TryEmit[T any](subject *Subject, topic string, value T) error {
	if subject.isClosed() {
		return ErrClosed
	}
	select {
	case subject.events <- event{topic: topic, message: value}:
		return nil
	default:
		atomic.AddInt64(&subject.dropped, 1)
		return ErrFull
	}
}

// Subscribe subscribes a typed handler to the given topic.
// A Subscription is returned that can be used to unsubscribe from the topic.
func Subscribe[T any](subject *Subject, topic string, handler func(context.Context, T) error, replay ...bool) Subscription {
	wantsReplay := len(replay) > 0 && replay[0]

	wrappedHandler := HandlerFunc(func(ctx context.Context, data any) error {
		if typed, ok := data.(T); ok {
			return handler(ctx, typed)
		}
		return fmt.Errorf("type assertion failed for %T, expected %T", data, *new(T))
	})

	subID := atomic.AddInt64(&subject.nextSubID, 1)
	sub := Subscription{
		Topic:     topic,
		CreatedAt: time.Now().UnixNano(),
		Handler:   wrappedHandler,
		ID:        fmt.Sprintf("%s-%d", topic, subID),
	}

	// Add subscription using copy-on-write
	subject.addSubscription(sub)

	sub.Unsubscribe = func() {
		subject.removeSubscription(sub.ID)
	}

	if subject.config.replayDepth > 0 && wantsReplay {
		subject.replayEvents(sub)
	}

	return sub
}

// Complete shuts down the event system, stopping all goroutines and cleaning up resources.
// This function is idempotent and safe to call multiple times.
func Complete(s *Subject) {
	if s == nil {
		return
	}

	if atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		close(s.shutdown)

		// Wait for goroutines to finish (with timeout to prevent hanging)
		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			s.config.logger.Warn("event loop did not stop in time")
		}
	}
}

type event struct {
	topic   string
	message any
}

// Subscription represents a handler subscribed to a specific topic.
type Subscription struct {
	Topic       string
	CreatedAt   int64
	Handler     HandlerFunc
	ID          string
	Unsubscribe func()
}

type subscriberMap map[string]map[string]Subscription

type replayCache map[string][]any

type Subject struct {
	// Lock-free state using atomics
	subscribers atomic.Pointer[subscriberMap]
	cache       atomic.Pointer[replayCache]
	nextSubID   int64
	eventCount  int64
	dropped     int64

	// Single event channel
	events   chan event
	shutdown chan struct{}

	// Configuration (read-only after creation)
	config subjectConfig

	closed int32
	wg     sync.WaitGroup
}

// NewSubject creates a new Subject with optional configuration.
func NewSubject(opts ...SubjectOption) *Subject {
	cfg := subjectConfig{
		bufferSize:     512,
		emitTimeout:    5 * time.Second,
		handlerTimeout: 10 * time.Second,
	}

	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.Logger()
	}

	s := &Subject{
		events:   make(chan event, cfg.bufferSize),
		shutdown: make(chan struct{}),
		config:   cfg,
	}

	emptySubscribers := make(subscriberMap)
	s.subscribers.Store(&emptySubscribers)
	emptyCache := make(replayCache)
	s.cache.Store(&emptyCache)

	s.wg.Add(1)
	go s.eventLoop()
	return s
}

// Stats reports how many events were delivered and how many TryEmit dropped.
func (s *Subject) Stats() (delivered, dropped int64) {
	return atomic.LoadInt64(&s.eventCount), atomic.LoadInt64(&s.dropped)
}

// Subscribers returns the number of subscriptions on topic.
func (s *Subject) Subscribers(topic string) int {
	return len((*s.subscribers.Load())[topic])
}

// Forget drops the replay cache of a topic, used when its source goes away.
func (s *Subject) Forget(topic string) {
	for {
		old := s.cache.Load()
		if _, ok := (*old)[topic]; !ok {
			return
		}
		next := make(replayCache, len(*old))
		for k, v := range *old {
			if k != topic {
				next[k] = v
			}
		}
		if s.cache.CompareAndSwap(old, &next) {
			return
		}
	}
}

func (s *Subject) isClosed() bool {
	return atomic.LoadInt32(&s.closed) == 1
}

// eventLoop processes events and distributes them to subscribers
func (s *Subject) eventLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.shutdown:
			return
		case evt := <-s.events:
			atomic.AddInt64(&s.eventCount, 1)

			if s.config.replayDepth > 0 {
				s.addToCache(evt)
			}

			subs := s.subscribers.Load()
			if topicSubs, ok := (*subs)[evt.topic]; ok {
				for _, sub := range topicSubs {
					s.sendToSubscriber(sub, evt.topic, evt.message, s.config.syncDelivery)
				}
			}
		}
	}
}

// addSubscription adds a subscription using copy-on-write
func (s *Subject) addSubscription(sub Subscription) {
	for {
		oldSubs := s.subscribers.Load()
		newSubs := s.copySubscribers(*oldSubs)

		if _, ok := newSubs[sub.Topic]; !ok {
			newSubs[sub.Topic] = make(map[string]Subscription)
		}
		newSubs[sub.Topic][sub.ID] = sub

		if s.subscribers.CompareAndSwap(oldSubs, &newSubs) {
			break
		}
	}
}

// removeSubscription removes a subscription using copy-on-write
func (s *Subject) removeSubscription(subID string) {
	for {
		oldSubs := s.subscribers.Load()
		newSubs := s.copySubscribers(*oldSubs)

		found := false
		for topic, topicSubs := range newSubs {
			if _, ok := topicSubs[subID]; ok {
				delete(topicSubs, subID)
				if len(topicSubs) == 0 {
					delete(newSubs, topic)
				}
				found = true
				break
			}
		}

		if !found {
			break
		}

		if s.subscribers.CompareAndSwap(oldSubs, &newSubs) {
			break
		}
	}
}

// copySubscribers creates a deep copy of the subscribers map
func (s *Subject) copySubscribers(original subscriberMap) subscriberMap {
	cp := make(subscriberMap, len(original))
	for topic, topicSubs := range original {
		cp[topic] = make(map[string]Subscription, len(topicSubs))
		for id, sub := range topicSubs {
			cp[topic][id] = sub
		}
	}
	return cp
}

// addToCache appends to the topic's replay window using copy-on-write
func (s *Subject) addToCache(evt event) {
	for {
		old := s.cache.Load()
		next := make(replayCache, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}

		window := append([]any(nil), next[evt.topic]...)
		if len(window) == s.config.replayDepth {
			window = window[1:]
		}
		next[evt.topic] = append(window, evt.message)

		if s.cache.CompareAndSwap(old, &next) {
			break
		}
	}
}

// replayEvents sends the cached window of the subscriber's topic, oldest first
func (s *Subject) replayEvents(sub Subscription) {
	cache := s.cache.Load()
	for _, msg := range (*cache)[sub.Topic] {
		s.sendToSubscriber(sub, sub.Topic, msg, true)
	}
}

// sendToSubscriber delivers an event to a subscriber.
// If sync is true, delivery is synchronous (blocking). If false, delivery is asynchronous.
func (s *Subject) sendToSubscriber(sub Subscription, topic string, msg any, sync bool) {
	deliverEvent := func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.handlerTimeout)
		defer cancel()

		if err := sub.Handler(ctx, msg); err != nil {
			s.config.logger.Debug("event handler error",
				"topic", topic,
				"error", err,
				"subscription_id", sub.ID,
				"delivery_mode", map[bool]string{true: "sync", false: "async"}[sync])
		}
	}

	if sync {
		deliverEvent()
	} else {
		go deliverEvent()
	}
}
