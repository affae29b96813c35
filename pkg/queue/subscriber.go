package queue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// runPollInterval is how often the run loop re-checks for shutdown.
const runPollInterval = 100 * time.Millisecond

// Subscriber is a process-level convenience wrapper around a Manager: it
// supplies a default logging callback, tracks its own subscriptions for
// introspection and idempotent shutdown, and offers a blocking run loop that
// exits on context cancellation. Signal handling is the entry point's job;
// wire a signal.NotifyContext into Run.
type Subscriber struct {
	manager *Manager
	logger  zerolog.Logger

	mu        sync.Mutex
	topics    map[string]struct{}
	callbacks map[string][]registeredCallback

	stop      chan struct{}
	closeOnce sync.Once
}

// NewSubscriber builds a Subscriber and its Manager. A nil cfg loads
// environment defaults.
func NewSubscriber(cfg *Config, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		manager:   NewManager(cfg, logger),
		logger:    logger.With().Str("component", "QueueSubscriber").Logger(),
		topics:    make(map[string]struct{}),
		callbacks: make(map[string][]registeredCallback),
		stop:      make(chan struct{}),
	}
}

// Manager exposes the underlying Manager for operations the facade does not
// wrap, such as history reads.
func (s *Subscriber) Manager() *Manager {
	return s.manager
}

// Subscribe registers cb for topic, falling back to the default logging
// callback when cb is nil.
func (s *Subscriber) Subscribe(topic string, cb MessageCallback) bool {
	if cb == nil {
		cb = s.DefaultCallback
	}

	ok := s.manager.Subscribe(topic, cb)
	if !ok {
		s.logger.Error().Str("topic", topic).Msg("Failed to subscribe to topic")
		return false
	}

	s.mu.Lock()
	s.topics[topic] = struct{}{}
	id := callbackID(cb)
	list := s.callbacks[topic]
	known := false
	for _, rc := range list {
		if rc.id == id {
			known = true
			break
		}
	}
	if !known {
		s.callbacks[topic] = append(list, registeredCallback{id: id, cb: cb})
	}
	s.mu.Unlock()

	s.logger.Info().Str("topic", topic).Msg("Subscribed to topic")
	return true
}

// Unsubscribe removes cb (or, when nil, every callback) for topic, keeping
// the local record in step with the manager's registry.
func (s *Subscriber) Unsubscribe(topic string, cb MessageCallback) bool {
	ok := s.manager.Unsubscribe(topic, cb)
	if !ok {
		s.logger.Error().Str("topic", topic).Msg("Failed to unsubscribe from topic")
		return false
	}

	s.mu.Lock()
	if cb == nil {
		delete(s.callbacks, topic)
		delete(s.topics, topic)
	} else {
		id := callbackID(cb)
		list := s.callbacks[topic]
		remaining := list[:0]
		for _, rc := range list {
			if rc.id != id {
				remaining = append(remaining, rc)
			}
		}
		if len(remaining) == 0 {
			delete(s.callbacks, topic)
			delete(s.topics, topic)
		} else {
			s.callbacks[topic] = remaining
		}
	}
	s.mu.Unlock()

	s.logger.Info().Str("topic", topic).Msg("Unsubscribed from topic")
	return true
}

// DefaultCallback logs the topic and message of every delivery.
func (s *Subscriber) DefaultCallback(topic string, message map[string]any) {
	payload, err := json.Marshal(message)
	if err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Received message that cannot be re-serialized")
		return
	}
	s.logger.Info().Str("topic", topic).RawJSON("message", payload).Msg("Message received")
}

// Topics returns the currently subscribed topics, sorted.
func (s *Subscriber) Topics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	topics := make([]string, 0, len(s.topics))
	for topic := range s.topics {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Close unsubscribes everything and closes the manager. Safe to call more
// than once; later calls are no-ops.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)

		s.mu.Lock()
		topics := make([]string, 0, len(s.topics))
		for topic := range s.topics {
			topics = append(topics, topic)
		}
		s.mu.Unlock()

		for _, topic := range topics {
			s.Unsubscribe(topic, nil)
		}
		s.manager.Close()
		s.logger.Info().Msg("Subscriber closed")
	})
}

// Run blocks until ctx is cancelled or Close is called, then shuts the
// subscriber down. Message delivery happens on backend goroutines; the loop
// only keeps the process alive.
func (s *Subscriber) Run(ctx context.Context) {
	s.logger.Info().Msg("Subscriber running")
	ticker := time.NewTicker(runPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Shutdown requested, closing subscriber")
			s.Close()
			return
		case <-s.stop:
			return
		case <-ticker.C:
		}
	}
}
