package queue

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// timestampLayout is the wire format for injected timestamps.
const timestampLayout = "2006-01-02 15:04:05"

// registeredCallback pairs a callback with its identity, taken from the
// function's code pointer. That is what deduplication keys on: registering
// the same callback value twice for a topic is a no-op.
type registeredCallback struct {
	id uintptr
	cb MessageCallback
}

func callbackID(cb MessageCallback) uintptr {
	return reflect.ValueOf(cb).Pointer()
}

// Manager owns at most one live Strategy and layers a topic->callbacks
// registry on top of the backend's own subscription state. Connection is
// lazy: Publish and Subscribe re-run the factory when the strategy reports
// disconnected, and fall back to the logging strategy when that fails, so
// calls always complete. There is no background reconnection; recovery is
// demand-driven.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	// factory is swappable for tests.
	factory func(Config, zerolog.Logger) Strategy

	mu          sync.Mutex
	strategy    Strategy
	subscribers map[string][]registeredCallback
}

// NewManager builds a Manager from cfg, loading environment defaults when
// cfg is nil, and eagerly initializes the backend.
func NewManager(cfg *Config, logger zerolog.Logger) *Manager {
	if cfg == nil {
		c := LoadConfigFromEnv()
		cfg = &c
	}
	m := &Manager{
		cfg:         *cfg,
		logger:      logger.With().Str("component", "QueueManager").Logger(),
		factory:     NewStrategy,
		subscribers: make(map[string][]registeredCallback),
	}
	m.Initialize()
	return m
}

// Initialize (re)builds the strategy from configuration and connects it.
// Returns false when the queue is disabled or the connect failed; in the
// latter case the strategy stays in place with its error status and the next
// Publish/Subscribe retries.
func (m *Manager) Initialize() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initializeLocked()
}

func (m *Manager) initializeLocked() bool {
	if !m.cfg.Enabled {
		m.logger.Info().Msg("Queue functionality is disabled by configuration")
		return false
	}
	m.strategy = m.factory(m.cfg, m.logger)
	return m.strategy.Connect()
}

// ensureStrategy returns a connected strategy, reinitializing on demand and
// degrading to the logging strategy when reconnection fails. A replacement
// strategy starts with an empty subscription set, so every tracked topic is
// replayed onto it before it is handed back.
func (m *Manager) ensureStrategy() Strategy {
	m.mu.Lock()
	if m.strategy != nil && m.strategy.IsConnected() {
		strategy := m.strategy
		m.mu.Unlock()
		return strategy
	}
	if !m.initializeLocked() {
		m.logger.Warn().Msg("Queue initialization failed, falling back to logging strategy")
		m.strategy = NewLoggingStrategy(m.logger)
	}
	strategy := m.strategy
	topics := make([]string, 0, len(m.subscribers))
	for topic := range m.subscribers {
		topics = append(topics, topic)
	}
	m.mu.Unlock()

	for _, topic := range topics {
		if !strategy.Subscribe(topic, m.fanOut(topic)) {
			m.logger.Error().Str("topic", topic).Msg("Failed to restore subscription on replacement strategy")
		} else {
			m.logger.Info().Str("topic", topic).Msg("Restored subscription on replacement strategy")
		}
	}
	return strategy
}

// Publish sends data on topic, injecting a timestamp if the payload lacks
// one. The caller's map is never mutated. Returns false when the queue is
// disabled by configuration.
func (m *Manager) Publish(topic string, data map[string]any) bool {
	if !m.cfg.Enabled {
		m.logger.Debug().Str("topic", topic).Msg("Queue disabled, not publishing")
		return false
	}
	return m.ensureStrategy().Publish(topic, withTimestamp(data))
}

// withTimestamp returns data with a "timestamp" key, copying the map when
// injection is needed so the caller's payload stays untouched.
func withTimestamp(data map[string]any) map[string]any {
	if _, ok := data["timestamp"]; ok {
		return data
	}
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["timestamp"] = time.Now().Format(timestampLayout)
	return out
}

// Subscribe registers cb for topic. The backend sees one subscription per
// topic regardless of how many callbacks are registered; delivery fans out
// to every callback in registration order. Duplicate registration of the
// same callback identity is a no-op.
func (m *Manager) Subscribe(topic string, cb MessageCallback) bool {
	if !m.cfg.Enabled {
		m.logger.Debug().Str("topic", topic).Msg("Queue disabled, not subscribing")
		return false
	}
	if cb == nil {
		return false
	}

	strategy := m.ensureStrategy()

	m.mu.Lock()
	id := callbackID(cb)
	list := m.subscribers[topic]
	for _, rc := range list {
		if rc.id == id {
			m.mu.Unlock()
			return true
		}
	}
	first := len(list) == 0
	m.subscribers[topic] = append(list, registeredCallback{id: id, cb: cb})
	m.mu.Unlock()

	if !first {
		return true
	}

	ok := strategy.Subscribe(topic, m.fanOut(topic))
	if !ok {
		m.mu.Lock()
		delete(m.subscribers, topic)
		m.mu.Unlock()
	}
	return ok
}

// fanOut builds the single backend callback for a topic, dispatching to a
// snapshot of the registered callbacks.
func (m *Manager) fanOut(topic string) MessageCallback {
	return func(msgTopic string, message map[string]any) {
		m.mu.Lock()
		list := append([]registeredCallback(nil), m.subscribers[topic]...)
		m.mu.Unlock()
		for _, rc := range list {
			rc.cb(msgTopic, message)
		}
	}
}

// Unsubscribe removes cb from topic's registry; a nil cb removes every
// callback. The backend unsubscribe is only issued once the topic's callback
// list is empty.
func (m *Manager) Unsubscribe(topic string, cb MessageCallback) bool {
	m.mu.Lock()
	strategy := m.strategy
	if strategy == nil {
		m.mu.Unlock()
		return false
	}

	if cb != nil {
		if list, tracked := m.subscribers[topic]; tracked {
			id := callbackID(cb)
			remaining := list[:0]
			for _, rc := range list {
				if rc.id != id {
					remaining = append(remaining, rc)
				}
			}
			if len(remaining) > 0 {
				m.subscribers[topic] = remaining
				m.mu.Unlock()
				return true
			}
		}
	}
	// The registry entry goes regardless of the backend call's outcome, so a
	// later reconnect does not replay a topic nobody listens for.
	delete(m.subscribers, topic)
	m.mu.Unlock()

	if !strategy.IsConnected() {
		return false
	}
	return strategy.Unsubscribe(topic)
}

// History returns the bounded recency list kept by the Redis backend, newest
// first. Other backends keep no history and report false.
func (m *Manager) History(ctx context.Context, topic string, limit int64) ([]map[string]any, bool) {
	m.mu.Lock()
	strategy := m.strategy
	m.mu.Unlock()

	rs, ok := strategy.(*RedisStrategy)
	if !ok {
		m.logger.Debug().Str("topic", topic).Msg("History is only available on the Redis backend")
		return nil, false
	}
	return rs.History(ctx, topic, limit)
}

// Close unsubscribes every tracked topic, then closes and clears the
// strategy.
func (m *Manager) Close() {
	m.mu.Lock()
	topics := make([]string, 0, len(m.subscribers))
	for topic := range m.subscribers {
		topics = append(topics, topic)
	}
	m.mu.Unlock()

	for _, topic := range topics {
		m.Unsubscribe(topic, nil)
	}

	m.mu.Lock()
	strategy := m.strategy
	m.strategy = nil
	m.mu.Unlock()

	// Closed outside the lock: backend shutdown can wait on delivery
	// goroutines whose fan-out callbacks take it.
	if strategy != nil {
		strategy.Close()
	}
}

func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	strategy := m.strategy
	m.mu.Unlock()
	return strategy != nil && strategy.IsConnected()
}

// Status reports "disabled", "not initialized", or the strategy's own
// status.
func (m *Manager) Status() string {
	if !m.cfg.Enabled {
		return "disabled"
	}
	m.mu.Lock()
	strategy := m.strategy
	m.mu.Unlock()
	if strategy == nil {
		return "not initialized"
	}
	return strategy.Status()
}
