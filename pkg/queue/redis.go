package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const (
	// historyKeyPrefix names the per-topic recency list, e.g. "history:results".
	historyKeyPrefix = "history:"
	// historyLimit caps each recency list; push-then-trim keeps the newest
	// entries at the head.
	historyLimit = 100

	redisPingTimeout = 2 * time.Second
)

// RedisStrategy publishes over Redis pub/sub channels and mirrors every
// published message into a bounded per-topic history list for replay/audit.
// Delivery for subscriptions runs on a single background goroutine draining
// the go-redis PubSub channel.
type RedisStrategy struct {
	cfg    RedisConfig
	logger zerolog.Logger

	mu        sync.Mutex
	client    *redis.Client
	pubsub    *redis.PubSub
	callbacks map[string]MessageCallback
	status    string
}

func NewRedisStrategy(cfg RedisConfig, logger zerolog.Logger) *RedisStrategy {
	return &RedisStrategy{
		cfg:       cfg,
		logger:    logger.With().Str("component", "RedisStrategy").Logger(),
		callbacks: make(map[string]MessageCallback),
		status:    StatusInitialized,
	}
}

func (s *RedisStrategy) Connect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return true
	}

	opts, err := redis.ParseURL(s.cfg.URL)
	if err != nil {
		s.status = statusError(err)
		s.logger.Error().Err(err).Str("redis_url", s.cfg.URL).Msg("Invalid Redis URL")
		return false
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		s.status = statusError(err)
		s.logger.Error().Err(err).Str("redis_url", s.cfg.URL).Msg("Redis connection error")
		_ = client.Close()
		return false
	}

	s.client = client
	s.status = StatusConnected
	s.logger.Info().Str("redis_url", s.cfg.URL).Msg("Connected to Redis")
	return true
}

func (s *RedisStrategy) Publish(topic string, data map[string]any) bool {
	if !s.IsConnected() && !s.Connect() {
		return false
	}

	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to serialize message")
		return false
	}

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return false
	}

	ctx := context.Background()
	if err := client.Publish(ctx, topic, payload).Err(); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish to Redis")
		return false
	}

	// Mirror into the recency list, newest first.
	key := historyKeyPrefix + topic
	if err := client.LPush(ctx, key, payload).Err(); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to store message in history list")
		return false
	}
	if err := client.LTrim(ctx, key, 0, historyLimit-1).Err(); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to trim history list")
		return false
	}

	s.logger.Debug().Str("topic", topic).Msg("Published message to Redis")
	return true
}

func (s *RedisStrategy) Subscribe(topic string, cb MessageCallback) bool {
	if cb == nil {
		return false
	}
	if !s.IsConnected() && !s.Connect() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return false
	}

	ctx := context.Background()
	if s.pubsub == nil {
		s.pubsub = s.client.Subscribe(ctx, topic)
		go s.deliver(s.pubsub)
	} else if err := s.pubsub.Subscribe(ctx, topic); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to subscribe to Redis channel")
		return false
	}

	s.callbacks[topic] = cb
	s.logger.Info().Str("topic", topic).Msg("Subscribed to Redis channel")
	return true
}

// deliver drains the PubSub channel until it is closed, dispatching each
// decoded message to the callback registered for its channel. Decode and
// callback failures drop the single message; delivery continues.
func (s *RedisStrategy) deliver(ps *redis.PubSub) {
	for msg := range ps.Channel() {
		s.mu.Lock()
		cb := s.callbacks[msg.Channel]
		s.mu.Unlock()
		if cb == nil {
			continue
		}

		var payload map[string]any
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			s.logger.Error().Err(err).Str("topic", msg.Channel).Msg("Dropping undecodable message")
			continue
		}
		dispatch(s.logger, cb, msg.Channel, payload)
	}
	s.logger.Debug().Msg("Redis delivery loop exited")
}

func (s *RedisStrategy) Unsubscribe(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pubsub != nil {
		if err := s.pubsub.Unsubscribe(context.Background(), topic); err != nil {
			s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to unsubscribe from Redis channel")
			return false
		}
	}
	delete(s.callbacks, topic)
	s.logger.Info().Str("topic", topic).Msg("Unsubscribed from Redis channel")
	return true
}

func (s *RedisStrategy) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Closing the PubSub closes its Channel, which ends the delivery goroutine.
	if s.pubsub != nil {
		_ = s.pubsub.Close()
		s.pubsub = nil
	}
	if s.client != nil {
		_ = s.client.Close()
		s.client = nil
	}
	s.callbacks = make(map[string]MessageCallback)
	s.status = StatusDisconnected
	s.logger.Info().Msg("Redis connection closed")
}

// IsConnected verifies liveness with a fresh round-trip ping. The added
// latency keeps the manager's lazy-reconnect check honest: a cached flag
// would report connected exactly when reconnection is needed.
func (s *RedisStrategy) IsConnected() bool {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	return client.Ping(ctx).Err() == nil
}

func (s *RedisStrategy) Status() string {
	if s.IsConnected() {
		return StatusConnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// History returns up to limit messages from the topic's recency list, newest
// first. Entries that fail to decode are skipped with a log record.
func (s *RedisStrategy) History(ctx context.Context, topic string, limit int64) ([]map[string]any, bool) {
	if !s.IsConnected() && !s.Connect() {
		return nil, false
	}

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return nil, false
	}

	raw, err := client.LRange(ctx, historyKeyPrefix+topic, 0, limit-1).Result()
	if err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to read history list")
		return nil, false
	}

	messages := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		var payload map[string]any
		if err := json.Unmarshal([]byte(entry), &payload); err != nil {
			s.logger.Warn().Err(err).Str("topic", topic).Msg("Skipping undecodable history entry")
			continue
		}
		messages = append(messages, payload)
	}
	return messages, true
}
