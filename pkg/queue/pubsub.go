package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

const (
	defaultSubscriptionSuffix = "-sub"
	pubsubPublishTimeout      = 10 * time.Second
	pubsubExistsTimeout       = 5 * time.Second
)

// PubSubStrategy publishes to Google Cloud Pub/Sub topics and consumes from
// the subscription named <topic><suffix>. Topics and subscriptions are
// expected to exist already; a missing resource surfaces as a false return,
// consistent with the layer's fail-open contract. Each subscribed topic runs
// its own Receive goroutine.
type PubSubStrategy struct {
	cfg    PubSubConfig
	logger zerolog.Logger

	mu        sync.Mutex
	client    *pubsub.Client
	topics    map[string]*pubsub.Topic
	callbacks map[string]MessageCallback
	cancels   map[string]context.CancelFunc
	status    string

	wg sync.WaitGroup
}

func NewPubSubStrategy(cfg PubSubConfig, logger zerolog.Logger) *PubSubStrategy {
	return &PubSubStrategy{
		cfg:       cfg,
		logger:    logger.With().Str("component", "PubSubStrategy").Str("project_id", cfg.ProjectID).Logger(),
		topics:    make(map[string]*pubsub.Topic),
		callbacks: make(map[string]MessageCallback),
		cancels:   make(map[string]context.CancelFunc),
		status:    StatusInitialized,
	}
}

func (s *PubSubStrategy) subscriptionID(topic string) string {
	suffix := s.cfg.SubscriptionSuffix
	if suffix == "" {
		suffix = defaultSubscriptionSuffix
	}
	return topic + suffix
}

func (s *PubSubStrategy) Connect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return true
	}

	client, err := pubsub.NewClient(context.Background(), s.cfg.ProjectID, s.cfg.ClientOptions...)
	if err != nil {
		s.status = statusError(err)
		s.logger.Error().Err(err).Msg("Failed to create Pub/Sub client")
		return false
	}

	s.client = client
	s.status = StatusConnected
	s.logger.Info().Msg("Connected to Google Pub/Sub")
	return true
}

// topicHandle returns a cached publish handle for the topic, verifying
// existence on first use.
func (s *PubSubStrategy) topicHandle(topic string) *pubsub.Topic {
	s.mu.Lock()
	if t, ok := s.topics[topic]; ok {
		s.mu.Unlock()
		return t
	}
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return nil
	}

	t := client.Topic(topic)
	ctx, cancel := context.WithTimeout(context.Background(), pubsubExistsTimeout)
	defer cancel()
	exists, err := t.Exists(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to check Pub/Sub topic existence")
		return nil
	}
	if !exists {
		s.logger.Error().Str("topic", topic).Msg("Pub/Sub topic does not exist")
		return nil
	}

	s.mu.Lock()
	s.topics[topic] = t
	s.mu.Unlock()
	return t
}

func (s *PubSubStrategy) Publish(topic string, data map[string]any) bool {
	if !s.IsConnected() && !s.Connect() {
		return false
	}

	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to serialize message")
		return false
	}

	t := s.topicHandle(topic)
	if t == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), pubsubPublishTimeout)
	defer cancel()
	res := t.Publish(ctx, &pubsub.Message{Data: payload})
	if _, err := res.Get(ctx); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish to Pub/Sub")
		return false
	}
	s.logger.Debug().Str("topic", topic).Msg("Published message to Pub/Sub")
	return true
}

func (s *PubSubStrategy) Subscribe(topic string, cb MessageCallback) bool {
	if cb == nil {
		return false
	}
	if !s.IsConnected() && !s.Connect() {
		return false
	}

	s.mu.Lock()
	if _, exists := s.cancels[topic]; exists {
		// Already receiving for this topic; just swap the callback.
		s.callbacks[topic] = cb
		s.mu.Unlock()
		return true
	}
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return false
	}

	sub := client.Subscription(s.subscriptionID(topic))
	existsCtx, existsCancel := context.WithTimeout(context.Background(), pubsubExistsTimeout)
	exists, err := sub.Exists(existsCtx)
	existsCancel()
	if err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to check Pub/Sub subscription existence")
		return false
	}
	if !exists {
		s.logger.Error().Str("topic", topic).Str("subscription", s.subscriptionID(topic)).Msg("Pub/Sub subscription does not exist")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.callbacks[topic] = cb
	s.cancels[topic] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := sub.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			// An unparseable payload is acked: redelivery cannot fix it.
			msg.Ack()

			s.mu.Lock()
			cb := s.callbacks[topic]
			s.mu.Unlock()
			if cb == nil {
				return
			}

			var payload map[string]any
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				s.logger.Error().Err(err).Str("topic", topic).Msg("Dropping undecodable message")
				return
			}
			dispatch(s.logger, cb, topic, payload)
		})
		if err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Str("topic", topic).Msg("Pub/Sub receive loop ended with error")
		}
	}()

	s.logger.Info().Str("topic", topic).Str("subscription", s.subscriptionID(topic)).Msg("Subscribed to Pub/Sub")
	return true
}

func (s *PubSubStrategy) Unsubscribe(topic string) bool {
	s.mu.Lock()
	cancel := s.cancels[topic]
	delete(s.cancels, topic)
	delete(s.callbacks, topic)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.logger.Info().Str("topic", topic).Msg("Unsubscribed from Pub/Sub")
	return true
}

func (s *PubSubStrategy) Close() {
	s.mu.Lock()
	for topic, cancel := range s.cancels {
		cancel()
		delete(s.cancels, topic)
	}
	s.callbacks = make(map[string]MessageCallback)
	topics := s.topics
	s.topics = make(map[string]*pubsub.Topic)
	client := s.client
	s.client = nil
	s.status = StatusDisconnected
	s.mu.Unlock()

	// Wait for receive goroutines outside the lock; their handlers take it.
	s.wg.Wait()

	for _, t := range topics {
		t.Stop()
	}
	if client != nil {
		_ = client.Close()
		s.logger.Info().Msg("Pub/Sub connection closed")
	}
}

func (s *PubSubStrategy) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && s.status == StatusConnected
}

func (s *PubSubStrategy) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
