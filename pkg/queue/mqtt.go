package queue

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	mqttClientIDPrefix    = "audio-detect"
	defaultConnectTimeout = 5 * time.Second
	mqttConnectPoll       = 100 * time.Millisecond
	mqttTokenTimeout      = 2 * time.Second
)

// MQTTStrategy publishes and subscribes through an MQTT broker using the
// Paho client. Delivery happens on Paho's network loop goroutine. The
// strategy tracks its subscribed topics so the on-connect handler can replay
// them after a reconnect - broker sessions do not necessarily remember prior
// subscriptions.
type MQTTStrategy struct {
	cfg      MQTTConfig
	clientID string
	logger   zerolog.Logger

	mu        sync.Mutex
	client    mqtt.Client
	callbacks map[string]MessageCallback
	topics    map[string]struct{}
	status    string
}

func NewMQTTStrategy(cfg MQTTConfig, logger zerolog.Logger) *MQTTStrategy {
	clientID := cfg.ClientID
	if clientID == "" {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		clientID = fmt.Sprintf("%s-%s", mqttClientIDPrefix, suffix)
	}
	return &MQTTStrategy{
		cfg:       cfg,
		clientID:  clientID,
		logger:    logger.With().Str("component", "MQTTStrategy").Str("client_id", clientID).Logger(),
		callbacks: make(map[string]MessageCallback),
		topics:    make(map[string]struct{}),
		status:    StatusInitialized,
	}
}

func (s *MQTTStrategy) brokerAddr() string {
	port := s.cfg.Port
	if port == 0 {
		port = 1883
	}
	return fmt.Sprintf("tcp://%s:%d", s.cfg.BrokerHost, port)
}

func (s *MQTTStrategy) connectTimeout() time.Duration {
	if s.cfg.ConnectTimeout > 0 {
		return s.cfg.ConnectTimeout
	}
	return defaultConnectTimeout
}

func (s *MQTTStrategy) Connect() bool {
	s.mu.Lock()
	if s.client != nil && s.client.IsConnected() && s.status == StatusConnected {
		s.mu.Unlock()
		return true
	}

	opts := mqtt.NewClientOptions().
		AddBroker(s.brokerAddr()).
		SetClientID(s.clientID).
		SetAutoReconnect(true).
		SetOnConnectHandler(s.onConnect).
		SetConnectionLostHandler(s.onConnectionLost)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
		opts.SetPassword(s.cfg.Password)
	}

	client := mqtt.NewClient(opts)
	s.client = client
	s.mu.Unlock()

	token := client.Connect()

	// Block until the on-connect handler reports success or the configured
	// timeout elapses. The token alone is not enough: it completes when the
	// network session opens, before the broker acknowledgement is handled.
	deadline := time.Now().Add(s.connectTimeout())
	for time.Now().Before(deadline) {
		if token.WaitTimeout(mqttConnectPoll) {
			if err := token.Error(); err != nil {
				s.setStatus(statusError(err))
				s.logger.Error().Err(err).Str("broker", s.brokerAddr()).Msg("MQTT connection error")
				return false
			}
			if s.currentStatus() == StatusConnected {
				return true
			}
			time.Sleep(mqttConnectPoll)
			continue
		}
		if s.currentStatus() == StatusConnected {
			return true
		}
	}

	s.Close()
	s.setStatus("error: connection timeout")
	s.logger.Error().Str("broker", s.brokerAddr()).Msg("MQTT connection timeout")
	return false
}

// onConnect runs on every successful connect, including Paho's automatic
// reconnects, and replays the tracked subscription set.
func (s *MQTTStrategy) onConnect(client mqtt.Client) {
	s.mu.Lock()
	s.status = StatusConnected
	topics := make([]string, 0, len(s.topics))
	for topic := range s.topics {
		topics = append(topics, topic)
	}
	s.mu.Unlock()

	s.logger.Info().Str("broker", s.brokerAddr()).Msg("Connected to MQTT broker")

	for _, topic := range topics {
		if token := client.Subscribe(topic, s.qos(), s.handleMessage); !token.WaitTimeout(mqttTokenTimeout) || token.Error() != nil {
			s.logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to resubscribe after reconnect")
		} else {
			s.logger.Info().Str("topic", topic).Msg("Resubscribed to MQTT topic")
		}
	}
}

func (s *MQTTStrategy) onConnectionLost(_ mqtt.Client, err error) {
	s.setStatus(statusError(err))
	s.logger.Error().Err(err).Msg("Lost MQTT connection; auto-reconnect will be attempted")
}

// handleMessage is the single Paho message handler; it routes by exact topic
// to the registered callback. Decode failures drop the message and delivery
// continues.
func (s *MQTTStrategy) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	s.mu.Lock()
	cb := s.callbacks[msg.Topic()]
	s.mu.Unlock()
	if cb == nil {
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		s.logger.Error().Err(err).Str("topic", msg.Topic()).Msg("Dropping undecodable message")
		return
	}
	dispatch(s.logger, cb, msg.Topic(), payload)
}

func (s *MQTTStrategy) qos() byte {
	if s.cfg.QOS < 0 || s.cfg.QOS > 2 {
		return 0
	}
	return byte(s.cfg.QOS)
}

func (s *MQTTStrategy) Publish(topic string, data map[string]any) bool {
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

	token := client.Publish(topic, s.qos(), s.cfg.Retain, payload)
	if !token.WaitTimeout(mqttTokenTimeout) {
		s.logger.Error().Str("topic", topic).Msg("Timed out waiting for MQTT publish acknowledgement")
		return false
	}
	if err := token.Error(); err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to publish to MQTT")
		return false
	}
	s.logger.Debug().Str("topic", topic).Msg("Published message to MQTT")
	return true
}

func (s *MQTTStrategy) Subscribe(topic string, cb MessageCallback) bool {
	if cb == nil {
		return false
	}
	if !s.IsConnected() && !s.Connect() {
		return false
	}

	s.mu.Lock()
	s.callbacks[topic] = cb
	s.topics[topic] = struct{}{}
	client := s.client
	s.mu.Unlock()

	token := client.Subscribe(topic, s.qos(), s.handleMessage)
	if !token.WaitTimeout(mqttTokenTimeout) || token.Error() != nil {
		s.logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to subscribe to MQTT topic")
		s.mu.Lock()
		delete(s.callbacks, topic)
		delete(s.topics, topic)
		s.mu.Unlock()
		return false
	}
	s.logger.Info().Str("topic", topic).Msg("Subscribed to MQTT topic")
	return true
}

func (s *MQTTStrategy) Unsubscribe(topic string) bool {
	s.mu.Lock()
	delete(s.callbacks, topic)
	delete(s.topics, topic)
	client := s.client
	s.mu.Unlock()

	if client != nil && client.IsConnected() {
		if token := client.Unsubscribe(topic); !token.WaitTimeout(mqttTokenTimeout) || token.Error() != nil {
			s.logger.Error().Err(token.Error()).Str("topic", topic).Msg("Failed to unsubscribe from MQTT topic")
			return false
		}
	}
	s.logger.Info().Str("topic", topic).Msg("Unsubscribed from MQTT topic")
	return true
}

func (s *MQTTStrategy) Close() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	topics := make([]string, 0, len(s.topics))
	for topic := range s.topics {
		topics = append(topics, topic)
	}
	s.callbacks = make(map[string]MessageCallback)
	s.topics = make(map[string]struct{})
	s.status = StatusDisconnected
	s.mu.Unlock()

	if client == nil {
		return
	}
	if client.IsConnected() {
		for _, topic := range topics {
			if token := client.Unsubscribe(topic); !token.WaitTimeout(mqttTokenTimeout) || token.Error() != nil {
				s.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("Failed to unsubscribe during shutdown")
			}
		}
	}
	client.Disconnect(250)
	s.logger.Info().Msg("MQTT connection closed")
}

func (s *MQTTStrategy) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && s.client.IsConnected() && s.status == StatusConnected
}

func (s *MQTTStrategy) Status() string {
	return s.currentStatus()
}

func (s *MQTTStrategy) currentStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *MQTTStrategy) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}
