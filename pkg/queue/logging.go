package queue

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// LoggingStrategy is the always-available fallback backend. Operations are
// recorded to the log and report success; no network I/O occurs and no
// messages are ever delivered. The factory substitutes it whenever a real
// backend is misconfigured or unavailable.
type LoggingStrategy struct {
	logger zerolog.Logger
}

func NewLoggingStrategy(logger zerolog.Logger) *LoggingStrategy {
	return &LoggingStrategy{
		logger: logger.With().Str("component", "LoggingStrategy").Logger(),
	}
}

func (s *LoggingStrategy) Connect() bool {
	return true
}

func (s *LoggingStrategy) Publish(topic string, data map[string]any) bool {
	payload, err := json.Marshal(data)
	if err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("Failed to serialize message")
		return false
	}
	s.logger.Info().Str("topic", topic).RawJSON("message", payload).Msg("Would publish message")
	return true
}

func (s *LoggingStrategy) Subscribe(topic string, cb MessageCallback) bool {
	if cb == nil {
		return false
	}
	s.logger.Info().Str("topic", topic).Msg("Would subscribe to topic; no messages will be delivered")
	return true
}

func (s *LoggingStrategy) Unsubscribe(topic string) bool {
	s.logger.Info().Str("topic", topic).Msg("Would unsubscribe from topic")
	return true
}

func (s *LoggingStrategy) Close() {
	s.logger.Debug().Msg("Logging strategy closed; nothing to release")
}

func (s *LoggingStrategy) IsConnected() bool {
	return true
}

func (s *LoggingStrategy) Status() string {
	return StatusConnected
}
