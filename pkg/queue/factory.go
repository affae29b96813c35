package queue

import (
	"strings"

	"github.com/rs/zerolog"
)

// NewStrategy maps the configured backend type to a concrete Strategy. It
// never fails: an unrecognized type logs a warning and yields the logging
// strategy, so the messaging layer is never the reason the rest of the
// system crashes.
func NewStrategy(cfg Config, logger zerolog.Logger) Strategy {
	switch strings.ToLower(cfg.Type) {
	case TypeRedis:
		return NewRedisStrategy(cfg.Redis, logger)
	case TypeMQTT:
		return NewMQTTStrategy(cfg.MQTT, logger)
	case TypePubSub:
		return NewPubSubStrategy(cfg.PubSub, logger)
	case TypeLogging:
		return NewLoggingStrategy(logger)
	default:
		logger.Warn().Str("queue_type", cfg.Type).Msg("Unsupported queue type, falling back to logging strategy")
		return NewLoggingStrategy(logger)
	}
}
