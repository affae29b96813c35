package queue

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewStrategy(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("Known Types", func(t *testing.T) {
		assert.IsType(t, &RedisStrategy{}, NewStrategy(Config{Type: "redis"}, logger))
		assert.IsType(t, &MQTTStrategy{}, NewStrategy(Config{Type: "mqtt"}, logger))
		assert.IsType(t, &PubSubStrategy{}, NewStrategy(Config{Type: "pubsub"}, logger))
		assert.IsType(t, &LoggingStrategy{}, NewStrategy(Config{Type: "logging"}, logger))
	})

	t.Run("Case Insensitive", func(t *testing.T) {
		assert.IsType(t, &RedisStrategy{}, NewStrategy(Config{Type: "Redis"}, logger))
		assert.IsType(t, &MQTTStrategy{}, NewStrategy(Config{Type: "MQTT"}, logger))
	})

	t.Run("Unknown Types Fall Back To Logging", func(t *testing.T) {
		for _, tag := range []string{"kafka", "rabbitmq", "", "  ", "redis "} {
			var s Strategy
			assert.NotPanics(t, func() {
				s = NewStrategy(Config{Type: tag}, logger)
			})
			assert.IsType(t, &LoggingStrategy{}, s, "tag %q should degrade to the logging strategy", tag)
		}
	})
}
