package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		// Neutralize any values leaking in from the test environment.
		for _, key := range []string{"QUEUE_TYPE", "QUEUE_ENABLED", "REDIS_URL", "MQTT_BROKER_URL", "MQTT_PORT", "MQTT_QOS", "MQTT_RETAIN", "PUBSUB_SUBSCRIPTION_SUFFIX"} {
			t.Setenv(key, "")
		}

		cfg := LoadConfigFromEnv()

		assert.Equal(t, TypeRedis, cfg.Type)
		assert.True(t, cfg.Enabled)
		assert.Equal(t, "redis://redis:6379/0", cfg.Redis.URL)
		assert.Equal(t, "localhost", cfg.MQTT.BrokerHost)
		assert.Equal(t, 1883, cfg.MQTT.Port)
		assert.Equal(t, 0, cfg.MQTT.QOS)
		assert.False(t, cfg.MQTT.Retain)
		assert.Equal(t, 5*time.Second, cfg.MQTT.ConnectTimeout)
		assert.Equal(t, "-sub", cfg.PubSub.SubscriptionSuffix)
	})

	t.Run("Overrides", func(t *testing.T) {
		t.Setenv("QUEUE_TYPE", "mqtt")
		t.Setenv("QUEUE_ENABLED", "false")
		t.Setenv("REDIS_URL", "redis://other:6380/1")
		t.Setenv("MQTT_BROKER_URL", "broker.example.com")
		t.Setenv("MQTT_PORT", "8883")
		t.Setenv("MQTT_CLIENT_ID", "detector-1")
		t.Setenv("MQTT_USERNAME", "user")
		t.Setenv("MQTT_PASSWORD", "secret")
		t.Setenv("MQTT_QOS", "1")
		t.Setenv("MQTT_RETAIN", "true")
		t.Setenv("PUBSUB_PROJECT_ID", "my-project")

		cfg := LoadConfigFromEnv()

		assert.Equal(t, "mqtt", cfg.Type)
		assert.False(t, cfg.Enabled)
		assert.Equal(t, "redis://other:6380/1", cfg.Redis.URL)
		assert.Equal(t, "broker.example.com", cfg.MQTT.BrokerHost)
		assert.Equal(t, 8883, cfg.MQTT.Port)
		assert.Equal(t, "detector-1", cfg.MQTT.ClientID)
		assert.Equal(t, "user", cfg.MQTT.Username)
		assert.Equal(t, "secret", cfg.MQTT.Password)
		assert.Equal(t, 1, cfg.MQTT.QOS)
		assert.True(t, cfg.MQTT.Retain)
		assert.Equal(t, "my-project", cfg.PubSub.ProjectID)
	})

	t.Run("Malformed Values Keep Defaults", func(t *testing.T) {
		t.Setenv("MQTT_PORT", "not-a-port")
		t.Setenv("QUEUE_ENABLED", "maybe")

		cfg := LoadConfigFromEnv()
		assert.Equal(t, 1883, cfg.MQTT.Port)
		assert.True(t, cfg.Enabled)
	})
}
