package queue

import (
	"os"
	"strconv"
	"time"

	"google.golang.org/api/option"
)

// Queue type tags understood by the factory. Anything else falls back to
// the logging strategy.
const (
	TypeRedis   = "redis"
	TypeMQTT    = "mqtt"
	TypePubSub  = "pubsub"
	TypeLogging = "logging"
)

// RedisConfig holds connection settings for the Redis strategy.
type RedisConfig struct {
	URL string `yaml:"url"` // e.g. "redis://localhost:6379/0"
}

// MQTTConfig holds connection settings for the MQTT strategy.
type MQTTConfig struct {
	BrokerHost string `yaml:"broker_host"`
	Port       int    `yaml:"port"`
	// ClientID is auto-generated with the "audio-detect-" prefix when empty.
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// QOS is the MQTT quality-of-service level (0, 1 or 2) applied to every
	// publish from this strategy instance.
	QOS    int  `yaml:"qos"`
	Retain bool `yaml:"retain"`
	// ConnectTimeout bounds the wait for the broker's connection
	// acknowledgement. Defaults to 5s when zero.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// PubSubConfig holds settings for the Google Pub/Sub strategy.
type PubSubConfig struct {
	ProjectID string `yaml:"project_id"`
	// SubscriptionSuffix is appended to the topic name to derive the
	// subscription ID consumed on Subscribe. Defaults to "-sub".
	SubscriptionSuffix string `yaml:"subscription_suffix"`
	// ClientOptions allows tests and emulator setups to redirect the client.
	ClientOptions []option.ClientOption `yaml:"-"`
}

// Config selects and parameterizes a queue backend.
type Config struct {
	Type    string       `yaml:"type"`
	Enabled bool         `yaml:"enabled"`
	Redis   RedisConfig  `yaml:"redis"`
	MQTT    MQTTConfig   `yaml:"mqtt"`
	PubSub  PubSubConfig `yaml:"pubsub"`
}

// DefaultConfig returns a Config with the stock defaults.
func DefaultConfig() Config {
	return Config{
		Type:    TypeRedis,
		Enabled: true,
		Redis:   RedisConfig{URL: "redis://redis:6379/0"},
		MQTT: MQTTConfig{
			BrokerHost:     "localhost",
			Port:           1883,
			ConnectTimeout: 5 * time.Second,
		},
		PubSub: PubSubConfig{SubscriptionSuffix: "-sub"},
	}
}

// LoadConfigFromEnv builds a Config from environment variables, falling back
// to the same defaults the rest of the system assumes.
func LoadConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.Type = getenv("QUEUE_TYPE", cfg.Type)
	cfg.Enabled = getenvBool("QUEUE_ENABLED", cfg.Enabled)

	cfg.Redis.URL = getenv("REDIS_URL", cfg.Redis.URL)

	cfg.MQTT.BrokerHost = getenv("MQTT_BROKER_URL", cfg.MQTT.BrokerHost)
	cfg.MQTT.Port = getenvInt("MQTT_PORT", cfg.MQTT.Port)
	cfg.MQTT.ClientID = getenv("MQTT_CLIENT_ID", "")
	cfg.MQTT.Username = getenv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getenv("MQTT_PASSWORD", "")
	cfg.MQTT.QOS = getenvInt("MQTT_QOS", cfg.MQTT.QOS)
	cfg.MQTT.Retain = getenvBool("MQTT_RETAIN", cfg.MQTT.Retain)

	cfg.PubSub.ProjectID = getenv("PUBSUB_PROJECT_ID", "")
	cfg.PubSub.SubscriptionSuffix = getenv("PUBSUB_SUBSCRIPTION_SUFFIX", cfg.PubSub.SubscriptionSuffix)

	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
