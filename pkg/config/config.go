// Package config centralizes process-level settings for the detection
// queueing system. Defaults come from environment variables; an optional
// YAML file layered on top overrides them.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/illmade-knight/go-audio-detect/pkg/queue"
)

// Settings holds everything the queueing side of the system needs.
type Settings struct {
	// DefaultTopic is where detection results are published when the caller
	// does not choose one.
	DefaultTopic string       `yaml:"default_topic"`
	Queue        queue.Config `yaml:"queue"`
}

// LoadFromEnv builds Settings from environment variables with the stock
// defaults.
func LoadFromEnv() Settings {
	defaultTopic := os.Getenv("DEFAULT_TOPIC")
	if defaultTopic == "" {
		defaultTopic = "keyword_detections"
	}
	return Settings{
		DefaultTopic: defaultTopic,
		Queue:        queue.LoadConfigFromEnv(),
	}
}

// LoadFromFile reads a YAML settings file over the environment defaults, so
// a partial file only overrides what it names.
func LoadFromFile(path string) (*Settings, error) {
	settings := LoadFromEnv()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML from '%s': %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Validate performs basic sanity checks. An unknown queue type is not an
// error here - the strategy factory degrades it to the logging backend.
func (s *Settings) Validate() error {
	if s.DefaultTopic == "" {
		return fmt.Errorf("validation error: default_topic must not be empty")
	}
	if s.Queue.MQTT.Port < 0 || s.Queue.MQTT.Port > 65535 {
		return fmt.Errorf("validation error: mqtt port %d out of range", s.Queue.MQTT.Port)
	}
	if s.Queue.MQTT.QOS < 0 || s.Queue.MQTT.QOS > 2 {
		return fmt.Errorf("validation error: mqtt qos %d must be 0, 1 or 2", s.Queue.MQTT.QOS)
	}
	return nil
}
