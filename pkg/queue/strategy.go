// Package queue provides a pluggable publish/subscribe layer for detection
// results. A Manager owns one backend Strategy (Redis, MQTT, Google Pub/Sub,
// or a log-only fallback) selected by configuration; producers publish
// JSON-compatible maps to topics and consumers register callbacks for
// asynchronous delivery.
//
// The layer is deliberately fail-open: backend outages and misconfiguration
// degrade to reduced functionality (log-only delivery, false return values)
// instead of surfacing errors to the caller.
package queue

import "github.com/rs/zerolog"

// MessageCallback receives a decoded message for a topic. Callbacks are
// invoked on a backend-owned delivery goroutine, never on the caller's.
type MessageCallback func(topic string, message map[string]any)

// Strategy is the contract every queue backend implements. Operations never
// panic or return errors; failures are logged, captured into Status where
// relevant, and reported as false.
type Strategy interface {
	// Connect establishes or confirms the backend connection. Idempotent.
	Connect() bool

	// Publish serializes data to JSON and sends it on topic.
	Publish(topic string, data map[string]any) bool

	// Subscribe registers cb for asynchronous delivery of future messages
	// on topic, starting a delivery mechanism if one does not exist yet.
	Subscribe(topic string, cb MessageCallback) bool

	// Unsubscribe removes delivery and the registered callback for topic.
	Unsubscribe(topic string) bool

	// Close unsubscribes everything and releases the connection.
	Close()

	// IsConnected reports backend liveness, not just whether Connect ran.
	IsConnected() bool

	// Status returns a human-readable state description, one of
	// "initialized", "connected", "disconnected" or "error: <detail>".
	Status() string
}

const (
	StatusInitialized  = "initialized"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// statusError formats an error for the Status contract.
func statusError(err error) string {
	return "error: " + err.Error()
}

// dispatch invokes a subscriber callback on the delivery goroutine. A
// panicking callback must not take the delivery loop down with it, so the
// panic is logged and the message dropped.
func dispatch(logger zerolog.Logger, cb MessageCallback, topic string, message map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("topic", topic).Msg("Subscriber callback panicked")
		}
	}()
	cb(topic, message)
}
