//go:build integration

package queue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-audio-detect/pkg/helpers/emulators"
	"github.com/illmade-knight/go-audio-detect/pkg/queue"
)

func TestMQTTStrategyRoundTrip(t *testing.T) {
	ctx := context.Background()
	conn := emulators.SetupMosquittoContainer(t, ctx, emulators.GetDefaultMqttImageContainer())

	s := queue.NewMQTTStrategy(queue.MQTTConfig{
		BrokerHost: conn.Host,
		Port:       conn.Port,
		QOS:        1,
	}, zerolog.Nop())
	t.Cleanup(s.Close)
	require.True(t, s.Connect(), "could not connect to mosquitto container: %s", s.Status())
	assert.Equal(t, queue.StatusConnected, s.Status())

	var mu sync.Mutex
	var received []map[string]any
	require.True(t, s.Subscribe("results", func(_ string, message map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, message)
	}))

	require.True(t, s.Publish("results", map[string]any{"keyword": "hello"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, 10*time.Second, 100*time.Millisecond, "expected the published message back")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "hello", received[0]["keyword"])
}

func TestMQTTStrategyUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	conn := emulators.SetupMosquittoContainer(t, ctx, emulators.GetDefaultMqttImageContainer())

	s := queue.NewMQTTStrategy(queue.MQTTConfig{BrokerHost: conn.Host, Port: conn.Port, QOS: 1}, zerolog.Nop())
	t.Cleanup(s.Close)
	require.True(t, s.Connect())

	var mu sync.Mutex
	count := 0
	require.True(t, s.Subscribe("alerts", func(string, map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		count++
	}))

	require.True(t, s.Publish("alerts", map[string]any{"seq": 0}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count > 0
	}, 10*time.Second, 100*time.Millisecond)

	require.True(t, s.Unsubscribe("alerts"))
	mu.Lock()
	before := count
	mu.Unlock()

	require.True(t, s.Publish("alerts", map[string]any{"seq": 1}))
	time.Sleep(500 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, before, count, "no deliveries should arrive after unsubscribe")
}

// TestMQTTManagerEndToEnd drives the manager over a live broker and checks
// the injected timestamp survives the wire.
func TestMQTTManagerEndToEnd(t *testing.T) {
	ctx := context.Background()
	conn := emulators.SetupMosquittoContainer(t, ctx, emulators.GetDefaultMqttImageContainer())

	cfg := &queue.Config{
		Type:    queue.TypeMQTT,
		Enabled: true,
		MQTT:    queue.MQTTConfig{BrokerHost: conn.Host, Port: conn.Port, QOS: 1},
	}
	m := queue.NewManager(cfg, zerolog.Nop())
	t.Cleanup(m.Close)
	require.True(t, m.IsConnected())

	var mu sync.Mutex
	var received []map[string]any
	require.True(t, m.Subscribe("results", func(_ string, message map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, message)
	}))

	require.True(t, m.Publish("results", map[string]any{"keyword": "hello"}))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, 10*time.Second, 100*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "hello", received[0]["keyword"])
	assert.NotEmpty(t, received[0]["timestamp"], "the manager should have injected a timestamp")
}
