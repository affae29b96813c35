//go:build integration

package queue_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-audio-detect/pkg/helpers/emulators"
	"github.com/illmade-knight/go-audio-detect/pkg/queue"
)

func setupRedisStrategy(t *testing.T, ctx context.Context) *queue.RedisStrategy {
	t.Helper()
	conn := emulators.SetupRedisContainer(t, ctx, emulators.GetDefaultRedisImageContainer())
	s := queue.NewRedisStrategy(queue.RedisConfig{URL: fmt.Sprintf("redis://%s/0", conn.EmulatorAddress)}, zerolog.Nop())
	t.Cleanup(s.Close)
	require.True(t, s.Connect(), "could not connect to redis container")
	return s
}

func TestRedisStrategyRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupRedisStrategy(t, ctx)

	var mu sync.Mutex
	var received []map[string]any
	require.True(t, s.Subscribe("results", func(_ string, message map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, message)
	}))

	// The pub/sub registration is asynchronous server-side; publish until
	// the first delivery lands.
	require.Eventually(t, func() bool {
		require.True(t, s.Publish("results", map[string]any{"keyword": "hello"}))
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, 10*time.Second, 100*time.Millisecond, "expected at least one delivery")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "hello", received[0]["keyword"])
}

func TestRedisStrategyHistoryTrimmed(t *testing.T) {
	ctx := context.Background()
	s := setupRedisStrategy(t, ctx)

	const published = 105
	for i := 0; i < published; i++ {
		require.True(t, s.Publish("detections", map[string]any{"seq": i}))
	}

	history, ok := s.History(ctx, "detections", 200)
	require.True(t, ok)
	require.Len(t, history, 100, "the history list must be trimmed to 100 entries")

	// Newest first: the head is the last published message.
	assert.Equal(t, float64(published-1), history[0]["seq"])
	assert.Equal(t, float64(published-100), history[99]["seq"])
}

func TestRedisStrategyUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	s := setupRedisStrategy(t, ctx)

	var mu sync.Mutex
	count := 0
	require.True(t, s.Subscribe("alerts", func(string, map[string]any) {
		mu.Lock()
		defer mu.Unlock()
		count++
	}))

	require.Eventually(t, func() bool {
		require.True(t, s.Publish("alerts", map[string]any{"seq": 0}))
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

// TestRedisManagerEndToEnd drives the full manager path over a live backend:
// timestamp injection, fan-out delivery, and history.
func TestRedisManagerEndToEnd(t *testing.T) {
	ctx := context.Background()
	conn := emulators.SetupRedisContainer(t, ctx, emulators.GetDefaultRedisImageContainer())

	cfg := &queue.Config{
		Type:    queue.TypeRedis,
		Enabled: true,
		Redis:   queue.RedisConfig{URL: fmt.Sprintf("redis://%s/0", conn.EmulatorAddress)},
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

	require.Eventually(t, func() bool {
		require.True(t, m.Publish("results", map[string]any{"keyword": "hello"}))
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, 10*time.Second, 100*time.Millisecond)

	mu.Lock()
	first := received[0]
	mu.Unlock()
	assert.Equal(t, "hello", first["keyword"])
	assert.NotEmpty(t, first["timestamp"], "the manager should have injected a timestamp")

	history, ok := m.History(ctx, "results", 10)
	require.True(t, ok)
	require.NotEmpty(t, history)
	assert.Equal(t, "hello", history[0]["keyword"])
}
