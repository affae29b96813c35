package emulators

import (
	"context"
	"fmt"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testRedisImage = "redis:7-alpine"
	testRedisPort  = "6379"
)

func GetDefaultRedisImageContainer() ImageContainer {
	return ImageContainer{
		EmulatorImage: testRedisImage,
		EmulatorPort:  testRedisPort,
	}
}

// SetupRedisContainer starts a Redis container and returns its host:port.
// The container is terminated via t.Cleanup.
func SetupRedisContainer(t *testing.T, ctx context.Context, cfg ImageContainer) Connection {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{fmt.Sprintf("%s/tcp", cfg.EmulatorPort)},
		WaitingFor:   wait.ForListeningPort(nat.Port(cfg.EmulatorPort)),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port(cfg.EmulatorPort))
	require.NoError(t, err)

	address := fmt.Sprintf("%s:%s", host, port.Port())
	t.Logf("Redis container started, listening on: %s", address)
	return Connection{EmulatorAddress: address, Host: host, Port: port.Int()}
}
