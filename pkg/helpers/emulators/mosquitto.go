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
	testMosquittoImage = "eclipse-mosquitto:2.0"
	testMosquittoPort  = "1883"
)

func GetDefaultMqttImageContainer() ImageContainer {
	return ImageContainer{
		EmulatorImage: testMosquittoImage,
		EmulatorPort:  testMosquittoPort,
	}
}

// SetupMosquittoContainer starts an Eclipse Mosquitto broker with anonymous
// access enabled and returns its host:port. The container is terminated via
// t.Cleanup.
func SetupMosquittoContainer(t *testing.T, ctx context.Context, cfg ImageContainer) Connection {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        cfg.EmulatorImage,
		ExposedPorts: []string{fmt.Sprintf("%s/tcp", cfg.EmulatorPort)},
		// The stock image ships a config that permits anonymous clients.
		Cmd:        []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor: wait.ForListeningPort(nat.Port(cfg.EmulatorPort)),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate mosquitto container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, nat.Port(cfg.EmulatorPort))
	require.NoError(t, err)

	address := fmt.Sprintf("%s:%s", host, port.Port())
	t.Logf("Mosquitto container started, listening on: %s", address)
	return Connection{EmulatorAddress: address, Host: host, Port: port.Int()}
}
