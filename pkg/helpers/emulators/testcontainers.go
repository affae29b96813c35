// Package emulators starts containerized backends for integration tests.
package emulators

// ImageContainer describes a container image and the port the emulator
// listens on.
type ImageContainer struct {
	EmulatorImage string
	EmulatorPort  string
}

// Connection is the address of a started emulator container.
type Connection struct {
	EmulatorAddress string
	Host            string
	Port            int
}
