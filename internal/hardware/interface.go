package hardware

import (
	"context"

	"codeberg.org/mutker/deckfanctl/internal/fan"
)

// Node is one device or sub-device in a telemetry topology.
type Node interface {
	Identifier() string
	Name() string
	Type() fan.HardwareType
	// Sensors returns the readings this node exposes. Values are only
	// current after Refresh.
	Sensors() []Sensor
	Children() []Node
	// Refresh reloads the live values of every sensor on this node.
	Refresh(ctx context.Context) error
}

// Sensor is a single reading on a Node.
type Sensor interface {
	Identifier() string
	Name() string
	Type() fan.SensorType
	// Value returns the value loaded by the owning node's last Refresh.
	Value() (float64, bool)
}

// Provider supplies a fresh topology for every pass.
type Provider interface {
	Name() string
	Hardware(ctx context.Context) ([]Node, error)
	Close() error
}
