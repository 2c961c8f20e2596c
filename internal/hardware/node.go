package hardware

import (
	"context"
	"math"

	"codeberg.org/mutker/deckfanctl/internal/fan"
)

// Reading is a Sensor whose value is set by its node's refresh function.
type Reading struct {
	ID    string
	Label string
	Kind  fan.SensorType

	value float64
	valid bool
}

func (r *Reading) Identifier() string     { return r.ID }
func (r *Reading) Name() string           { return r.Label }
func (r *Reading) Type() fan.SensorType   { return r.Kind }
func (r *Reading) Value() (float64, bool) { return r.value, r.valid }

// Set stores a refreshed value. NaN and infinities are stored as invalid.
func (r *Reading) Set(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		r.Invalidate()
		return
	}
	r.value = v
	r.valid = true
}

// Invalidate marks the reading as unavailable.
func (r *Reading) Invalidate() {
	r.value = 0
	r.valid = false
}

// BasicNode is a Node backed by plain fields and a refresh callback.
type BasicNode struct {
	ID       string
	Label    string
	Kind     fan.HardwareType
	Readings []*Reading
	Nodes    []Node
	// RefreshFunc loads current values into Readings. Nil means the
	// readings are static.
	RefreshFunc func(ctx context.Context, n *BasicNode) error
}

func (n *BasicNode) Identifier() string     { return n.ID }
func (n *BasicNode) Name() string           { return n.Label }
func (n *BasicNode) Type() fan.HardwareType { return n.Kind }
func (n *BasicNode) Children() []Node       { return n.Nodes }

func (n *BasicNode) Sensors() []Sensor {
	sensors := make([]Sensor, 0, len(n.Readings))
	for _, r := range n.Readings {
		sensors = append(sensors, r)
	}

	return sensors
}

func (n *BasicNode) Refresh(ctx context.Context) error {
	if n.RefreshFunc == nil {
		return nil
	}

	return n.RefreshFunc(ctx, n)
}

// Reading returns the reading with the given identifier.
func (n *BasicNode) Reading(id string) (*Reading, bool) {
	for _, r := range n.Readings {
		if r.ID == id {
			return r, true
		}
	}

	return nil, false
}
