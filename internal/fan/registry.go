package fan

import (
	"fmt"
	"maps"
	"slices"

	"codeberg.org/mutker/deckfanctl/internal/errors"
)

// Registry is the fixed set of zones, keyed by identity.
type Registry struct {
	zones map[string]*Sensor
	order []string
}

// NewRegistry builds a registry from already constructed zones.
func NewRegistry(zones ...*Sensor) (*Registry, error) {
	errFactory := errors.New()

	r := &Registry{zones: make(map[string]*Sensor, len(zones))}
	for _, z := range zones {
		if z == nil {
			return nil, errFactory.WithData(ErrInvalidZone, "nil zone")
		}
		if _, ok := r.zones[z.ID()]; ok {
			return nil, errFactory.WithData(ErrDuplicateZone, z.ID())
		}
		r.zones[z.ID()] = z
	}
	r.order = slices.Sorted(maps.Keys(r.zones))

	return r, nil
}

// NewRegistryFromConfig builds every zone in cfgs and registers them.
func NewRegistryFromConfig(cfgs []ZoneConfig) (*Registry, error) {
	zones := make([]*Sensor, 0, len(cfgs))
	for _, cfg := range cfgs {
		z, err := NewSensor(cfg)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}

	return NewRegistry(zones...)
}

// Get returns the zone with the given identity.
func (r *Registry) Get(id string) (*Sensor, error) {
	z, ok := r.zones[id]
	if !ok {
		return nil, errors.New().WithData(ErrUnknownZone, id)
	}

	return z, nil
}

// Zones returns all zones ordered by identity.
func (r *Registry) Zones() []*Sensor {
	out := make([]*Sensor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.zones[id])
	}

	return out
}

// Len returns the number of zones.
func (r *Registry) Len() int {
	return len(r.order)
}

// Reset clears the per-pass state of every zone.
func (r *Registry) Reset() {
	for _, z := range r.zones {
		z.Reset()
	}
}

// DesiredRPM is the highest RPM any zone calculated this pass, or 0 when
// no zone calculated one.
func (r *Registry) DesiredRPM() RPM {
	var rpm RPM
	for _, z := range r.zones {
		if v, ok := z.CalculatedRPM(); ok {
			rpm = max(rpm, v)
		}
	}

	return rpm
}

// IsAnyInvalid reports whether any zone is invalid under mode.
func (r *Registry) IsAnyInvalid(mode Mode) bool {
	for _, z := range r.zones {
		if !z.IsValid(mode) {
			return true
		}
	}

	return false
}

// Invalid returns the identities of zones that are invalid under mode.
func (r *Registry) Invalid(mode Mode) []string {
	var ids []string
	for _, id := range r.order {
		if !r.zones[id].IsValid(mode) {
			ids = append(ids, id)
		}
	}

	return ids
}

func (r *Registry) String() string {
	return fmt.Sprintf("Registry%v", r.order)
}
