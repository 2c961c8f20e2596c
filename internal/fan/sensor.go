package fan

import (
	"fmt"
	"math"
	"path"
	"strings"

	"codeberg.org/mutker/deckfanctl/internal/errors"
)

// HardwareType classifies a telemetry node.
type HardwareType string

const (
	HardwareCPU         HardwareType = "cpu"
	HardwareGPU         HardwareType = "gpu"
	HardwareStorage     HardwareType = "storage"
	HardwareBattery     HardwareType = "battery"
	HardwareMotherboard HardwareType = "motherboard"
	HardwareEC          HardwareType = "embedded_controller"
	HardwareOther       HardwareType = "other"
)

// SensorType classifies a single hardware reading.
type SensorType string

const (
	SensorTemperature SensorType = "temperature"
	SensorFan         SensorType = "fan"
	SensorLoad        SensorType = "load"
)

// Probe describes a hardware reading's kind and location for matching.
type Probe struct {
	HardwareType HardwareType
	HardwareName string
	SensorType   SensorType
	SensorName   string
	Identifier   string
}

// Match holds the criteria a Probe must satisfy to feed a zone.
// Empty name lists and an empty identifier match anything; an empty
// hardware type matches nothing, which marks a direct-feed-only zone.
type Match struct {
	HardwareType  HardwareType
	HardwareNames []string
	SensorType    SensorType
	SensorNames   []string
	Identifier    string
}

func (m Match) matches(p Probe) bool {
	if m.HardwareType == "" || m.HardwareType != p.HardwareType {
		return false
	}

	sensorType := m.SensorType
	if sensorType == "" {
		sensorType = SensorTemperature
	}
	if sensorType != p.SensorType {
		return false
	}

	if !containsFold(m.HardwareNames, p.HardwareName) || !containsFold(m.SensorNames, p.SensorName) {
		return false
	}

	if m.Identifier != "" {
		ok, err := path.Match(m.Identifier, p.Identifier)
		if err != nil || !ok {
			return false
		}
	}

	return true
}

func containsFold(names []string, name string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}

	return false
}

// Policy decides how a zone takes part in a mode.
type Policy int

const (
	// PolicyExcluded zones are not evaluated and are always valid.
	PolicyExcluded Policy = iota
	// PolicyOptional zones are evaluated when seen and are always valid.
	PolicyOptional
	// PolicyRequired zones are evaluated and invalid when no RPM was calculated.
	PolicyRequired
)

func (p Policy) String() string {
	switch p {
	case PolicyOptional:
		return "optional"
	case PolicyRequired:
		return "required"
	default:
		return "excluded"
	}
}

// ParsePolicy converts a configured policy name. An empty name means required.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "required":
		return PolicyRequired, nil
	case "optional":
		return PolicyOptional, nil
	case "excluded":
		return PolicyExcluded, nil
	default:
		return PolicyExcluded, errors.New().WithData(ErrInvalidPolicy, s)
	}
}

// Sensor is one logical thermal zone. Configuration is immutable after
// NewSensor; the per-pass reading and RPM are cleared by Reset.
type Sensor struct {
	id         string
	match      Match
	policies   map[Mode]Policy
	curves     map[Mode]Curve
	avgSamples int
	deadZone   float64

	history []float64
	input   *float64

	reading *float64
	rpm     *RPM
}

// NewSensor builds a zone from its configuration.
func NewSensor(cfg ZoneConfig) (*Sensor, error) {
	errFactory := errors.New()

	id := strings.TrimSpace(cfg.ID)
	if id == "" {
		return nil, errFactory.WithData(ErrInvalidZone, "zone id is empty")
	}
	if cfg.AvgSamples < 0 || cfg.DeadZone < 0 {
		return nil, errFactory.WithData(ErrInvalidZone,
			fmt.Sprintf("%s: avg_samples and dead_zone must not be negative", id))
	}

	s := &Sensor{
		id: id,
		match: Match{
			HardwareType:  HardwareType(strings.ToLower(cfg.HardwareType)),
			HardwareNames: cfg.HardwareNames,
			SensorType:    SensorType(strings.ToLower(cfg.SensorType)),
			SensorNames:   cfg.SensorNames,
			Identifier:    cfg.Identifier,
		},
		policies:   make(map[Mode]Policy),
		curves:     make(map[Mode]Curve),
		avgSamples: cfg.AvgSamples,
		deadZone:   cfg.DeadZone,
	}

	if s.match.Identifier != "" {
		if _, err := path.Match(s.match.Identifier, ""); err != nil {
			return nil, errFactory.WithData(ErrInvalidZone, fmt.Sprintf("%s: identifier: %v", id, err))
		}
	}

	for name, modeCfg := range cfg.Modes {
		mode, err := ParseMode(name)
		if err != nil {
			return nil, errFactory.Wrap(ErrInvalidZone, err).WithMessage(fmt.Sprintf("zone %s", id))
		}

		policy, err := ParsePolicy(modeCfg.Policy)
		if err != nil {
			return nil, err
		}
		s.policies[mode] = policy

		if policy == PolicyExcluded {
			continue
		}

		curve, err := NewCurve(modeCfg.Points...)
		if err != nil {
			return nil, errFactory.Wrap(ErrInvalidZone, err).WithMessage(fmt.Sprintf("zone %s mode %s", id, mode))
		}
		s.curves[mode] = curve
	}

	return s, nil
}

// ID returns the zone identity.
func (s *Sensor) ID() string {
	return s.id
}

// Policy returns the zone's policy for mode.
func (s *Sensor) Policy(mode Mode) Policy {
	return s.policies[mode]
}

// Matches reports whether the probe belongs to this zone.
func (s *Sensor) Matches(p Probe) bool {
	return s.match.matches(p)
}

// Reset clears the per-pass reading and RPM. Smoothing history is kept.
func (s *Sensor) Reset() {
	s.reading = nil
	s.rpm = nil
}

// Update records value and evaluates the curve for mode.
func (s *Sensor) Update(value float64, mode Mode) {
	v := value
	s.reading = &v
	s.rpm = nil

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}

	input := s.smooth(value)

	if s.policies[mode] == PolicyExcluded {
		return
	}
	curve, ok := s.curves[mode]
	if !ok {
		return
	}
	if rpm, ok := curve.Evaluate(input); ok {
		s.rpm = &rpm
	}
}

// UpdateDirect is Update for readings that do not come from the hardware
// topology. identity must equal the zone's own identity.
func (s *Sensor) UpdateDirect(identity string, value float64, mode Mode) error {
	if identity != s.id {
		return errors.New().WithData(ErrIdentityMismatch,
			fmt.Sprintf("reading for %q delivered to zone %q", identity, s.id))
	}

	s.Update(value, mode)

	return nil
}

// IsValid reports whether the zone's current state is acceptable under mode.
func (s *Sensor) IsValid(mode Mode) bool {
	if s.policies[mode] != PolicyRequired {
		return true
	}

	return s.rpm != nil
}

// LastReading returns the raw value received this pass.
func (s *Sensor) LastReading() (float64, bool) {
	if s.reading == nil {
		return 0, false
	}

	return *s.reading, true
}

// CalculatedRPM returns the RPM computed this pass.
func (s *Sensor) CalculatedRPM() (RPM, bool) {
	if s.rpm == nil {
		return 0, false
	}

	return *s.rpm, true
}

func (s *Sensor) smooth(value float64) float64 {
	avg := value
	if s.avgSamples > 1 {
		s.history = append(s.history, value)
		if len(s.history) > s.avgSamples {
			s.history = s.history[1:]
		}

		sum := 0.0
		for _, v := range s.history {
			sum += v
		}
		avg = sum / float64(len(s.history))
	}

	if s.input != nil && math.Abs(avg-*s.input) < s.deadZone {
		return *s.input
	}

	s.input = &avg

	return avg
}
