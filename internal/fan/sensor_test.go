package fan_test

import (
	"math"
	"testing"

	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/fan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cpuZone() fan.ZoneConfig {
	curve := []fan.Point{{Temperature: 40, RPM: 0}, {Temperature: 60, RPM: 3000}, {Temperature: 80, RPM: 6000}}

	return fan.ZoneConfig{
		ID:            "CPU",
		HardwareType:  "cpu",
		HardwareNames: []string{"k10temp"},
		SensorNames:   []string{"Tctl"},
		Modes: map[string]fan.ModeConfig{
			"default":  {Points: curve},
			"assisted": {Points: curve},
			"max":      {Points: curve},
		},
	}
}

func gpuZone() fan.ZoneConfig {
	return fan.ZoneConfig{
		ID:           "GPU",
		HardwareType: "gpu",
		SensorNames:  []string{"edge"},
		Identifier:   "/hwmon/amdgpu*/edge",
		Modes: map[string]fan.ModeConfig{
			"default":  {Points: []fan.Point{{Temperature: 50, RPM: 0}, {Temperature: 70, RPM: 4000}}},
			"assisted": {Points: []fan.Point{{Temperature: 50, RPM: 0}, {Temperature: 70, RPM: 4000}}},
			"max":      {Points: []fan.Point{{Temperature: 50, RPM: 0}, {Temperature: 70, RPM: 4000}}},
		},
	}
}

func battZone() fan.ZoneConfig {
	return fan.ZoneConfig{
		ID: "Batt",
		Modes: map[string]fan.ModeConfig{
			"default":  {Points: []fan.Point{{Temperature: 30, RPM: 0}, {Temperature: 50, RPM: 2000}}},
			"assisted": {Points: []fan.Point{{Temperature: 30, RPM: 0}, {Temperature: 50, RPM: 2000}}},
			"max":      {Policy: "excluded"},
		},
	}
}

func newZone(t *testing.T, cfg fan.ZoneConfig) *fan.Sensor {
	t.Helper()
	z, err := fan.NewSensor(cfg)
	require.NoError(t, err)
	return z
}

func TestSensorMatches(t *testing.T) {
	cpu := newZone(t, cpuZone())
	gpu := newZone(t, gpuZone())
	batt := newZone(t, battZone())

	tctl := fan.Probe{
		HardwareType: fan.HardwareCPU,
		HardwareName: "k10temp",
		SensorType:   fan.SensorTemperature,
		SensorName:   "tctl",
		Identifier:   "/hwmon/k10temp/tctl",
	}
	edge := fan.Probe{
		HardwareType: fan.HardwareGPU,
		HardwareName: "amdgpu",
		SensorType:   fan.SensorTemperature,
		SensorName:   "edge",
		Identifier:   "/hwmon/amdgpu/edge",
	}

	assert.True(t, cpu.Matches(tctl), "sensor names compare case-insensitively")
	assert.False(t, cpu.Matches(edge))
	assert.True(t, gpu.Matches(edge))
	assert.False(t, gpu.Matches(tctl))

	wrongKind := tctl
	wrongKind.SensorType = fan.SensorLoad
	assert.False(t, cpu.Matches(wrongKind))

	otherChip := tctl
	otherChip.HardwareName = "coretemp"
	assert.False(t, cpu.Matches(otherChip))

	otherPath := edge
	otherPath.Identifier = "/nvml/gpu0/edge"
	assert.False(t, gpu.Matches(otherPath))

	assert.False(t, batt.Matches(tctl), "zones without hardware type are direct-feed only")
	assert.False(t, batt.Matches(fan.Probe{}))
}

func TestSensorUpdateAndReset(t *testing.T) {
	cpu := newZone(t, cpuZone())

	_, ok := cpu.LastReading()
	assert.False(t, ok)
	_, ok = cpu.CalculatedRPM()
	assert.False(t, ok)

	cpu.Update(70, fan.ModeDefault)
	reading, ok := cpu.LastReading()
	require.True(t, ok)
	assert.InDelta(t, 70.0, reading, 0.001)
	rpm, ok := cpu.CalculatedRPM()
	require.True(t, ok)
	assert.Equal(t, fan.RPM(4500), rpm)

	cpu.Reset()
	_, ok = cpu.LastReading()
	assert.False(t, ok)
	_, ok = cpu.CalculatedRPM()
	assert.False(t, ok)
}

func TestSensorExcludedMode(t *testing.T) {
	batt := newZone(t, battZone())
	assert.Equal(t, fan.PolicyExcluded, batt.Policy(fan.ModeMax))

	assert.True(t, batt.IsValid(fan.ModeMax), "excluded zone is valid without a reading")

	batt.Update(45, fan.ModeMax)
	reading, ok := batt.LastReading()
	require.True(t, ok, "reading is still recorded")
	assert.InDelta(t, 45.0, reading, 0.001)
	_, ok = batt.CalculatedRPM()
	assert.False(t, ok, "excluded zone never calculates an RPM")
	assert.True(t, batt.IsValid(fan.ModeMax))
}

func TestSensorRequiredWithoutUpdateIsInvalid(t *testing.T) {
	for _, mode := range fan.Modes() {
		cpu := newZone(t, cpuZone())
		cpu.Reset()
		assert.False(t, cpu.IsValid(mode), mode.String())

		cpu.Update(50, mode)
		assert.True(t, cpu.IsValid(mode), mode.String())
	}
}

func TestSensorOptionalPolicy(t *testing.T) {
	ssd := newZone(t, fan.ZoneConfig{
		ID:           "SSD",
		HardwareType: "storage",
		Modes: map[string]fan.ModeConfig{
			"default": {Policy: "optional", Points: []fan.Point{{Temperature: 50, RPM: 0}, {Temperature: 70, RPM: 3000}}},
		},
	})

	assert.True(t, ssd.IsValid(fan.ModeDefault))
	ssd.Update(60, fan.ModeDefault)
	rpm, ok := ssd.CalculatedRPM()
	require.True(t, ok)
	assert.Equal(t, fan.RPM(1500), rpm)

	assert.True(t, ssd.IsValid(fan.ModeMax), "modes without config exclude the zone")
}

func TestSensorInvalidReading(t *testing.T) {
	cpu := newZone(t, cpuZone())

	cpu.Update(math.NaN(), fan.ModeDefault)
	_, ok := cpu.LastReading()
	assert.True(t, ok)
	_, ok = cpu.CalculatedRPM()
	assert.False(t, ok)
	assert.False(t, cpu.IsValid(fan.ModeDefault))
}

func TestSensorUpdateDirect(t *testing.T) {
	batt := newZone(t, battZone())

	require.NoError(t, batt.UpdateDirect("Batt", 40, fan.ModeDefault))
	rpm, ok := batt.CalculatedRPM()
	require.True(t, ok)
	assert.Equal(t, fan.RPM(1000), rpm)

	batt.Reset()
	err := batt.UpdateDirect("VLV0100", 40, fan.ModeDefault)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, fan.ErrIdentityMismatch))
	_, ok = batt.LastReading()
	assert.False(t, ok, "rejected reading is not recorded")
}

func TestSensorSmoothing(t *testing.T) {
	cfg := cpuZone()
	cfg.AvgSamples = 3
	cpu := newZone(t, cfg)

	cpu.Update(40, fan.ModeDefault)
	cpu.Update(60, fan.ModeDefault)
	cpu.Update(80, fan.ModeDefault)
	rpm, ok := cpu.CalculatedRPM()
	require.True(t, ok)
	assert.Equal(t, fan.RPM(3000), rpm, "average of 40/60/80 is 60")

	cpu.Reset()
	cpu.Update(80, fan.ModeDefault)
	rpm, ok = cpu.CalculatedRPM()
	require.True(t, ok)
	assert.Equal(t, fan.RPM(5000), rpm, "window slides: 60/80/80")

	reading, _ := cpu.LastReading()
	assert.InDelta(t, 80.0, reading, 0.001, "last reading stays raw")
}

func TestSensorDeadZone(t *testing.T) {
	cfg := cpuZone()
	cfg.DeadZone = 2
	cpu := newZone(t, cfg)

	cpu.Update(50, fan.ModeDefault)
	first, _ := cpu.CalculatedRPM()

	cpu.Update(51.5, fan.ModeDefault)
	second, _ := cpu.CalculatedRPM()
	assert.Equal(t, first, second, "changes inside the dead zone keep the previous input")

	cpu.Update(56, fan.ModeDefault)
	third, _ := cpu.CalculatedRPM()
	assert.Equal(t, fan.RPM(2400), third)
}

func TestNewSensorValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  fan.ZoneConfig
		code errors.ErrorCode
	}{
		{"empty id", fan.ZoneConfig{}, fan.ErrInvalidZone},
		{"unknown mode", fan.ZoneConfig{ID: "X", Modes: map[string]fan.ModeConfig{"turbo": {}}}, fan.ErrInvalidZone},
		{"unknown policy", fan.ZoneConfig{ID: "X", Modes: map[string]fan.ModeConfig{"max": {Policy: "sometimes"}}}, fan.ErrInvalidPolicy},
		{"missing curve", fan.ZoneConfig{ID: "X", Modes: map[string]fan.ModeConfig{"max": {Policy: "required"}}}, fan.ErrInvalidCurve},
		{"negative samples", fan.ZoneConfig{ID: "X", AvgSamples: -1}, fan.ErrInvalidZone},
		{"bad glob", fan.ZoneConfig{ID: "X", Identifier: "[abc"}, fan.ErrInvalidZone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fan.NewSensor(tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), err.Error())
		})
	}
}
