package fan_test

import (
	"testing"

	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/fan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioRegistry(t *testing.T) *fan.Registry {
	t.Helper()
	r, err := fan.NewRegistryFromConfig([]fan.ZoneConfig{cpuZone(), gpuZone(), battZone()})
	require.NoError(t, err)
	return r
}

func TestRegistryLookup(t *testing.T) {
	r := scenarioRegistry(t)
	assert.Equal(t, 3, r.Len())

	cpu, err := r.Get("CPU")
	require.NoError(t, err)
	assert.Equal(t, "CPU", cpu.ID())

	_, err = r.Get("NPU")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, fan.ErrUnknownZone))

	var ids []string
	for _, z := range r.Zones() {
		ids = append(ids, z.ID())
	}
	assert.Equal(t, []string{"Batt", "CPU", "GPU"}, ids)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := fan.NewRegistryFromConfig([]fan.ZoneConfig{cpuZone(), cpuZone()})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, fan.ErrDuplicateZone))
}

func TestDesiredRPMAfterResetIsZero(t *testing.T) {
	r := scenarioRegistry(t)
	for _, z := range r.Zones() {
		z.Update(90, fan.ModeDefault)
	}
	require.NotZero(t, r.DesiredRPM())

	r.Reset()
	assert.Equal(t, fan.RPM(0), r.DesiredRPM())
}

func TestDefaultModeScenario(t *testing.T) {
	r := scenarioRegistry(t)
	r.Reset()

	mustGet(t, r, "CPU").Update(60, fan.ModeDefault)
	mustGet(t, r, "GPU").Update(50, fan.ModeDefault)
	require.NoError(t, mustGet(t, r, "Batt").UpdateDirect("Batt", 35, fan.ModeDefault))

	assert.Equal(t, fan.RPM(3000), r.DesiredRPM(), "CPU dominates")
	assert.False(t, r.IsAnyInvalid(fan.ModeDefault))
}

func TestMaxModeMissingGPUScenario(t *testing.T) {
	r := scenarioRegistry(t)
	r.Reset()

	mustGet(t, r, "CPU").Update(60, fan.ModeMax)

	gpu := mustGet(t, r, "GPU")
	_, ok := gpu.CalculatedRPM()
	assert.False(t, ok)
	assert.False(t, gpu.IsValid(fan.ModeMax))
	assert.True(t, mustGet(t, r, "Batt").IsValid(fan.ModeMax), "battery is excluded in max")

	assert.True(t, r.IsAnyInvalid(fan.ModeMax))
	assert.Equal(t, []string{"GPU"}, r.Invalid(fan.ModeMax))
	assert.Equal(t, fan.RPM(3000), r.DesiredRPM())
}

func TestAggregationIsMonotonic(t *testing.T) {
	r := scenarioRegistry(t)

	prev := fan.RPM(0)
	for cpuTemp := 20.0; cpuTemp <= 100; cpuTemp++ {
		r.Reset()
		mustGet(t, r, "CPU").Update(cpuTemp, fan.ModeDefault)
		mustGet(t, r, "GPU").Update(65, fan.ModeDefault)
		require.NoError(t, mustGet(t, r, "Batt").UpdateDirect("Batt", 40, fan.ModeDefault))

		got := r.DesiredRPM()
		assert.GreaterOrEqual(t, got, prev, "cpu %.0f", cpuTemp)
		assert.GreaterOrEqual(t, got, fan.RPM(3000), "never below the fixed GPU demand")
		prev = got
	}
}

func TestDefaultZonesAreValid(t *testing.T) {
	r, err := fan.NewRegistryFromConfig(fan.DefaultZones())
	require.NoError(t, err)
	assert.Equal(t, 4, r.Len())

	batt := mustGet(t, r, "Batt")
	assert.Equal(t, fan.PolicyExcluded, batt.Policy(fan.ModeMax))
	assert.Equal(t, fan.PolicyRequired, batt.Policy(fan.ModeDefault))

	ssd := mustGet(t, r, "SSD")
	assert.Equal(t, fan.PolicyOptional, ssd.Policy(fan.ModeDefault))
}

func mustGet(t *testing.T, r *fan.Registry, id string) *fan.Sensor {
	t.Helper()
	z, err := r.Get(id)
	require.NoError(t, err)
	return z
}
