package fan

// ModeConfig is a zone's behaviour in one mode.
type ModeConfig struct {
	Policy string  `mapstructure:"policy"`
	Points []Point `mapstructure:"points"`
}

// ZoneConfig is the configuration form of a zone, keyed by mode name.
// Modes missing from Modes exclude the zone.
type ZoneConfig struct {
	ID            string                `mapstructure:"id"`
	HardwareType  string                `mapstructure:"hardware_type"`
	HardwareNames []string              `mapstructure:"hardware_names"`
	SensorType    string                `mapstructure:"sensor_type"`
	SensorNames   []string              `mapstructure:"sensor_names"`
	Identifier    string                `mapstructure:"identifier"`
	AvgSamples    int                   `mapstructure:"avg_samples"`
	DeadZone      float64               `mapstructure:"dead_zone"`
	Modes         map[string]ModeConfig `mapstructure:"modes"`
}

// DefaultZones is the zone table for a handheld APU with an NVMe drive and
// a battery whose temperature is read from the embedded controller.
func DefaultZones() []ZoneConfig {
	maxFan := []Point{{Temperature: 0, RPM: 7000}}

	return []ZoneConfig{
		{
			ID:           "CPU",
			HardwareType: string(HardwareCPU),
			SensorNames:  []string{"tctl", "package_id_0"},
			AvgSamples:   5,
			DeadZone:     0.5,
			Modes: map[string]ModeConfig{
				"default":  {Points: []Point{{45, 0}, {60, 2000}, {75, 4000}, {90, 7000}}},
				"assisted": {Points: []Point{{45, 0}, {55, 2000}, {70, 4500}, {85, 7000}}},
				"max":      {Points: maxFan},
			},
		},
		{
			ID:           "GPU",
			HardwareType: string(HardwareGPU),
			SensorNames:  []string{"edge", "gpu core"},
			AvgSamples:   5,
			DeadZone:     0.5,
			Modes: map[string]ModeConfig{
				"default":  {Points: []Point{{50, 0}, {65, 2000}, {80, 4500}, {95, 7000}}},
				"assisted": {Points: []Point{{50, 0}, {60, 2000}, {75, 4500}, {90, 7000}}},
				"max":      {Points: maxFan},
			},
		},
		{
			ID:           "SSD",
			HardwareType: string(HardwareStorage),
			SensorNames:  []string{"composite"},
			Modes: map[string]ModeConfig{
				"default":  {Policy: "optional", Points: []Point{{50, 0}, {70, 3000}, {80, 7000}}},
				"assisted": {Policy: "optional", Points: []Point{{50, 0}, {70, 3000}, {80, 7000}}},
			},
		},
		{
			ID: "Batt",
			Modes: map[string]ModeConfig{
				"default":  {Points: []Point{{35, 0}, {45, 2000}, {55, 7000}}},
				"assisted": {Points: []Point{{35, 0}, {45, 2000}, {55, 7000}}},
			},
		},
	}
}
