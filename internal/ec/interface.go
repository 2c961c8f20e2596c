package ec

import "codeberg.org/mutker/deckfanctl/internal/fan"

// Controller is the embedded controller that drives the fan motor.
type Controller interface {
	// SetFanControlEnabled hands the fan to the controller's own loop when
	// enabled is true; false lets the host drive it through SetFanDesiredRPM.
	SetFanControlEnabled(enabled bool) error
	SetFanDesiredRPM(rpm fan.RPM) error
	GetFanRPM() (fan.RPM, error)
	GetFanDesiredRPM() (fan.RPM, error)
	// GetBatteryTemperature returns the battery temperature in °C.
	GetBatteryTemperature() (float64, error)
	Info() (BoardInfo, error)
}

// BoardInfo identifies the controller firmware and board. Read once at startup.
type BoardInfo struct {
	FirmwareVersion string
	BoardID         string
	PDCS            string
}
