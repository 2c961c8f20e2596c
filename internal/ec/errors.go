package ec

import "codeberg.org/mutker/deckfanctl/internal/errors"

const (
	// Discovery Errors
	ErrDeviceNotFound = errors.ErrorCode("ec_device_not_found")
	ErrInvalidConfig  = errors.ErrorCode("ec_invalid_config")

	// Fan Control Errors
	ErrFanControlFailed = errors.ErrorCode("ec_fan_control_failed")
	ErrSetFanTarget     = errors.ErrorCode("ec_set_fan_target_failed")
	ErrGetFanSpeed      = errors.ErrorCode("ec_get_fan_speed_failed")
	ErrGetFanTarget     = errors.ErrorCode("ec_get_fan_target_failed")

	// Sensor Errors
	ErrBatteryReadFailed = errors.ErrorCode("ec_battery_read_failed")
	ErrBoardInfoFailed   = errors.ErrorCode("ec_board_info_failed")
)
