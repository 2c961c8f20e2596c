package hardware

import (
	"codeberg.org/mutker/deckfanctl/internal/errors"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const (
	// Topology Errors
	ErrTopologyFailed = errors.ErrorCode("hardware_topology_failed")
	ErrRefreshFailed  = errors.ErrorCode("hardware_refresh_failed")

	// NVML Errors
	ErrNVMLInitFailed     = errors.ErrorCode("hardware_nvml_init_failed")
	ErrNVMLShutdownFailed = errors.ErrorCode("hardware_nvml_shutdown_failed")
	ErrNVMLNotInitialized = errors.ErrorCode("hardware_nvml_not_initialized")
	ErrDeviceCountFailed  = errors.ErrorCode("hardware_device_count_failed")
	ErrDeviceNotFound     = errors.ErrorCode("hardware_device_not_found")
	ErrTemperatureFailed  = errors.ErrorCode("hardware_temperature_read_failed")
)

// nvmlError represents an NVML-specific error
type nvmlError struct {
	ret nvml.Return
}

func (e nvmlError) Error() string {
	return nvml.ErrorString(e.ret)
}

// newNVMLError creates an error from an NVML return code
func newNVMLError(ret nvml.Return) error {
	if ret == nvml.SUCCESS {
		return nil
	}
	return &nvmlError{ret: ret}
}

// IsNVMLSuccess checks if a Return value indicates success
func IsNVMLSuccess(ret nvml.Return) bool {
	return ret == nvml.SUCCESS
}
