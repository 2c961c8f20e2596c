package hardware

import (
	"context"
	"fmt"
	"sync"

	"codeberg.org/mutker/deckfanctl/internal/errors"
	"codeberg.org/mutker/deckfanctl/internal/fan"
	"codeberg.org/mutker/deckfanctl/internal/logger"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// gpuDevice is the subset of nvml.Device used here.
type gpuDevice interface {
	GetName() (string, nvml.Return)
	GetUUID() (string, nvml.Return)
	GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return)
}

// nvmlController abstracts NVML operations for testing
type nvmlController interface {
	Initialize() error
	Shutdown() error
	GetDeviceCount() (int, error)
	GetDevice(index int) (gpuDevice, error)
}

type nvmlWrapper struct {
	initialized bool
}

func (w *nvmlWrapper) Initialize() error {
	errFactory := errors.New()
	if w.initialized {
		return nil
	}

	ret := nvml.Init()
	if !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrNVMLInitFailed, newNVMLError(ret))
	}

	w.initialized = true

	return nil
}

func (w *nvmlWrapper) Shutdown() error {
	errFactory := errors.New()
	if !w.initialized {
		return nil
	}

	ret := nvml.Shutdown()
	if !IsNVMLSuccess(ret) {
		return errFactory.Wrap(ErrNVMLShutdownFailed, newNVMLError(ret))
	}

	w.initialized = false

	return nil
}

func (w *nvmlWrapper) GetDeviceCount() (int, error) {
	errFactory := errors.New()
	if !w.initialized {
		return 0, errFactory.New(ErrNVMLNotInitialized)
	}

	count, ret := nvml.DeviceGetCount()
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrDeviceCountFailed, newNVMLError(ret))
	}

	return count, nil
}

func (w *nvmlWrapper) GetDevice(index int) (gpuDevice, error) {
	errFactory := errors.New()
	if !w.initialized {
		return nil, errFactory.New(ErrNVMLNotInitialized)
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if !IsNVMLSuccess(ret) {
		return nil, errFactory.Wrap(ErrDeviceNotFound, newNVMLError(ret))
	}

	return device, nil
}

// NVMLProvider exposes NVIDIA GPUs as hardware nodes with a "GPU Core"
// temperature reading.
type NVMLProvider struct {
	nvml nvmlController
	log  logger.Logger
	mu   sync.Mutex
}

// NewNVMLProvider initializes NVML. It fails when no NVIDIA driver is present.
func NewNVMLProvider(log logger.Logger) (*NVMLProvider, error) {
	return newNVMLProvider(&nvmlWrapper{}, log)
}

func newNVMLProvider(ctrl nvmlController, log logger.Logger) (*NVMLProvider, error) {
	if err := ctrl.Initialize(); err != nil {
		return nil, err
	}

	return &NVMLProvider{
		nvml: ctrl,
		log:  log,
	}, nil
}

func (p *NVMLProvider) Name() string {
	return "nvml"
}

func (p *NVMLProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.nvml.Shutdown()
}

// Hardware enumerates the GPUs present right now.
func (p *NVMLProvider) Hardware(_ context.Context) ([]Node, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	count, err := p.nvml.GetDeviceCount()
	if err != nil {
		return nil, err
	}

	nodes := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		device, err := p.nvml.GetDevice(i)
		if err != nil {
			p.log.Warn().Err(err).Int("index", i).Msg("Failed to get GPU handle")
			continue
		}
		nodes = append(nodes, p.node(i, device))
	}

	return nodes, nil
}

func (p *NVMLProvider) node(index int, device gpuDevice) Node {
	id := fmt.Sprintf("/nvml/%d", index)
	if uuid, ret := device.GetUUID(); IsNVMLSuccess(ret) {
		id = "/nvml/" + uuid
	}

	name := fmt.Sprintf("gpu%d", index)
	if n, ret := device.GetName(); IsNVMLSuccess(ret) {
		name = n
	} else {
		p.log.Debug().Msgf("Failed to get GPU name: %v", nvml.ErrorString(ret))
	}

	return &BasicNode{
		ID:    id,
		Label: name,
		Kind:  fan.HardwareGPU,
		Readings: []*Reading{{
			ID:    id + "/temperature",
			Label: "GPU Core",
			Kind:  fan.SensorTemperature,
		}},
		RefreshFunc: func(_ context.Context, n *BasicNode) error {
			temp, ret := device.GetTemperature(nvml.TEMPERATURE_GPU)
			if !IsNVMLSuccess(ret) {
				n.Readings[0].Invalidate()
				return errors.New().Wrap(ErrTemperatureFailed, newNVMLError(ret))
			}
			n.Readings[0].Set(float64(temp))
			return nil
		},
	}
}
