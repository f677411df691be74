package gpu

import (
	"sync"

	"codeberg.org/mutker/excavatorctl/internal/errors"
	"codeberg.org/mutker/excavatorctl/internal/logger"
)

const milliWattsToWatts = 1000

type powerReader struct {
	lib     nvmlController
	devices map[string]powerDevice
	mu      sync.RWMutex
	logger  logger.Logger
}

// NewPowerReader initializes NVML and returns a reader for device power
// usage. Callers that can live without power figures should fall back to
// NoopPowerReader when this fails.
func NewPowerReader(log logger.Logger) (PowerReader, error) {
	return newPowerReader(&nvmlWrapper{}, log)
}

func newPowerReader(lib nvmlController, log logger.Logger) (*powerReader, error) {
	if err := lib.Initialize(); err != nil {
		return nil, err
	}

	log.Debug().Msg("NVML initialized for power readings")

	return &powerReader{
		lib:     lib,
		devices: make(map[string]powerDevice),
		logger:  log,
	}, nil
}

func (r *powerReader) PowerUsage(uuid string) (float64, error) {
	errFactory := errors.New()

	device, err := r.device(uuid)
	if err != nil {
		return 0, err
	}

	milliWatts, ret := device.GetPowerUsage()
	if !IsNVMLSuccess(ret) {
		return 0, errFactory.Wrap(ErrPowerUsageFailed, newNVMLError(ret)).WithData(uuid)
	}

	return float64(milliWatts) / milliWattsToWatts, nil
}

func (r *powerReader) device(uuid string) (powerDevice, error) {
	r.mu.RLock()
	device, ok := r.devices[uuid]
	r.mu.RUnlock()
	if ok {
		return device, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if device, ok := r.devices[uuid]; ok {
		return device, nil
	}

	device, err := r.lib.GetDeviceByUUID(uuid)
	if err != nil {
		return nil, err
	}
	r.devices[uuid] = device
	r.logger.Debug().Str("device", uuid).Msg("Cached device handle")

	return device, nil
}

func (r *powerReader) Shutdown() error {
	r.mu.Lock()
	r.devices = make(map[string]powerDevice)
	r.mu.Unlock()

	return r.lib.Shutdown()
}

// NoopPowerReader reports zero watts for every device.
type NoopPowerReader struct{}

func (NoopPowerReader) PowerUsage(string) (float64, error) { return 0, nil }

func (NoopPowerReader) Shutdown() error { return nil }
