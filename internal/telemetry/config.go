package telemetry

import (
	"time"

	"codeberg.org/mutker/excavatorctl/internal/errors"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultAlgorithm    = "daggerhashimoto"
)

// LoopConfig configures the polling loop.
type LoopConfig struct {
	Interval time.Duration
}

func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		Interval: DefaultPollInterval,
	}
}

func (c LoopConfig) Validate() error {
	errFactory := errors.New()
	if c.Interval <= 0 {
		return errFactory.New(errors.ErrInvalidInterval).WithData(c.Interval)
	}
	return nil
}

// FetcherConfig configures how worker replies become snapshots.
type FetcherConfig struct {
	// Devices are the devices driven by the worker, in worker index order.
	Devices []DeviceRef
	// Algorithms are reported as zero-speed samples for a device the
	// worker did not mention, which marks the read as incomplete.
	Algorithms []string
}

func (c FetcherConfig) Validate() error {
	errFactory := errors.New()
	if len(c.Devices) == 0 {
		return errFactory.New(ErrNoDevices)
	}
	for _, device := range c.Devices {
		if device == "" {
			return errFactory.WithData(ErrInvalidConfig, "empty device reference")
		}
	}
	return nil
}
