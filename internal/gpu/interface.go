package gpu

import "github.com/NVIDIA/go-nvml/pkg/nvml"

// PowerReader reports the board power draw of a device identified by its
// UUID, in watts.
type PowerReader interface {
	PowerUsage(uuid string) (float64, error)
	Shutdown() error
}

// powerDevice is the part of nvml.Device the power reader needs.
type powerDevice interface {
	GetPowerUsage() (uint32, nvml.Return)
}
