package telemetry

import (
	"context"
	"time"
)

// Source talks to the worker on behalf of the polling loop and the
// benchmark sampler.
type Source interface {
	// ResetCounters restarts the worker's speed counters.
	ResetCounters(ctx context.Context) error
	// Fetch queries the worker and builds a snapshot from the reply.
	Fetch(ctx context.Context) (Snapshot, error)
	// PrintEfficiencies asks the worker to print and reset its efficiency
	// counters.
	PrintEfficiencies(ctx context.Context) error
}

// Recorder receives polling loop observations, typically for metrics.
type Recorder interface {
	PollCycle()
	PollFailure(stage string)
	DeviceSpeed(device, algorithm string, speed float64)
	DevicePower(device string, watts float64)
}

// DeviceRef identifies one compute device by its stable UUID.
type DeviceRef string

// SpeedSample is the speed one device reported for one algorithm.
type SpeedSample struct {
	Device    DeviceRef
	Algorithm string
	Speed     float64
}

// AlgorithmSpeed is a speed summed or averaged over devices.
type AlgorithmSpeed struct {
	Algorithm string  `json:"algorithm"`
	Speed     float64 `json:"speed"`
}

// Snapshot is one complete telemetry read across all devices. Snapshots are
// built once by a fetch and never modified afterwards.
type Snapshot struct {
	Timestamp           time.Time
	Devices             []DeviceRef
	Speeds              map[DeviceRef][]SpeedSample
	PowerUsagePerDevice map[DeviceRef]float64
	TotalPowerUsage     float64
	RawResponse         string
}

type nopRecorder struct{}

func (nopRecorder) PollCycle()                          {}
func (nopRecorder) PollFailure(string)                  {}
func (nopRecorder) DeviceSpeed(string, string, float64) {}
func (nopRecorder) DevicePower(string, float64)         {}
