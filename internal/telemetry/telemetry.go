package telemetry

import (
	"context"
	"strings"

	"codeberg.org/mutker/excavatorctl/internal/api"
	"codeberg.org/mutker/excavatorctl/internal/clock"
	"codeberg.org/mutker/excavatorctl/internal/errors"
	"codeberg.org/mutker/excavatorctl/internal/gpu"
	"codeberg.org/mutker/excavatorctl/internal/logger"
)

// Fetcher is the Source backed by the worker's API.
type Fetcher struct {
	client     api.Client
	devices    []DeviceRef
	algorithms []string
	reset      api.Command
	power      gpu.PowerReader
	clock      clock.Clock
	logger     logger.Logger
}

func NewFetcher(cfg FetcherConfig, client api.Client, opts ...Option) (*Fetcher, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	o := newOptions(opts)

	algorithms := make([]string, 0, len(cfg.Algorithms))
	for _, name := range cfg.Algorithms {
		algorithms = append(algorithms, normalizeAlgorithm(name))
	}

	return &Fetcher{
		client:     client,
		devices:    append([]DeviceRef(nil), cfg.Devices...),
		algorithms: algorithms,
		reset:      api.WorkersReset(len(cfg.Devices)),
		power:      o.power,
		clock:      o.clock,
		logger:     o.logger,
	}, nil
}

func (f *Fetcher) ResetCounters(ctx context.Context) error {
	if _, err := api.Do(ctx, f.client, f.reset); err != nil {
		return errors.New().Wrap(ErrResetFailed, err)
	}
	return nil
}

func (f *Fetcher) Fetch(ctx context.Context) (Snapshot, error) {
	errFactory := errors.New()

	raw, err := api.Do(ctx, f.client, api.WorkerList())
	if err != nil {
		return Snapshot{}, errFactory.Wrap(ErrFetchFailed, err)
	}

	resp, err := api.ParseWorkerList(raw)
	if err != nil {
		return Snapshot{}, errFactory.Wrap(ErrFetchFailed, err)
	}

	return f.build(resp, raw), nil
}

func (f *Fetcher) PrintEfficiencies(ctx context.Context) error {
	if _, err := api.Do(ctx, f.client, api.PrintEfficiencies()); err != nil {
		return errors.New().Wrap(ErrPrintFailed, err)
	}
	return nil
}

func (f *Fetcher) build(resp *api.WorkerListResponse, raw string) Snapshot {
	snapshot := Snapshot{
		Timestamp:           f.clock.Now(),
		Devices:             f.devices,
		Speeds:              make(map[DeviceRef][]SpeedSample, len(f.devices)),
		PowerUsagePerDevice: make(map[DeviceRef]float64, len(f.devices)),
		RawResponse:         raw,
	}

	for _, device := range f.devices {
		samples := deviceSamples(device, resp.Workers)
		if len(samples) == 0 {
			for _, name := range f.algorithms {
				samples = append(samples, SpeedSample{Device: device, Algorithm: name})
			}
		}
		snapshot.Speeds[device] = samples

		watts, err := f.power.PowerUsage(string(device))
		if err != nil {
			f.logger.Debug().Err(err).Str("device", string(device)).Msg("Power usage unavailable")
			continue
		}
		snapshot.PowerUsagePerDevice[device] = watts
		snapshot.TotalPowerUsage += watts
	}

	return snapshot
}

// deviceSamples merges every algorithm entry the workers reported for
// device into one sample per algorithm.
func deviceSamples(device DeviceRef, workers []api.Worker) []SpeedSample {
	var samples []SpeedSample
	index := make(map[string]int)

	for _, worker := range workers {
		if !strings.EqualFold(worker.DeviceUUID, string(device)) {
			continue
		}
		for _, algorithm := range worker.Algorithms {
			name := normalizeAlgorithm(algorithm.Name)
			speed := max(algorithm.Speed, 0)
			if i, ok := index[name]; ok {
				samples[i].Speed += speed
				continue
			}
			index[name] = len(samples)
			samples = append(samples, SpeedSample{Device: device, Algorithm: name, Speed: speed})
		}
	}

	return samples
}

func normalizeAlgorithm(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
