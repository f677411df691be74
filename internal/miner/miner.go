package miner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/excavatorctl/internal/api"
	"codeberg.org/mutker/excavatorctl/internal/benchmark"
	"codeberg.org/mutker/excavatorctl/internal/clock"
	"codeberg.org/mutker/excavatorctl/internal/errors"
	"codeberg.org/mutker/excavatorctl/internal/gpu"
	"codeberg.org/mutker/excavatorctl/internal/logger"
	"codeberg.org/mutker/excavatorctl/internal/telemetry"
)

// Stats is the cached view of the worker's last published snapshot.
type Stats struct {
	Timestamp  time.Time                                       `json:"timestamp"`
	Totals     []telemetry.AlgorithmSpeed                      `json:"totals"`
	Devices    map[telemetry.DeviceRef][]telemetry.SpeedSample `json:"devices"`
	PowerUsage float64                                         `json:"power_usage"`
	Snapshot   telemetry.Snapshot                              `json:"-"`
}

// Miner supervises one running worker: it keeps a cached snapshot fresh
// and runs benchmarks against it.
type Miner struct {
	store   *telemetry.Store
	loop    *telemetry.Loop
	sampler *benchmark.Sampler
	cfg     Config
	logger  logger.Logger

	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	mu   sync.Mutex
	done <-chan struct{}
}

func New(cfg Config, client api.Client, opts ...Option) (*Miner, error) {
	errFactory := errors.New()

	o := options{
		clock:  clock.Real(),
		logger: logger.Default(),
		power:  gpu.NoopPowerReader{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	telemetryOpts := []telemetry.Option{
		telemetry.WithClock(o.clock),
		telemetry.WithLogger(log.With("telemetry")),
		telemetry.WithPowerReader(o.power),
	}
	benchmarkOpts := []benchmark.Option{
		benchmark.WithClock(o.clock),
		benchmark.WithLogger(log.With("benchmark")),
	}
	if o.recorder != nil {
		telemetryOpts = append(telemetryOpts, telemetry.WithRecorder(o.recorder))
		benchmarkOpts = append(benchmarkOpts, benchmark.WithRecorder(o.recorder))
	}

	fetcher, err := telemetry.NewFetcher(telemetry.FetcherConfig{
		Devices:    cfg.Devices,
		Algorithms: cfg.Algorithms,
	}, client, telemetryOpts...)
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	store := telemetry.NewStore()
	loop, err := telemetry.NewLoop(cfg.Loop, fetcher, store, telemetryOpts...)
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	sampler, err := benchmark.NewSampler(cfg.Benchmark, fetcher, benchmarkOpts...)
	if err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Miner{
		store:   store,
		loop:    loop,
		sampler: sampler,
		cfg:     cfg,
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// GetCachedStats returns the last published snapshot without contacting
// the worker.
func (m *Miner) GetCachedStats() Stats {
	snapshot := m.store.Read()
	return Stats{
		Timestamp:  snapshot.Timestamp,
		Totals:     snapshot.AlgorithmTotals(),
		Devices:    snapshot.Speeds,
		PowerUsage: snapshot.TotalPowerUsage,
		Snapshot:   snapshot,
	}
}

// StartTelemetryLoop starts polling. The loop stops when exited is closed
// or Stop is called. It can be started only once.
func (m *Miner) StartTelemetryLoop(exited <-chan struct{}) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New().New(ErrAlreadyStarted)
	}

	done := m.loop.Start(m.ctx, exited)

	m.mu.Lock()
	m.done = done
	m.mu.Unlock()

	return nil
}

// Done is closed once a started telemetry loop has stopped.
func (m *Miner) Done() (<-chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done == nil {
		return nil, errors.New().New(ErrNotStarted)
	}
	return m.done, nil
}

// Stop cancels the telemetry loop and waits for it to return.
func (m *Miner) Stop() {
	m.cancel()

	if done, err := m.Done(); err == nil {
		<-done
	}
}

// RunBenchmark benchmarks process for the given tier.
func (m *Miner) RunBenchmark(ctx context.Context, tier benchmark.Tier, process benchmark.Process) benchmark.Result {
	return m.sampler.Run(ctx, tier, process)
}

// Tier resolves a tier name against the configured overrides.
func (m *Miner) Tier(name string) (benchmark.Tier, error) {
	return m.cfg.Tier(name)
}
