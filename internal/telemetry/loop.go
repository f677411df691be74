package telemetry

import (
	"context"
	"time"

	"codeberg.org/mutker/excavatorctl/internal/clock"
	"codeberg.org/mutker/excavatorctl/internal/errors"
	"codeberg.org/mutker/excavatorctl/internal/logger"
)

const (
	stageReset = "reset"
	stageFetch = "fetch"
)

// Loop periodically resets the worker's counters, waits one interval,
// fetches a snapshot and publishes it to a Store.
type Loop struct {
	source   Source
	store    *Store
	interval time.Duration
	clock    clock.Clock
	logger   logger.Logger
	recorder Recorder
}

func NewLoop(cfg LoopConfig, source Source, store *Store, opts ...Option) (*Loop, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	o := newOptions(opts)

	return &Loop{
		source:   source,
		store:    store,
		interval: cfg.Interval,
		clock:    o.clock,
		logger:   o.logger,
		recorder: o.recorder,
	}, nil
}

// Start runs the loop in a new goroutine. The loop stops when parent is
// canceled or exited is closed, and the returned channel is closed once it
// has returned.
func (l *Loop) Start(parent context.Context, exited <-chan struct{}) <-chan struct{} {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		select {
		case <-exited:
			l.logger.Info().Msg("Worker exited, stopping telemetry loop")
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		defer close(done)
		defer cancel()
		l.Run(ctx)
	}()

	return done
}

// Run polls until ctx is canceled. Per-cycle failures are logged and never
// end the loop.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info().Dur("interval", l.interval).Msg("Telemetry loop starting")

	for cycle := uint64(1); ctx.Err() == nil; cycle++ {
		if err := l.cycle(ctx, cycle); err != nil {
			break
		}
	}

	l.logger.Info().Msg("Telemetry loop stopped")
}

// cycle returns an error only when ctx was canceled.
func (l *Loop) cycle(ctx context.Context, cycle uint64) error {
	l.recorder.PollCycle()

	if err := l.source.ResetCounters(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.failure(stageReset, cycle, err)
	}

	if err := clock.Sleep(ctx, l.clock, l.interval); err != nil {
		return err
	}

	snapshot, err := l.source.Fetch(ctx)
	switch {
	case err == nil:
		l.store.Publish(snapshot)
		l.observe(snapshot)
		l.logger.Debug().
			Uint64("cycle", cycle).
			Int("devices", len(snapshot.Devices)).
			Float64("power_usage", snapshot.TotalPowerUsage).
			Msg("Snapshot published")
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		// The previous snapshot stays published.
		l.failure(stageFetch, cycle, err)
	}

	// Fire and forget: the print command's outcome is intentionally neither
	// awaited nor reported.
	go func() { _ = l.source.PrintEfficiencies(ctx) }()

	return nil
}

func (l *Loop) failure(stage string, cycle uint64, err error) {
	l.recorder.PollFailure(stage)

	event := l.logger.Warn().Err(err).Str("stage", stage).Uint64("cycle", cycle)
	var coded errors.Error
	if errors.As(err, &coded) {
		event = event.Str("error_code", string(coded.Code()))
	}
	event.Msg("Telemetry cycle failed")
}

func (l *Loop) observe(snapshot Snapshot) {
	for _, device := range snapshot.Devices {
		for _, sample := range snapshot.Speeds[device] {
			l.recorder.DeviceSpeed(string(device), sample.Algorithm, sample.Speed)
		}
		if watts, ok := snapshot.PowerUsagePerDevice[device]; ok {
			l.recorder.DevicePower(string(device), watts)
		}
	}
}
