package benchmark

import (
	"context"

	"codeberg.org/mutker/excavatorctl/internal/clock"
	"codeberg.org/mutker/excavatorctl/internal/errors"
	"codeberg.org/mutker/excavatorctl/internal/logger"
	"codeberg.org/mutker/excavatorctl/internal/telemetry"
)

// Outcome names what ended a benchmark run.
type Outcome string

const (
	OutcomeProcessExited     Outcome = "process_exited"
	OutcomeStoppedAfterTicks Outcome = "stopped_after_ticks"
	OutcomeDurationElapsed   Outcome = "duration_elapsed"
	OutcomeCanceled          Outcome = "canceled"
	OutcomeInvalidTier       Outcome = "invalid_tier"
)

const reasonCanceled = "benchmark canceled"

// Sampler runs time-boxed benchmarks against a telemetry source.
type Sampler struct {
	source   telemetry.Source
	cfg      Config
	clock    clock.Clock
	logger   logger.Logger
	recorder Recorder
}

func NewSampler(cfg Config, source telemetry.Source, opts ...Option) (*Sampler, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	s := &Sampler{
		source:   source,
		cfg:      cfg,
		clock:    clock.Real(),
		logger:   logger.Default(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Run benchmarks process for at most tier.Duration plus the grace period.
//
// Every tick resets the worker's counters, waits one tick period and reads
// a snapshot. A completion monitor runs alongside and ends the run when
// the process exits, the timeout passes or ctx is canceled. When ctx is
// canceled the partial result carries no speeds.
func (s *Sampler) Run(ctx context.Context, tier Tier, process Process) Result {
	if process == nil {
		process = detached{}
	}

	if err := tier.Validate(); err != nil {
		s.logger.Warn().Err(err).Str("tier", tier.Name).Msg("Refusing to run benchmark")
		return Result{Outcome: OutcomeInvalidTier, Reason: err.Error()}
	}

	s.logger.Info().
		Str("tier", tier.Name).
		Dur("duration", tier.Duration).
		Int("ticks", tier.TickCount(s.cfg.TickPeriod)).
		Int("valid_ticks", tier.ValidTicks).
		Bool("max_ticks_enabled", s.cfg.MaxTicksEnabled).
		Msg("Benchmark starting")

	earlyStop := make(chan struct{})
	monitorDone := make(chan struct{})
	outcome := make(chan Outcome, 1)

	go func() {
		defer close(monitorDone)
		outcome <- s.monitor(ctx, tier, process, earlyStop)
	}()

	ticks, stoppedAfterTicks := s.sample(ctx, tier, monitorDone)
	if stoppedAfterTicks {
		close(earlyStop)
	}

	finished := <-outcome

	var result Result
	if ctx.Err() != nil {
		result = partial(ticks)
	} else {
		result = Aggregate(ticks)
	}
	result.Outcome = finished

	s.recorder.BenchmarkFinished(tier.Name, result.Success, string(result.Outcome))
	s.report(tier, result)

	return result
}

// monitor waits for whichever ends the run first and stops the process
// unless it already exited.
func (s *Sampler) monitor(ctx context.Context, tier Tier, process Process, earlyStop <-chan struct{}) Outcome {
	timeout := s.clock.After(tier.Duration + s.cfg.Grace)

	var outcome Outcome
	select {
	case <-process.Exited():
		return OutcomeProcessExited
	case <-earlyStop:
		outcome = OutcomeStoppedAfterTicks
	case <-timeout:
		outcome = OutcomeDurationElapsed
	case <-ctx.Done():
		outcome = OutcomeCanceled
	}

	if err := process.Stop(); err != nil {
		s.logger.Warn().
			Err(errors.New().Wrap(ErrStopFailed, err)).
			Str("outcome", string(outcome)).
			Msg("Failed to stop benchmarked process")
	}

	return outcome
}

// sample collects ticks until the tier is exhausted, enough valid ticks
// were seen or the run was aborted.
func (s *Sampler) sample(ctx context.Context, tier Tier, monitorDone <-chan struct{}) (ticks []Tick, stoppedAfterTicks bool) {
	count := tier.TickCount(s.cfg.TickPeriod)
	valid := 0

	for index := 0; index < count; index++ {
		if aborted(ctx, monitorDone) {
			return ticks, false
		}

		if err := s.source.ResetCounters(ctx); err != nil && ctx.Err() == nil {
			s.logger.Debug().Err(err).Int("tick", index).Msg("Counter reset failed")
		}

		select {
		case <-ctx.Done():
			return ticks, false
		case <-monitorDone:
			return ticks, false
		case <-s.clock.After(s.cfg.TickPeriod):
		}

		if aborted(ctx, monitorDone) {
			return ticks, false
		}

		snapshot, err := s.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ticks, false
			}
			s.logger.Warn().Err(err).Int("tick", index).Msg("Benchmark tick has no data")
			snapshot = telemetry.Snapshot{Timestamp: s.clock.Now()}
		}

		tick := NewTick(index, snapshot)
		ticks = append(ticks, tick)
		if tick.Valid {
			valid++
		}
		s.recorder.BenchmarkTick(tier.Name, tick.Valid)

		s.logger.Debug().
			Int("tick", index).
			Bool("valid", tick.Valid).
			Int("algorithms", len(tick.Totals)).
			Msg("Benchmark tick")

		if s.cfg.MaxTicksEnabled && valid >= tier.ValidTicks {
			return ticks, true
		}
	}

	return ticks, false
}

func (s *Sampler) report(tier Tier, result Result) {
	for _, speed := range result.Speeds {
		spread := result.Dispersion[speed.Algorithm]
		s.logger.Debug().
			Str("tier", tier.Name).
			Str("algorithm", speed.Algorithm).
			Float64("speed", speed.Speed).
			Float64("min", spread.Min).
			Float64("median", spread.Median).
			Float64("max", spread.Max).
			Msg("Benchmark speed")
	}

	s.logger.Info().
		Str("tier", tier.Name).
		Str("outcome", string(result.Outcome)).
		Bool("success", result.Success).
		Int("ticks", result.TicksTotal).
		Int("valid_ticks", result.TicksValid).
		Int("used_ticks", result.TicksUsed).
		Msg("Benchmark finished")
}

// partial describes a canceled run without reducing its ticks.
func partial(ticks []Tick) Result {
	result := Result{TicksTotal: len(ticks), Reason: reasonCanceled}
	for _, tick := range ticks {
		if tick.Valid {
			result.TicksValid++
		}
	}
	return result
}

func aborted(ctx context.Context, monitorDone <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-monitorDone:
		return true
	default:
		return false
	}
}

// detached stands in when the caller has no process handle.
type detached struct{}

func (detached) Exited() <-chan struct{} { return nil }
func (detached) Stop() error             { return nil }
