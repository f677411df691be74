package benchmark

import (
	"time"

	"codeberg.org/mutker/excavatorctl/internal/clock"
	"codeberg.org/mutker/excavatorctl/internal/errors"
	"codeberg.org/mutker/excavatorctl/internal/logger"
)

const (
	DefaultTickPeriod = 10 * time.Second
	DefaultGrace      = 5 * time.Second
)

// Config configures a Sampler.
type Config struct {
	// TickPeriod is the wait between a counter reset and the read.
	TickPeriod time.Duration
	// Grace is added to the tier duration before the run times out.
	Grace time.Duration
	// MaxTicksEnabled stops a run as soon as the tier's valid tick
	// count has been reached.
	MaxTicksEnabled bool
}

func DefaultConfig() Config {
	return Config{
		TickPeriod:      DefaultTickPeriod,
		Grace:           DefaultGrace,
		MaxTicksEnabled: true,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.TickPeriod <= 0 {
		return errFactory.New(errors.ErrInvalidInterval).WithData(c.TickPeriod)
	}
	if c.Grace < 0 {
		return errFactory.WithData(ErrInvalidConfig, "grace must not be negative")
	}
	return nil
}

// Option customizes a Sampler.
type Option func(*Sampler)

func WithClock(c clock.Clock) Option {
	return func(s *Sampler) { s.clock = c }
}

func WithLogger(log logger.Logger) Option {
	return func(s *Sampler) { s.logger = log }
}

func WithRecorder(r Recorder) Option {
	return func(s *Sampler) { s.recorder = r }
}
