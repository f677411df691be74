package telemetry

import (
	"codeberg.org/mutker/excavatorctl/internal/clock"
	"codeberg.org/mutker/excavatorctl/internal/gpu"
	"codeberg.org/mutker/excavatorctl/internal/logger"
)

// Option customizes a Fetcher or a Loop.
type Option func(*options)

type options struct {
	clock    clock.Clock
	logger   logger.Logger
	recorder Recorder
	power    gpu.PowerReader
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(log logger.Logger) Option {
	return func(o *options) { o.logger = log }
}

func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithPowerReader fills snapshot power figures from r.
func WithPowerReader(r gpu.PowerReader) Option {
	return func(o *options) { o.power = r }
}

func newOptions(opts []Option) options {
	o := options{
		clock:    clock.Real(),
		logger:   logger.Default(),
		recorder: nopRecorder{},
		power:    gpu.NoopPowerReader{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
