package miner

import (
	"strings"

	"codeberg.org/mutker/excavatorctl/internal/benchmark"
	"codeberg.org/mutker/excavatorctl/internal/clock"
	"codeberg.org/mutker/excavatorctl/internal/gpu"
	"codeberg.org/mutker/excavatorctl/internal/logger"
	"codeberg.org/mutker/excavatorctl/internal/telemetry"
)

type Config struct {
	Devices    []telemetry.DeviceRef
	Algorithms []string
	Loop       telemetry.LoopConfig
	Benchmark  benchmark.Config
	// Tiers replace the built-in tiers of the same name.
	Tiers map[string]benchmark.Tier
}

func DefaultConfig() Config {
	return Config{
		Algorithms: []string{telemetry.DefaultAlgorithm},
		Loop:       telemetry.DefaultLoopConfig(),
		Benchmark:  benchmark.DefaultConfig(),
	}
}

// Tier resolves a tier by name, preferring configured overrides.
func (c Config) Tier(name string) (benchmark.Tier, error) {
	for key, tier := range c.Tiers {
		if strings.EqualFold(key, strings.TrimSpace(name)) {
			if tier.Name == "" {
				tier.Name = strings.ToLower(key)
			}
			return tier, tier.Validate()
		}
	}
	return benchmark.ParseTier(name)
}

// Recorder receives both telemetry loop and benchmark events.
type Recorder interface {
	telemetry.Recorder
	benchmark.Recorder
}

// Option customizes a Miner.
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

func WithPowerReader(r gpu.PowerReader) Option {
	return func(o *options) { o.power = r }
}
