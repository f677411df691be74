package metrics

import "net/http"

// Collector records poll loop and benchmark activity and exposes it for
// scraping. It satisfies both telemetry.Recorder and benchmark.Recorder.
type Collector interface {
	PollCycle()
	PollFailure(stage string)
	DeviceSpeed(device, algorithm string, speed float64)
	DevicePower(device string, watts float64)

	BenchmarkTick(tier string, valid bool)
	BenchmarkFinished(tier string, success bool, outcome string)

	// Handler serves the collected metrics in the Prometheus text format.
	Handler() http.Handler
	// Serve starts the HTTP endpoint in the background.
	Serve() error
	Close() error
}
