package benchmark

// Process is the worker being benchmarked.
type Process interface {
	// Exited is closed once the process has terminated.
	Exited() <-chan struct{}
	// Stop asks the process to shut down gracefully.
	Stop() error
}

// Recorder receives benchmark progress for instrumentation.
type Recorder interface {
	BenchmarkTick(tier string, valid bool)
	BenchmarkFinished(tier string, success bool, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) BenchmarkTick(string, bool)             {}
func (nopRecorder) BenchmarkFinished(string, bool, string) {}
