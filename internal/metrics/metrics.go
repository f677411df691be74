package metrics

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"codeberg.org/mutker/excavatorctl/internal/errors"
	"codeberg.org/mutker/excavatorctl/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

type service struct {
	cfg      Config
	registry *prometheus.Registry

	pollCycles   prometheus.Counter
	pollFailures *prometheus.CounterVec
	deviceSpeed  *prometheus.GaugeVec
	devicePower  *prometheus.GaugeVec
	ticks        *prometheus.CounterVec
	benchmarks   *prometheus.CounterVec

	mu     sync.Mutex
	server *http.Server
}

// No-op implementation
type noopMetricsCollector struct{}

func NewService(cfg Config) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	// If metrics are disabled, return a no-op collector
	if !cfg.Enabled {
		logger.Debug().Msg("Metrics collection disabled, using no-op collector")
		return &noopMetricsCollector{}, nil
	}

	s, err := newService(cfg)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("address", cfg.Address).
		Bool("enabled", cfg.Enabled).
		Msg("Metrics service initialized successfully")

	return s, nil
}

func newService(cfg Config) (*service, error) {
	errFactory := errors.New()

	if cfg.Namespace == "" {
		cfg.Namespace = defaultNamespace
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, errFactory.Wrap(ErrRegisterFailed, err)
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, errFactory.Wrap(ErrRegisterFailed, err)
	}

	factory := promauto.With(registry)
	ns := cfg.Namespace

	return &service{
		cfg:      cfg,
		registry: registry,
		pollCycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "poll_cycles_total",
			Help:      "Telemetry poll cycles started.",
		}),
		pollFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "poll_failures_total",
			Help:      "Telemetry poll cycle failures by stage (reset, fetch).",
		}, []string{"stage"}),
		deviceSpeed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "device_speed_hashes_per_second",
			Help:      "Last published speed per device and algorithm.",
		}, []string{"device", "algorithm"}),
		devicePower: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "device_power_watts",
			Help:      "Last published power usage per device.",
		}, []string{"device"}),
		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "benchmark_ticks_total",
			Help:      "Benchmark ticks by tier and validity.",
		}, []string{"tier", "valid"}),
		benchmarks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "benchmarks_total",
			Help:      "Finished benchmark runs by tier, outcome and success.",
		}, []string{"tier", "outcome", "success"}),
	}, nil
}

func (s *service) PollCycle() {
	s.pollCycles.Inc()
}

func (s *service) PollFailure(stage string) {
	s.pollFailures.WithLabelValues(stage).Inc()
}

func (s *service) DeviceSpeed(device, algorithm string, speed float64) {
	s.deviceSpeed.WithLabelValues(device, algorithm).Set(speed)
}

func (s *service) DevicePower(device string, watts float64) {
	s.devicePower.WithLabelValues(device).Set(watts)
}

func (s *service) BenchmarkTick(tier string, valid bool) {
	s.ticks.WithLabelValues(tier, strconv.FormatBool(valid)).Inc()
}

func (s *service) BenchmarkFinished(tier string, success bool, outcome string) {
	s.benchmarks.WithLabelValues(tier, outcome, strconv.FormatBool(success)).Inc()
}

func (s *service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

func (s *service) Serve() error {
	errFactory := errors.New()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errFactory.New(errors.ErrAlreadyRunning)
	}

	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return errFactory.Wrap(ErrServeFailed, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func(server *http.Server) {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithCode(errFactory.Wrap(ErrServeFailed, err)).Msg("Metrics endpoint stopped")
		}
	}(s.server)

	logger.Info().Str("address", listener.Addr().String()).Msg("Serving metrics")

	return nil
}

func (s *service) Close() error {
	errFactory := errors.New()

	s.mu.Lock()
	server := s.server
	s.server = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}
	return nil
}

// No-op implementation
func (*noopMetricsCollector) PollCycle()                             {}
func (*noopMetricsCollector) PollFailure(string)                     {}
func (*noopMetricsCollector) DeviceSpeed(string, string, float64)    {}
func (*noopMetricsCollector) DevicePower(string, float64)            {}
func (*noopMetricsCollector) BenchmarkTick(string, bool)             {}
func (*noopMetricsCollector) BenchmarkFinished(string, bool, string) {}

func (*noopMetricsCollector) Handler() http.Handler {
	return http.NotFoundHandler()
}

func (*noopMetricsCollector) Serve() error {
	return nil
}

func (*noopMetricsCollector) Close() error {
	return nil
}
