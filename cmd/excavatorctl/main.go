package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/excavatorctl/internal/api"
	"codeberg.org/mutker/excavatorctl/internal/benchmark"
	"codeberg.org/mutker/excavatorctl/internal/clock"
	"codeberg.org/mutker/excavatorctl/internal/config"
	"codeberg.org/mutker/excavatorctl/internal/errors"
	"codeberg.org/mutker/excavatorctl/internal/gpu"
	"codeberg.org/mutker/excavatorctl/internal/logger"
	"codeberg.org/mutker/excavatorctl/internal/metrics"
	"codeberg.org/mutker/excavatorctl/internal/miner"
	"codeberg.org/mutker/excavatorctl/internal/pid"
	"codeberg.org/mutker/excavatorctl/internal/telemetry"
	"github.com/spf13/cobra"
)

var cfg *config.Config

func main() {
	root := &cobra.Command{
		Use:   "excavatorctl",
		Short: "Supervise a running Excavator worker",
		Long: `excavatorctl attaches to a running Excavator worker by PID and API address.

The monitor command keeps a cached telemetry snapshot fresh until the worker
exits. The benchmark command runs one benchmark tier and prints the result
as JSON.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cmd.Flags())
			if err != nil {
				return err
			}

			logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
			logger.Debug().Msg("Config loaded")

			return nil
		},
	}

	config.RegisterFlags(root.PersistentFlags())
	root.AddCommand(monitorCommand(), benchmarkCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "excavatorctl: %v\n", err)
		os.Exit(1)
	}
}

func monitorCommand() *cobra.Command {
	var every time.Duration

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll worker telemetry until the worker exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			return monitor(ctx, a, every)
		},
	}

	cmd.Flags().DurationVar(&every, "report-interval", telemetry.DefaultPollInterval, "How often to log cached stats")

	return cmd
}

func benchmarkCommand() *cobra.Command {
	var scale float64

	cmd := &cobra.Command{
		Use:   "benchmark [quick|standard|precise]",
		Short: "Benchmark the worker for one tier and print the result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := benchmark.Standard.Name
			if len(args) == 1 {
				name = args[0]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			tier, err := a.miner.Tier(name)
			if err != nil {
				return err
			}

			result := a.miner.RunBenchmark(ctx, tier.Scale(scale), a.worker)

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(result); err != nil {
				return errors.New().Wrap(errors.ErrInternal, err)
			}

			if !result.Success {
				return errors.New().WithData(errors.ErrOperationFailed, result.Reason)
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&scale, "scale", 1, "Multiply the tier duration by this factor")

	return cmd
}

type app struct {
	miner   *miner.Miner
	worker  *pid.Process
	metrics metrics.Collector
	power   gpu.PowerReader
}

func setup(ctx context.Context) (*app, error) {
	errFactory := errors.New()

	if cfg.WorkerPID == 0 {
		return nil, errFactory.WithData(errors.ErrMissingConfig, "worker_pid")
	}

	if err := pid.Write(cfg.PIDFile); err != nil {
		return nil, err
	}

	a := &app{power: gpu.NoopPowerReader{}}

	if cfg.Power {
		reader, err := gpu.NewPowerReader(logger.Default().With("gpu"))
		if err != nil {
			logger.Warn().Err(err).Msg("NVML unavailable, power usage will read as zero")
		} else {
			a.power = reader
		}
	}

	collector, err := metrics.NewService(metrics.Config{
		Enabled: cfg.MetricsEnabled(),
		Address: cfg.MetricsAddress,
	})
	if err != nil {
		a.close()
		return nil, errFactory.Wrap(errors.ErrInitMetrics, err)
	}
	a.metrics = collector
	if err := collector.Serve(); err != nil {
		a.close()
		return nil, errFactory.Wrap(errors.ErrInitMetrics, err)
	}

	a.worker, err = pid.Attach(ctx, clock.Real(), cfg.WorkerPID, pid.DefaultWatchPeriod)
	if err != nil {
		a.close()
		return nil, err
	}

	client := api.NewTCPClient(cfg.APIAddress, cfg.RequestTimeout)
	a.miner, err = miner.New(minerConfig(cfg), client,
		miner.WithLogger(logger.Default()),
		miner.WithPowerReader(a.power),
		miner.WithRecorder(collector),
	)
	if err != nil {
		a.close()
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	logger.Info().
		Int("worker_pid", cfg.WorkerPID).
		Str("api_address", cfg.APIAddress).
		Int("devices", len(cfg.Devices)).
		Msg("Attached to worker")

	return a, nil
}

func (a *app) close() {
	if a.miner != nil {
		a.miner.Stop()
	}
	if a.metrics != nil {
		if err := a.metrics.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close metrics")
		}
	}
	if err := a.power.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("failed to shut down NVML")
	}
	if err := pid.Remove(cfg.PIDFile); err != nil {
		logger.Error().Err(err).Msg("failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}

func monitor(ctx context.Context, a *app, every time.Duration) error {
	if err := a.miner.StartTelemetryLoop(a.worker.Exited()); err != nil {
		return err
	}

	done, err := a.miner.Done()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Received termination signal.")
			return nil
		case <-done:
			return nil
		case <-ticker.C:
			logStats(a.miner.GetCachedStats())
		}
	}
}

func logStats(stats miner.Stats) {
	if stats.Timestamp.IsZero() {
		logger.Info().Msg("No telemetry published yet")
		return
	}

	age := time.Since(stats.Timestamp).Round(time.Second)
	for _, total := range stats.Totals {
		logger.Info().
			Str("algorithm", total.Algorithm).
			Float64("speed", total.Speed).
			Float64("power_usage", stats.PowerUsage).
			Dur("age", age).
			Msg("Worker speed")
	}
}

func minerConfig(c *config.Config) miner.Config {
	mc := miner.DefaultConfig()

	mc.Devices = make([]telemetry.DeviceRef, 0, len(c.Devices))
	for _, device := range c.Devices {
		mc.Devices = append(mc.Devices, telemetry.DeviceRef(device))
	}
	if len(c.Algorithms) > 0 {
		mc.Algorithms = c.Algorithms
	}

	mc.Loop.Interval = c.PollInterval
	mc.Benchmark.TickPeriod = c.TickInterval
	mc.Benchmark.Grace = c.BenchmarkGrace
	mc.Benchmark.MaxTicksEnabled = c.MaxTicksEnabled

	mc.Tiers = make(map[string]benchmark.Tier, len(c.Tiers))
	for name, tier := range c.Tiers {
		mc.Tiers[name] = benchmark.Tier{Name: name, Duration: tier.Duration, ValidTicks: tier.Ticks}
	}

	return mc
}
