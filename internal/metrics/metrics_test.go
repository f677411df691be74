package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"codeberg.org/mutker/excavatorctl/internal/errors"
	"codeberg.org/mutker/excavatorctl/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, collector metrics.Collector) string {
	t.Helper()

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestNewServiceDisabled(t *testing.T) {
	collector, err := metrics.NewService(metrics.DefaultConfig())
	require.NoError(t, err)

	collector.PollCycle()
	require.NoError(t, collector.Serve())
	require.NoError(t, collector.Close())
}

func TestNewServiceInvalidAddress(t *testing.T) {
	_, err := metrics.NewService(metrics.Config{Enabled: true, Address: "no-port"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, metrics.ErrInvalidAddress))
}

func TestCollectorRecords(t *testing.T) {
	collector, err := metrics.NewService(metrics.Config{Enabled: true, Address: "127.0.0.1:0"})
	require.NoError(t, err)

	collector.PollCycle()
	collector.PollCycle()
	collector.PollFailure("fetch")
	collector.DeviceSpeed("GPU-aaaa", "daggerhashimoto", 31.5)
	collector.DevicePower("GPU-aaaa", 120)
	collector.BenchmarkTick("quick", true)
	collector.BenchmarkTick("quick", false)
	collector.BenchmarkFinished("quick", true, "stopped_after_ticks")

	body := scrape(t, collector)
	for _, line := range []string{
		`excavatorctl_poll_cycles_total 2`,
		`excavatorctl_poll_failures_total{stage="fetch"} 1`,
		`excavatorctl_device_speed_hashes_per_second{algorithm="daggerhashimoto",device="GPU-aaaa"} 31.5`,
		`excavatorctl_device_power_watts{device="GPU-aaaa"} 120`,
		`excavatorctl_benchmark_ticks_total{tier="quick",valid="false"} 1`,
		`excavatorctl_benchmark_ticks_total{tier="quick",valid="true"} 1`,
		`excavatorctl_benchmarks_total{outcome="stopped_after_ticks",success="true",tier="quick"} 1`,
	} {
		assert.True(t, strings.Contains(body, line), "missing %q", line)
	}
}

func TestServeAndClose(t *testing.T) {
	collector, err := metrics.NewService(metrics.Config{Enabled: true, Address: "127.0.0.1:0"})
	require.NoError(t, err)

	require.NoError(t, collector.Serve())
	err = collector.Serve()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))

	require.NoError(t, collector.Close())
	require.NoError(t, collector.Close())
}
