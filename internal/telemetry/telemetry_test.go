package telemetry_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"codeberg.org/mutker/excavatorctl/internal/api"
	"codeberg.org/mutker/excavatorctl/internal/clock"
	"codeberg.org/mutker/excavatorctl/internal/errors"
	"codeberg.org/mutker/excavatorctl/internal/logger"
	"codeberg.org/mutker/excavatorctl/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient answers by method name and records every command sent.
type fakeClient struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	sent      []api.Command
}

func (c *fakeClient) Request(_ context.Context, command string) (string, error) {
	var cmd api.Command
	if err := json.Unmarshal([]byte(strings.TrimSpace(command)), &cmd); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, cmd)

	if err := c.errs[cmd.Method]; err != nil {
		return "", err
	}
	return c.responses[cmd.Method], nil
}

type fakePower map[string]float64

func (p fakePower) PowerUsage(uuid string) (float64, error) {
	watts, ok := p[uuid]
	if !ok {
		return 0, fmt.Errorf("no power reading for %s", uuid)
	}
	return watts, nil
}

func (fakePower) Shutdown() error { return nil }

func newTestFetcher(t *testing.T, client api.Client, opts ...telemetry.Option) *telemetry.Fetcher {
	t.Helper()

	opts = append([]telemetry.Option{
		telemetry.WithClock(clock.Fake(epoch)),
		telemetry.WithLogger(logger.Nop()),
	}, opts...)

	fetcher, err := telemetry.NewFetcher(telemetry.FetcherConfig{
		Devices:    []telemetry.DeviceRef{"GPU-aaaa", "GPU-bbbb"},
		Algorithms: []string{"DaggerHashimoto"},
	}, client, opts...)
	require.NoError(t, err)

	return fetcher
}

func TestNewFetcherRequiresDevices(t *testing.T) {
	_, err := telemetry.NewFetcher(telemetry.FetcherConfig{}, &fakeClient{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, telemetry.ErrNoDevices))

	_, err = telemetry.NewFetcher(telemetry.FetcherConfig{Devices: []telemetry.DeviceRef{""}}, &fakeClient{})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, telemetry.ErrInvalidConfig))
}

func TestFetchBuildsSnapshot(t *testing.T) {
	raw := `{"id":123456789,"error":null,"workers":[
		{"worker_id":0,"device_uuid":"gpu-AAAA","algorithms":[{"name":"daggerhashimoto","speed":30.5},{"name":"kheavyhash","speed":4}]},
		{"worker_id":1,"device_uuid":"GPU-bbbb","algorithms":[{"name":"DaggerHashimoto","speed":20}]},
		{"worker_id":2,"device_uuid":"GPU-bbbb","algorithms":[{"name":"daggerhashimoto","speed":1}]},
		{"worker_id":3,"device_uuid":"GPU-other","algorithms":[{"name":"daggerhashimoto","speed":500}]}
	]}`
	client := &fakeClient{responses: map[string]string{api.MethodWorkerList: raw}}
	fetcher := newTestFetcher(t, client, telemetry.WithPowerReader(fakePower{"GPU-aaaa": 120, "GPU-bbbb": 95.5}))

	snapshot, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, epoch, snapshot.Timestamp)
	assert.Equal(t, raw, snapshot.RawResponse)
	assert.Equal(t, []telemetry.DeviceRef{"GPU-aaaa", "GPU-bbbb"}, snapshot.Devices)
	assert.Equal(t, []telemetry.SpeedSample{
		{Device: "GPU-aaaa", Algorithm: "daggerhashimoto", Speed: 30.5},
		{Device: "GPU-aaaa", Algorithm: "kheavyhash", Speed: 4},
	}, snapshot.Speeds["GPU-aaaa"])
	assert.Equal(t, []telemetry.SpeedSample{
		{Device: "GPU-bbbb", Algorithm: "daggerhashimoto", Speed: 21},
	}, snapshot.Speeds["GPU-bbbb"], "entries for one device and algorithm are merged")
	assert.InDelta(t, 215.5, snapshot.TotalPowerUsage, 1e-9)
	assert.InDelta(t, 95.5, snapshot.PowerUsagePerDevice["GPU-bbbb"], 1e-9)
}

func TestFetchMissingDeviceReportsZero(t *testing.T) {
	raw := `{"id":1,"error":null,"workers":[
		{"worker_id":0,"device_uuid":"GPU-aaaa","algorithms":[{"name":"daggerhashimoto","speed":30}]}
	]}`
	client := &fakeClient{responses: map[string]string{api.MethodWorkerList: raw}}
	fetcher := newTestFetcher(t, client)

	snapshot, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []telemetry.SpeedSample{
		{Device: "GPU-bbbb", Algorithm: "daggerhashimoto", Speed: 0},
	}, snapshot.Speeds["GPU-bbbb"])
	assert.Equal(t, []telemetry.AlgorithmSpeed{{Algorithm: "daggerhashimoto", Speed: 30}}, snapshot.AlgorithmTotals())
}

func TestFetchClampsNegativeSpeed(t *testing.T) {
	raw := `{"id":1,"error":null,"workers":[
		{"device_uuid":"GPU-aaaa","algorithms":[{"name":"daggerhashimoto","speed":-3}]},
		{"device_uuid":"GPU-bbbb","algorithms":[{"name":"daggerhashimoto","speed":2}]}
	]}`
	fetcher := newTestFetcher(t, &fakeClient{responses: map[string]string{api.MethodWorkerList: raw}})

	snapshot, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snapshot.Speeds["GPU-aaaa"][0].Speed)
}

func TestFetchPowerFailureIsNotFatal(t *testing.T) {
	raw := `{"id":1,"error":null,"workers":[]}`
	fetcher := newTestFetcher(t,
		&fakeClient{responses: map[string]string{api.MethodWorkerList: raw}},
		telemetry.WithPowerReader(fakePower{"GPU-aaaa": 100}))

	snapshot, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 100, snapshot.TotalPowerUsage, 1e-9)
	assert.NotContains(t, snapshot.PowerUsagePerDevice, telemetry.DeviceRef("GPU-bbbb"))
}

func TestFetchErrors(t *testing.T) {
	t.Run("transport", func(t *testing.T) {
		client := &fakeClient{errs: map[string]error{api.MethodWorkerList: fmt.Errorf("connection refused")}}
		_, err := newTestFetcher(t, client).Fetch(context.Background())
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, telemetry.ErrFetchFailed))
	})

	t.Run("malformed", func(t *testing.T) {
		client := &fakeClient{responses: map[string]string{api.MethodWorkerList: "{"}}
		_, err := newTestFetcher(t, client).Fetch(context.Background())
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, telemetry.ErrFetchFailed))
		assert.True(t, errors.HasCode(err, api.ErrMalformedResponse))
	})
}

func TestResetCountersAddressesEveryWorker(t *testing.T) {
	client := &fakeClient{}
	fetcher := newTestFetcher(t, client)

	require.NoError(t, fetcher.ResetCounters(context.Background()))
	require.NoError(t, fetcher.PrintEfficiencies(context.Background()))

	require.Len(t, client.sent, 2)
	assert.Equal(t, api.WorkersReset(2), client.sent[0])
	assert.Equal(t, api.MethodPrintEfficiencies, client.sent[1].Method)

	client.errs = map[string]error{api.MethodWorkersReset: fmt.Errorf("refused")}
	err := fetcher.ResetCounters(context.Background())
	assert.True(t, errors.HasCode(err, telemetry.ErrResetFailed))
}
