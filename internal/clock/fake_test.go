package clock_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/mutker/excavatorctl/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	c := clock.Fake(epoch)
	ch := c.After(10 * time.Second)

	c.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired before deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case fired := <-ch:
		assert.Equal(t, epoch.Add(10*time.Second), fired)
	default:
		t.Fatal("did not fire at deadline")
	}
	assert.Zero(t, c.PendingCount())
}

func TestFakeAfterNonPositive(t *testing.T) {
	c := clock.Fake(epoch)

	select {
	case <-c.After(0):
	default:
		t.Fatal("zero duration must fire immediately")
	}
	assert.Zero(t, c.PendingCount())
}

func TestSleepCanceled(t *testing.T) {
	c := clock.Fake(epoch)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- clock.Sleep(ctx, c, time.Hour) }()

	c.WaitForTimers(1)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sleep ignored cancellation")
	}
}

func TestSleepCompletes(t *testing.T) {
	c := clock.Fake(epoch)

	done := make(chan error, 1)
	go func() { done <- clock.Sleep(context.Background(), c, 30*time.Second) }()

	c.WaitForTimers(1)
	c.Advance(30 * time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sleep did not complete")
	}
}
