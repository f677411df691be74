// Package clock abstracts the time operations used by the polling loop and
// the benchmark sampler so tests can drive them deterministically.
package clock

import (
	"context"
	"time"
)

// Clock is the subset of the time package the supervisor depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed. If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}

// Sleep waits for d on c or until ctx is done, whichever happens first.
// It returns ctx.Err() when the wait was cut short.
func Sleep(ctx context.Context, c Clock, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.After(d):
		return nil
	}
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
