package pid

import (
	"context"
	"os"
	"syscall"
	"time"

	"codeberg.org/mutker/excavatorctl/internal/clock"
	"codeberg.org/mutker/excavatorctl/internal/errors"
)

const DefaultWatchPeriod = time.Second

// Process is a running process observed by PID. It is not a child of this
// process, so exit is detected by polling.
type Process struct {
	pid     int
	process *os.Process
	exited  chan struct{}
}

// Attach starts watching pid until ctx is canceled. It fails if no such
// process is running.
func Attach(ctx context.Context, clk clock.Clock, pid int, period time.Duration) (*Process, error) {
	errFactory := errors.New()

	if !Alive(pid) {
		return nil, errFactory.New(errors.ErrAttachWorker).WithData(pid)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrAttachWorker, err)
	}

	if period <= 0 {
		period = DefaultWatchPeriod
	}

	p := &Process{
		pid:     pid,
		process: process,
		exited:  make(chan struct{}),
	}
	go p.watch(ctx, clk, period)

	return p, nil
}

func (p *Process) PID() int {
	return p.pid
}

// Exited is closed once the process is gone.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Stop sends SIGTERM. Stopping a process that already exited is not an
// error.
func (p *Process) Stop() error {
	err := p.process.Signal(syscall.SIGTERM)
	if err == nil || errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return errors.New().Wrap(errors.ErrShutdownFailed, err)
}

func (p *Process) watch(ctx context.Context, clk clock.Clock, period time.Duration) {
	for {
		if !Alive(p.pid) {
			close(p.exited)
			return
		}
		if err := clock.Sleep(ctx, clk, period); err != nil {
			return
		}
	}
}
