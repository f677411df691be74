package api

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"time"

	"codeberg.org/mutker/excavatorctl/internal/errors"
)

const (
	DefaultTimeout = 5 * time.Second

	lineTerminator = "\r\n"
	maxLineBytes   = 1 << 20
)

// Client sends one command to the worker's API and returns the raw response.
type Client interface {
	Request(ctx context.Context, command string) (string, error)
}

type tcpClient struct {
	address string
	timeout time.Duration
	dialer  net.Dialer
}

// NewTCPClient returns a Client that opens one connection per request to
// address. A non-positive timeout selects DefaultTimeout.
func NewTCPClient(address string, timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &tcpClient{address: address, timeout: timeout}
}

// Do sends cmd through client.
func Do(ctx context.Context, client Client, cmd Command) (string, error) {
	return client.Request(ctx, cmd.String())
}

func (c *tcpClient) Request(ctx context.Context, command string) (string, error) {
	errFactory := errors.New()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return "", c.fail(ctx, ErrDial, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return "", errFactory.Wrap(ErrDial, err)
		}
	}

	// Unblock pending I/O as soon as the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if !strings.HasSuffix(command, "\n") {
		command += lineTerminator
	}
	if _, err := io.WriteString(conn, command); err != nil {
		return "", c.fail(ctx, ErrWrite, err)
	}

	reader := bufio.NewReaderSize(io.LimitReader(conn, maxLineBytes), 4096)
	line, err := reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", c.fail(ctx, ErrRead, err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}

func (c *tcpClient) fail(ctx context.Context, code errors.ErrorCode, err error) error {
	errFactory := errors.New()

	ctxErr := ctx.Err()
	if errors.Is(ctxErr, context.Canceled) {
		return errFactory.Wrap(ErrCanceled, ctxErr)
	}

	var netErr net.Error
	if ctxErr != nil || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errFactory.Wrap(errors.ErrTimeout, errFactory.Wrap(code, err))
	}

	return errFactory.Wrap(code, err)
}
