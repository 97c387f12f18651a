// Package process provides a Connection whose channels are backed by local child processes.
//
// Output is read by per-channel goroutines and queued; events are only dispatched to channel
// handlers from within ServiceOnce, on the caller's goroutine, in the order they were read.
package process

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pacoguzman/vx-common-spawn/internal/connector"
)

// ErrPTYUnsupported is returned by RequestPTY when the transport cannot allocate a terminal.
var ErrPTYUnsupported = errors.New("pseudo-terminal allocation not supported")

// ErrClosed is returned when opening a channel on a closed connection.
var ErrClosed = errors.New("connection closed")

// waitDelay bounds how long Wait keeps the pipes open after the process group was killed.
const waitDelay = 2 * time.Second

// CommandFunc builds the child process that runs command. pty reports whether a terminal
// was granted for the channel.
type CommandFunc func(ctx context.Context, command string, pty bool) *exec.Cmd

// Connection multiplexes process-backed channels over one event queue.
type Connection struct {
	*connector.Queue

	name     string
	build    CommandFunc
	allowPTY bool
	closed   atomic.Bool
}

// Option configures the Connection.
type Option func(*Connection)

// WithPTY allows channels to request a pseudo-terminal.
func WithPTY(allowed bool) Option {
	return func(c *Connection) {
		c.allowPTY = allowed
	}
}

// NewConnection creates a Connection that starts processes with build.
func NewConnection(name string, build CommandFunc, opts ...Option) *Connection {
	c := &Connection{
		Queue: connector.NewQueue(connector.DefaultQueueSize),
		name:  name,
		build: build,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenChannel creates a new, not yet executing, channel.
func (c *Connection) OpenChannel(ctx context.Context) (connector.Channel, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &Channel{Endpoint: c.NewEndpoint(), conn: c}, nil
}

// Close marks the connection closed. Running channels are not affected.
func (c *Connection) Close() error {
	c.closed.Store(true)
	return nil
}

// String returns a description of the connection.
func (c *Connection) String() string {
	return c.name
}

// Channel runs one command as a child process.
type Channel struct {
	*connector.Endpoint

	conn   *Connection
	pty    bool
	cancel context.CancelFunc
}

// RequestPTY grants a terminal when the connection allows it.
func (ch *Channel) RequestPTY(ctx context.Context) error {
	if !ch.conn.allowPTY {
		return ErrPTYUnsupported
	}
	ch.pty = true
	return nil
}

// Exec starts the child process. A start failure closes the channel.
func (ch *Channel) Exec(ctx context.Context, command string) error {
	procCtx, cancel := context.WithCancel(context.Background())
	ch.cancel = cancel

	cmd := ch.conn.build(procCtx, command, ch.pty)
	// Cancelling procCtx kills the whole group so grandchildren do not hold the pipes open.
	killGroupOnCancel(cmd)
	cmd.WaitDelay = waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		ch.fail()
		return fmt.Errorf("failed to attach stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		ch.fail()
		return fmt.Errorf("failed to attach stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		ch.fail()
		return fmt.Errorf("failed to start command: %w", err)
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go ch.Pump(&readers, connector.StreamStdout, stdout)
	go ch.Pump(&readers, connector.StreamStderr, stderr)

	go func() {
		// Wait must not run before the pipes are drained.
		readers.Wait()
		err := cmd.Wait()

		var exitErr *exec.ExitError
		switch {
		case err == nil:
			ch.Push(connector.ExitStatusEvent{Code: 0})
		case errors.As(err, &exitErr) && exitErr.ExitCode() >= 0:
			ch.Push(connector.ExitStatusEvent{Code: exitErr.ExitCode()})
		}
		// Killed by a signal: the channel closes without an exit status.
		ch.End()
	}()

	return nil
}

// Close kills the process group if it is still running and stops event delivery.
func (ch *Channel) Close() error {
	if ch.Stop() && ch.cancel != nil {
		ch.cancel()
	}
	return nil
}

func (ch *Channel) fail() {
	if ch.cancel != nil {
		ch.cancel()
	}
	go ch.End()
}

// Ensure Connection implements the connector.Connection interface.
var _ connector.Connection = (*Connection)(nil)
