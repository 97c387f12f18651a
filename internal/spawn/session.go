// Package spawn runs shell commands over an established connection while enforcing an
// execution timeout and an inactivity timeout.
//
// A Session drives exactly one channel per Spawn call on the caller's goroutine. The only
// suspension point is the connection's ServiceOnce, which blocks for at most the poll
// interval. A Session must not be used by two goroutines at once; use one connection per
// concurrent call.
package spawn

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pacoguzman/vx-common-spawn/internal/connector"
)

// DefaultPollInterval bounds how late a fired timeout is noticed.
const DefaultPollInterval = 100 * time.Millisecond

// Sink receives raw output chunks from both streams in delivery order.
type Sink func([]byte)

// WriterSink returns a Sink that writes every chunk to w, ignoring write errors.
func WriterSink(w io.Writer) Sink {
	return func(b []byte) {
		_, _ = w.Write(b)
	}
}

// Options controls a single Spawn call.
type Options struct {
	// PTY requests a pseudo-terminal for the command.
	PTY bool

	// Chdir changes to this directory before running the command.
	Chdir string

	// Timeout bounds the total execution time. Zero disables it.
	Timeout time.Duration

	// ReadTimeout bounds the silence between output chunks. Zero disables it.
	ReadTimeout time.Duration
}

// Session executes commands over a caller-owned connection.
type Session struct {
	conn         connector.Connection
	logger       *zap.Logger
	pollInterval time.Duration
	clock        Clock
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPollInterval sets how long one servicing slice may block.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithClock sets the clock used by the timeout policies.
func WithClock(clock Clock) Option {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New creates a session on an already open connection.
func New(conn connector.Connection, opts ...Option) *Session {
	s := &Session{
		conn:         conn,
		logger:       zap.NewNop(),
		pollInterval: DefaultPollInterval,
		clock:        realClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn runs argv and returns its exit code, -1 when the command was killed.
// It returns *TimeoutError or *ReadTimeoutError when a timeout fired.
func (s *Session) Spawn(ctx context.Context, env Env, argv []string, opts Options, sink Sink) (int, error) {
	result, err := s.Run(ctx, env, argv, opts, sink)
	if err != nil {
		return 0, err
	}
	return result.ExitCode, nil
}

// Run is Spawn returning the explicit result.
func (s *Session) Run(ctx context.Context, env Env, argv []string, opts Options, sink Sink) (Result, error) {
	command := BuildCommand(env, JoinArgv(argv), opts.Chdir)

	logger := s.logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("connection", s.conn.String()),
	)

	timeout := NewPolicy(opts.Timeout, WithPolicyClock(s.clock))
	readTimeout := NewPolicy(opts.ReadTimeout, WithPolicyClock(s.clock))

	logger.Debug("spawning command",
		zap.String("command", command),
		zap.Bool("pty", opts.PTY),
		zap.Duration("timeout", timeout.Value()),
		zap.Duration("read_timeout", readTimeout.Value()),
	)

	ex, err := openChannel(ctx, s.conn, command, opts.PTY, readTimeout, sink, logger)
	if err != nil {
		return Result{}, err
	}
	defer ex.close()

	reason, err := drive(ctx, s.conn, s.pollInterval, pollChannel(ex.channel, timeout, readTimeout))
	logger.Debug("poll loop stopped", zap.Stringer("reason", reason))

	switch reason {
	case StopCanceled:
		return Result{}, fmt.Errorf("spawn canceled: %w", err)
	case StopTransportError:
		// The only visible effect of a dropped transport is a missing exit status.
		logger.Warn("connection failed while servicing channel", zap.Error(err))
	}

	result, err := resolve(command, ex.exitStatus, timeout, readTimeout)
	if err != nil {
		logger.Debug("command timed out", zap.Error(err))
		return Result{}, err
	}

	logger.Debug("command finished", zap.Int("exit_code", result.ExitCode), zap.Bool("killed", result.Killed))
	return result, nil
}
