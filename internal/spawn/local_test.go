package spawn_test

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacoguzman/vx-common-spawn/internal/connector/local"
	"github.com/pacoguzman/vx-common-spawn/internal/spawn"
)

type output struct {
	mu sync.Mutex
	sb strings.Builder
}

func (o *output) sink(b []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sb.Write(b)
}

func (o *output) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sb.String()
}

func newLocalSession(t *testing.T) *spawn.Session {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	conn := local.New()
	t.Cleanup(func() { conn.Close() })
	return spawn.New(conn, spawn.WithPollInterval(20*time.Millisecond))
}

func TestLocalSpawnExitCode(t *testing.T) {
	s := newLocalSession(t)
	var out output

	code, err := s.Spawn(context.Background(), nil, []string{"echo", "out;", "echo", "err", ">&2;", "exit", "3"}, spawn.Options{}, out.sink)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Contains(t, out.String(), "out\n")
	assert.Contains(t, out.String(), "err\n")
}

func TestLocalSpawnEnvAndChdir(t *testing.T) {
	s := newLocalSession(t)
	dir := t.TempDir()
	var out output

	env := spawn.Env{{Key: "GREETING", Value: "hello"}}
	code, err := s.Spawn(context.Background(), env, []string{"sh", "-c", "'pwd; printenv GREETING'"}, spawn.Options{Chdir: dir}, out.sink)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, dir, lines[0])
	assert.Equal(t, "hello", lines[1])
}

func TestLocalSpawnTimeoutWhileProducingOutput(t *testing.T) {
	s := newLocalSession(t)

	start := time.Now()
	_, err := s.Spawn(context.Background(), nil, []string{"while true; do echo tick; sleep 0.1; done"},
		spawn.Options{Timeout: time.Second, ReadTimeout: 5 * time.Second}, nil)
	elapsed := time.Since(start)

	var timeoutErr *spawn.TimeoutError
	require.True(t, errors.As(err, &timeoutErr), "expected TimeoutError, got %v", err)
	assert.Equal(t, time.Second, timeoutErr.Duration)
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 3*time.Second)
}

func TestLocalSpawnReadTimeout(t *testing.T) {
	s := newLocalSession(t)
	var out output

	start := time.Now()
	_, err := s.Spawn(context.Background(), nil, []string{"echo started; sleep 30"},
		spawn.Options{Timeout: 10 * time.Second, ReadTimeout: 2 * time.Second}, out.sink)
	elapsed := time.Since(start)

	var readErr *spawn.ReadTimeoutError
	require.True(t, errors.As(err, &readErr), "expected ReadTimeoutError, got %v", err)
	assert.Equal(t, 2*time.Second, readErr.Duration)
	assert.GreaterOrEqual(t, elapsed, 2*time.Second)
	assert.Less(t, elapsed, 5*time.Second)
	assert.Equal(t, "started\n", out.String())
}

func TestLocalSpawnKilledBySignal(t *testing.T) {
	s := newLocalSession(t)

	result, err := s.Run(context.Background(), nil, []string{"kill -9 $$"}, spawn.Options{}, nil)
	require.NoError(t, err)
	assert.True(t, result.Killed)
	assert.Equal(t, -1, result.ExitCode)
}

func TestLocalSpawnPTYRefused(t *testing.T) {
	s := newLocalSession(t)

	_, err := s.Spawn(context.Background(), nil, []string{"true"}, spawn.Options{PTY: true}, nil)

	var ptyErr *spawn.PTYError
	assert.True(t, errors.As(err, &ptyErr), "expected PTYError, got %v", err)
}

func TestLocalSessionIsReusable(t *testing.T) {
	s := newLocalSession(t)

	for i := 0; i < 3; i++ {
		var out output
		code, err := s.Spawn(context.Background(), nil, []string{"echo", "run"}, spawn.Options{}, out.sink)
		require.NoError(t, err)
		assert.Equal(t, 0, code)
		assert.Equal(t, "run\n", out.String())
	}
}
