package process

import (
	"bytes"
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacoguzman/vx-common-spawn/internal/connector"
)

// running reports whether pid exists and is not a zombie.
func running(pid int) bool {
	stat, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}

	// The state follows the parenthesised command name.
	i := bytes.LastIndexByte(stat, ')')
	if i < 0 {
		return false
	}
	fields := strings.Fields(string(stat[i+1:]))
	return len(fields) > 0 && fields[0] != "Z" && fields[0] != "X"
}

func TestCloseKillsGrandchildren(t *testing.T) {
	conn := NewConnection("test", shell)

	ch, err := conn.OpenChannel(context.Background())
	require.NoError(t, err)

	var out strings.Builder
	ch.Handle(func(ev connector.Event) {
		if data, ok := ev.(connector.DataEvent); ok {
			out.Write(data.Data)
		}
	})

	require.NoError(t, ch.Exec(context.Background(), "sleep 30 & echo $!; wait"))

	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "\n") {
		require.True(t, time.Now().Before(deadline), "child pid not reported")
		require.NoError(t, conn.ServiceOnce(context.Background(), 50*time.Millisecond))
	}
	pid, err := strconv.Atoi(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	require.True(t, running(pid))

	require.NoError(t, ch.Close())

	assert.Eventually(t, func() bool { return !running(pid) }, 3*time.Second, 20*time.Millisecond,
		"background child %d survived Close", pid)
}
