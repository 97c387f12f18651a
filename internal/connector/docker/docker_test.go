package docker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildExecArgs(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		pty  bool
		want []string
	}{
		{
			name: "defaults",
			want: []string{"exec", "web", "/bin/sh", "-c", "ls"},
		},
		{
			name: "pty",
			pty:  true,
			want: []string{"exec", "-t", "web", "/bin/sh", "-c", "ls"},
		},
		{
			name: "user workdir env",
			opts: []Option{WithUser("app"), WithWorkdir("/srv"), WithEnv("B", "2"), WithEnv("A", "1")},
			want: []string{"exec", "-u", "app", "-w", "/srv", "-e", "A=1", "-e", "B=2", "web", "/bin/sh", "-c", "ls"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New("web", tt.opts...)
			assert.Equal(t, tt.want, c.buildExecArgs("ls", tt.pty))
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "docker://web", New("web").String())
	assert.Equal(t, "docker://app@web", New("web", WithUser("app")).String())
}
