// Package local provides a connection that executes commands on the local machine.
package local

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"runtime"

	"github.com/pacoguzman/vx-common-spawn/internal/connector"
	"github.com/pacoguzman/vx-common-spawn/internal/connector/process"
)

// Connector executes commands through the local shell.
type Connector struct {
	*process.Connection

	shell     string
	shellArgs []string
	sudo      bool
	sudoUser  string
}

// Option configures the local connector.
type Option func(*Connector)

// WithSudo enables sudo for command execution.
func WithSudo(user string) Option {
	return func(c *Connector) {
		c.sudo = true
		c.sudoUser = user
	}
}

// WithShell sets a custom shell for command execution.
func WithShell(shell string, args ...string) Option {
	return func(c *Connector) {
		c.shell = shell
		c.shellArgs = args
	}
}

// New creates a new local connector.
func New(opts ...Option) *Connector {
	c := &Connector{}

	// Set default shell based on OS
	switch runtime.GOOS {
	case "windows":
		c.shell = "cmd"
		c.shellArgs = []string{"/C"}
	default:
		c.shell = "/bin/sh"
		c.shellArgs = []string{"-c"}
	}

	for _, opt := range opts {
		opt(c)
	}

	// The local transport has no terminal allocator; pty requests are refused.
	c.Connection = process.NewConnection(c.describe(), c.command)
	return c
}

// Connect verifies the platform is supported.
func (c *Connector) Connect(ctx context.Context) error {
	switch runtime.GOOS {
	case "darwin", "linux":
		return nil
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

func (c *Connector) command(ctx context.Context, cmd string, _ bool) *exec.Cmd {
	args := append(append([]string{}, c.shellArgs...), c.buildCommand(cmd))
	return exec.CommandContext(ctx, c.shell, args...)
}

// buildCommand wraps the command with sudo if configured.
func (c *Connector) buildCommand(cmd string) string {
	if !c.sudo {
		return cmd
	}

	if c.sudoUser != "" {
		return fmt.Sprintf("sudo -u %s -- %s", c.sudoUser, cmd)
	}
	return fmt.Sprintf("sudo -- %s", cmd)
}

func (c *Connector) describe() string {
	u, err := user.Current()
	if err != nil {
		return "local"
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	if c.sudo && c.sudoUser != "" {
		return fmt.Sprintf("local://%s@%s (sudo as %s)", u.Username, hostname, c.sudoUser)
	}
	if c.sudo {
		return fmt.Sprintf("local://%s@%s (sudo)", u.Username, hostname)
	}
	return fmt.Sprintf("local://%s@%s", u.Username, hostname)
}

// Ensure Connector implements the connector.Connection interface.
var _ connector.Connection = (*Connector)(nil)
