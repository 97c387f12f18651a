// Package docker provides a connection that executes commands in a running Docker container.
package docker

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/pacoguzman/vx-common-spawn/internal/connector"
	"github.com/pacoguzman/vx-common-spawn/internal/connector/process"
)

// Connector executes commands inside a Docker container through `docker exec`.
type Connector struct {
	*process.Connection

	container string
	user      string
	workdir   string
	env       map[string]string
}

// Option configures the Docker connector.
type Option func(*Connector)

// WithUser sets the user for command execution.
func WithUser(user string) Option {
	return func(c *Connector) {
		c.user = user
	}
}

// WithWorkdir sets the working directory for command execution.
func WithWorkdir(dir string) Option {
	return func(c *Connector) {
		c.workdir = dir
	}
}

// WithEnv adds an environment variable for command execution.
func WithEnv(key, value string) Option {
	return func(c *Connector) {
		if c.env == nil {
			c.env = make(map[string]string)
		}
		c.env[key] = value
	}
}

// New creates a new Docker connector for the specified container.
func New(container string, opts ...Option) *Connector {
	c := &Connector{
		container: container,
		env:       make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Connection = process.NewConnection(c.describe(), c.command, process.WithPTY(true))
	return c
}

// Connect verifies the container exists and is running.
func (c *Connector) Connect(ctx context.Context) error {
	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker command not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, "docker", "inspect", "-f", "{{.State.Running}}", c.container)
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("container '%s' not found or not accessible: %w", c.container, err)
	}

	if strings.TrimSpace(string(output)) != "true" {
		return fmt.Errorf("container '%s' is not running", c.container)
	}

	return nil
}

func (c *Connector) command(ctx context.Context, cmd string, pty bool) *exec.Cmd {
	return exec.CommandContext(ctx, "docker", c.buildExecArgs(cmd, pty)...)
}

// buildExecArgs builds the docker exec command arguments.
func (c *Connector) buildExecArgs(cmd string, pty bool) []string {
	args := []string{"exec"}

	if pty {
		args = append(args, "-t")
	}

	if c.user != "" {
		args = append(args, "-u", c.user)
	}

	if c.workdir != "" {
		args = append(args, "-w", c.workdir)
	}

	keys := make([]string, 0, len(c.env))
	for k := range c.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, c.env[k]))
	}

	args = append(args, c.container, "/bin/sh", "-c", cmd)

	return args
}

func (c *Connector) describe() string {
	desc := fmt.Sprintf("docker://%s", c.container)
	if c.user != "" {
		desc = fmt.Sprintf("docker://%s@%s", c.user, c.container)
	}
	return desc
}

// Ensure Connector implements the connector.Connection interface.
var _ connector.Connection = (*Connector)(nil)
