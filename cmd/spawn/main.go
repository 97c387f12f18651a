// Package main is the entrypoint for the spawn CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/pacoguzman/vx-common-spawn/internal/config"
	"github.com/pacoguzman/vx-common-spawn/internal/connector"
	"github.com/pacoguzman/vx-common-spawn/internal/connector/docker"
	"github.com/pacoguzman/vx-common-spawn/internal/connector/local"
	"github.com/pacoguzman/vx-common-spawn/internal/connector/ssh"
	"github.com/pacoguzman/vx-common-spawn/internal/logging"
	"github.com/pacoguzman/vx-common-spawn/internal/output"
	"github.com/pacoguzman/vx-common-spawn/internal/spawn"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit statuses used when the remote exit code is not available.
const (
	exitFailure = 1
	exitTimeout = 124
)

// Global flags
var (
	configFile string
	debug      bool
	noColor    bool
)

func main() {
	out := output.New(os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		var status *exitStatusError
		if errors.As(err, &status) {
			os.Exit(status.code)
		}
		out.SetColor(useColor())
		out.Error("%v", err)
		os.Exit(exitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "spawn",
	Short: "spawn - run shell commands on remote hosts with execution and inactivity timeouts",
	Long: `spawn runs a shell command over SSH (or locally, or in a Docker container),
streams its output and exits with the remote exit status.

Two independent timeouts can be enforced: a total execution timeout and an
inactivity timeout measured from the last byte of output.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (default: ./spawn.yaml or ~/.config/spawn/spawn.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Print the command, its outcome and debug logs")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, structured)")

	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(configCmd)
}

// execCmd runs a command on the target
var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <command> [args...]",
	Short: "Run a command on the target",
	Long: `Run a command on the target and exit with its exit status.

The arguments are joined with spaces and interpreted by the remote shell.
A command killed before reporting an exit status exits with 255; a timeout
exits with 124.

Examples:
  spawn exec --host ci.example.com --user deploy -- uname -a
  spawn exec --host ci --timeout 30m --read-timeout 5m -- make test
  spawn exec --transport docker --container web -e RAILS_ENV=test -- rake spec
  spawn exec --transport local --chdir /tmp -- ls -la`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	f := execCmd.Flags()
	f.StringP("transport", "t", config.TransportSSH, "Transport (ssh, local, docker)")
	f.StringP("host", "H", "", "Target host")
	f.IntP("port", "p", 22, "Target SSH port")
	f.StringP("user", "u", "", "Remote user (ssh) or container user (docker)")
	f.StringP("identity", "i", "", "Private key file")
	f.String("known-hosts", "", "Known hosts file; host keys are not verified without it")
	f.String("container", "", "Container name (docker transport)")
	f.Duration("connect-timeout", 10*time.Second, "Connection timeout")
	f.Bool("pty", false, "Request a pseudo-terminal")
	f.String("chdir", "", "Change to this directory before running the command")
	f.StringArrayP("env", "e", nil, "Environment variable KEY=VALUE (repeatable, order is kept)")
	f.Duration("timeout", 0, "Total execution timeout (0 disables)")
	f.Duration("read-timeout", 0, "Inactivity timeout between output chunks (0 disables)")
	f.Duration("poll-interval", spawn.DefaultPollInterval, "How often timeouts are checked")
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	env, err := spawn.ParseEnv(cfg.Env)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	out := output.New(os.Stderr)
	out.SetColor(useColor())
	out.SetDebug(debug)

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	session := spawn.New(conn,
		spawn.WithLogger(logger),
		spawn.WithPollInterval(cfg.PollInterval),
	)

	opts := spawn.Options{
		PTY:         cfg.PTY,
		Chdir:       cfg.Chdir,
		Timeout:     cfg.Timeout,
		ReadTimeout: cfg.ReadTimeout,
	}

	out.RunStart(conn.String(), spawn.BuildCommand(env, spawn.JoinArgv(args), cfg.Chdir))
	start := time.Now()

	result, err := session.Run(ctx, env, args, opts, spawn.WriterSink(os.Stdout))
	if err != nil {
		return err
	}

	out.RunEnd(result.ExitCode, result.Killed, time.Since(start))

	if result.ExitCode != 0 {
		return &exitStatusError{code: result.ExitCode & 0xff}
	}
	return nil
}

// configCmd prints the effective configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Resolve the configuration from the file, SPAWN_* environment variables
and defaults, and print it as YAML. The password is never printed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		data, err := cfg.YAML()
		if err != nil {
			return err
		}

		if cfg.File != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n", cfg.File)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	if cfg.File != "" {
		logger.Debug("configuration loaded", zap.String("file", cfg.File))
	}
	return logger, nil
}

// connect opens the connection selected by the configuration.
func connect(ctx context.Context, cfg *config.Config) (connector.Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	switch cfg.Transport {
	case config.TransportLocal:
		conn := local.New()
		if err := conn.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
		return conn, nil

	case config.TransportDocker:
		var opts []docker.Option
		if cfg.User != "" {
			opts = append(opts, docker.WithUser(cfg.User))
		}
		conn := docker.New(cfg.Container, opts...)
		if err := conn.Connect(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
		return conn, nil

	default:
		conn, err := ssh.Dial(ctx, ssh.Config{
			Config: connector.Config{
				Host:    cfg.Host,
				Port:    cfg.Port,
				User:    cfg.User,
				Timeout: cfg.ConnectTimeout,
			},
			IdentityFile:   cfg.IdentityFile,
			Password:       cfg.Password,
			KnownHostsFile: cfg.KnownHostsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
		return conn, nil
	}
}

// exitStatusError carries the remote exit status to main.
type exitStatusError struct {
	code int
}

func (e *exitStatusError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.code)
}

func exitCode(err error) int {
	var timeoutErr *spawn.TimeoutError
	var readTimeoutErr *spawn.ReadTimeoutError
	if errors.As(err, &timeoutErr) || errors.As(err, &readTimeoutErr) {
		return exitTimeout
	}
	return exitFailure
}

func useColor() bool {
	return !noColor && term.IsTerminal(int(os.Stderr.Fd()))
}
