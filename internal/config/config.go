// Package config loads spawn settings from a YAML file, SPAWN_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Supported transports.
const (
	TransportSSH    = "ssh"
	TransportLocal  = "local"
	TransportDocker = "docker"
)

const (
	envPrefix  = "SPAWN"
	configName = "spawn"
	configType = "yaml"
)

// Config holds everything needed to connect and run one command.
type Config struct {
	Transport      string        `mapstructure:"transport"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	IdentityFile   string        `mapstructure:"identity_file"`
	KnownHostsFile string        `mapstructure:"known_hosts_file"`
	Container      string        `mapstructure:"container"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	PTY          bool          `mapstructure:"pty"`
	Chdir        string        `mapstructure:"chdir"`
	Env          []string      `mapstructure:"env"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// File is the configuration file that was read, if any.
	File string `mapstructure:"-"`
}

// Defaults returns the default values keyed by configuration key.
func Defaults() map[string]any {
	return map[string]any{
		"transport":       TransportSSH,
		"port":            22,
		"connect_timeout": 10 * time.Second,
		"poll_interval":   100 * time.Millisecond,
		"log_level":       "warn",
		"log_format":      "console",
	}
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"transport":       "transport",
	"host":            "host",
	"port":            "port",
	"user":            "user",
	"identity":        "identity_file",
	"known-hosts":     "known_hosts_file",
	"container":       "container",
	"connect-timeout": "connect_timeout",
	"pty":             "pty",
	"chdir":           "chdir",
	"env":             "env",
	"timeout":         "timeout",
	"read-timeout":    "read_timeout",
	"poll-interval":   "poll_interval",
	"log-level":       "log_level",
	"log-format":      "log_format",
}

// Load resolves the configuration. Precedence: flags set on the command line, then
// SPAWN_* environment variables, then the configuration file, then defaults.
// When path is empty, spawn.yaml is searched in the working directory and ~/.config/spawn.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/spawn")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	for key, value := range Defaults() {
		v.SetDefault(key, value)
	}
	// Keys without a default still need to be known for AutomaticEnv to reach them.
	for _, key := range []string{"host", "user", "password", "identity_file", "known_hosts_file", "container", "pty", "chdir", "env", "timeout", "read_timeout"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read configuration: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	return &cfg, nil
}

// Validate checks that the configuration can be used to connect.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportSSH:
		if c.Host == "" {
			return errors.New("host is required for the ssh transport")
		}
	case TransportDocker:
		if c.Container == "" {
			return errors.New("container is required for the docker transport")
		}
	case TransportLocal:
	default:
		return fmt.Errorf("unsupported transport %q (expected ssh, local or docker)", c.Transport)
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	for name, d := range map[string]time.Duration{
		"timeout":         c.Timeout,
		"read_timeout":    c.ReadTimeout,
		"poll_interval":   c.PollInterval,
		"connect_timeout": c.ConnectTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, d)
		}
	}

	return nil
}

// view is the YAML rendering of Config. Durations are printed in Go notation
// and the password is never printed.
type view struct {
	Transport      string   `yaml:"transport"`
	Host           string   `yaml:"host,omitempty"`
	Port           int      `yaml:"port,omitempty"`
	User           string   `yaml:"user,omitempty"`
	Password       string   `yaml:"password,omitempty"`
	IdentityFile   string   `yaml:"identity_file,omitempty"`
	KnownHostsFile string   `yaml:"known_hosts_file,omitempty"`
	Container      string   `yaml:"container,omitempty"`
	ConnectTimeout string   `yaml:"connect_timeout,omitempty"`
	PTY            bool     `yaml:"pty"`
	Chdir          string   `yaml:"chdir,omitempty"`
	Env            []string `yaml:"env,omitempty"`
	Timeout        string   `yaml:"timeout,omitempty"`
	ReadTimeout    string   `yaml:"read_timeout,omitempty"`
	PollInterval   string   `yaml:"poll_interval,omitempty"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`
}

func duration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	v := view{
		Transport:      c.Transport,
		Host:           c.Host,
		Port:           c.Port,
		User:           c.User,
		IdentityFile:   c.IdentityFile,
		KnownHostsFile: c.KnownHostsFile,
		Container:      c.Container,
		ConnectTimeout: duration(c.ConnectTimeout),
		PTY:            c.PTY,
		Chdir:          c.Chdir,
		Env:            c.Env,
		Timeout:        duration(c.Timeout),
		ReadTimeout:    duration(c.ReadTimeout),
		PollInterval:   duration(c.PollInterval),
		LogLevel:       c.LogLevel,
		LogFormat:      c.LogFormat,
	}
	if c.Password != "" {
		v.Password = "********"
	}

	out, err := yaml.Marshal(&v)
	if err != nil {
		return nil, fmt.Errorf("failed to render configuration: %w", err)
	}
	return out, nil
}
