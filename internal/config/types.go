package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"tagnotify/internal/registry"
	"tagnotify/internal/wire"
	logx "tagnotify/pkg/logx"
)

// Config is the daemon configuration. Every section may be omitted; Defaults()
// fills in what a bare `tagnotifyd serve` would use.
//
// All durations are Go duration strings (e.g. "500ms", "2s", "10m").
type Config struct {
	Socket   SocketConfig   `json:"socket"`
	Notify   NotifyConfig   `json:"notify"`
	Registry RegistryConfig `json:"registry"`
	Logging  LoggingConfig  `json:"logging"`
	Journal  JournalConfig  `json:"journal"`
}

// SocketConfig controls the inbound datagram socket. Changes require a restart.
type SocketConfig struct {
	Path        string `json:"path,omitempty"`
	MaxDatagram int    `json:"max_datagram,omitempty"`
	// Mode is an octal permission string such as "0600".
	Mode string `json:"mode,omitempty"`
	// Activation adopts a socket passed by systemd when one is present.
	Activation *bool `json:"activation,omitempty"`
}

// NotifyConfig controls what is sent to the notification service.
// Hot-reloadable.
type NotifyConfig struct {
	AppName  string `json:"app_name,omitempty"`
	Icon     string `json:"icon,omitempty"`
	HintName string `json:"hint_name,omitempty"`
	// Duration is the expire timeout; "-1s" (any negative) means server default.
	Duration    string `json:"duration,omitempty"`
	CallTimeout string `json:"call_timeout,omitempty"`
	// OnGatewayError is "log" (default) or "exit".
	OnGatewayError string `json:"on_gateway_error,omitempty"`
}

// RegistryConfig enables the idle sweep. Both fields must be set to enable it.
type RegistryConfig struct {
	MaxIdle    string `json:"max_idle,omitempty"`
	SweepEvery string `json:"sweep_every,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console *bool       `json:"console,omitempty"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// JournalConfig controls the optional delivery journal.
//
// Example:
//
//	"journal": { "driver": "sqlite", "path": "~/.local/state/tagnotify/journal.db" }
type JournalConfig struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`
}

const (
	DefaultSocketName = "tagnotify.sock"
	DefaultDuration   = 2 * time.Second
	DefaultHintName   = "value"

	GatewayErrorLog  = "log"
	GatewayErrorExit = "exit"
)

// DefaultSocketPath is $XDG_RUNTIME_DIR/tagnotify.sock.
func DefaultSocketPath() string {
	return filepath.Join(xdg.RuntimeDir, DefaultSocketName)
}

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	on := true
	return &Config{
		Socket: SocketConfig{
			Path:        DefaultSocketPath(),
			MaxDatagram: wire.MaxDatagram,
			Mode:        "0600",
			Activation:  &on,
		},
		Notify: NotifyConfig{
			HintName:       DefaultHintName,
			Duration:       DefaultDuration.String(),
			OnGatewayError: GatewayErrorLog,
		},
		Logging: LoggingConfig{Level: "info", Console: &on},
	}
}

// ApplyDefaults fills zero fields from Defaults().
func (c *Config) ApplyDefaults() {
	d := Defaults()
	if strings.TrimSpace(c.Socket.Path) == "" {
		c.Socket.Path = d.Socket.Path
	}
	c.Socket.Path = expandHome(c.Socket.Path)
	if c.Socket.MaxDatagram == 0 {
		c.Socket.MaxDatagram = d.Socket.MaxDatagram
	}
	if strings.TrimSpace(c.Socket.Mode) == "" {
		c.Socket.Mode = d.Socket.Mode
	}
	if c.Socket.Activation == nil {
		c.Socket.Activation = d.Socket.Activation
	}
	if c.Notify.HintName == "" {
		c.Notify.HintName = d.Notify.HintName
	}
	if strings.TrimSpace(c.Notify.Duration) == "" {
		c.Notify.Duration = d.Notify.Duration
	}
	if strings.TrimSpace(c.Notify.OnGatewayError) == "" {
		c.Notify.OnGatewayError = d.Notify.OnGatewayError
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Console == nil {
		c.Logging.Console = d.Logging.Console
	}
	c.Logging.File.Path = expandHome(c.Logging.File.Path)
	c.Journal.Path = expandHome(c.Journal.Path)
}

// Validate checks everything a hot reload could get wrong.
func (c *Config) Validate() error {
	if c.Socket.MaxDatagram < 1 || c.Socket.MaxDatagram > wire.MaxDatagramLimit {
		return fmt.Errorf("socket.max_datagram must be between 1 and %d", wire.MaxDatagramLimit)
	}
	if _, err := c.SocketMode(); err != nil {
		return err
	}
	if _, err := c.NotifyDuration(); err != nil {
		return err
	}
	if _, err := ParseDurationField("notify.call_timeout", c.Notify.CallTimeout); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Notify.OnGatewayError)) {
	case "", GatewayErrorLog, GatewayErrorExit:
	default:
		return fmt.Errorf("notify.on_gateway_error: want %q or %q, got %q", GatewayErrorLog, GatewayErrorExit, c.Notify.OnGatewayError)
	}
	if _, _, err := c.Sweep(); err != nil {
		return err
	}
	if !logx.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	switch strings.ToLower(strings.TrimSpace(c.Journal.Driver)) {
	case "", "none":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Journal.Path) == "" {
			return fmt.Errorf("journal.path is required for driver %q", c.Journal.Driver)
		}
	default:
		return fmt.Errorf("journal.driver: unknown driver %q", c.Journal.Driver)
	}
	return nil
}

// SocketMode parses socket.mode.
func (c *Config) SocketMode() (os.FileMode, error) {
	s := strings.TrimSpace(c.Socket.Mode)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil || v > 0o777 {
		return 0, fmt.Errorf("socket.mode: invalid octal mode %q", c.Socket.Mode)
	}
	return os.FileMode(v), nil
}

// NotifyDuration parses notify.duration. Negative values are allowed and mean
// "server default".
func (c *Config) NotifyDuration() (time.Duration, error) {
	s := strings.TrimSpace(c.Notify.Duration)
	if s == "" {
		return DefaultDuration, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("notify.duration: invalid duration %q: %w", c.Notify.Duration, err)
	}
	return d, nil
}

// Sweep returns the idle sweep settings. Both are zero when sweeping is off.
func (c *Config) Sweep() (maxIdle time.Duration, every string, err error) {
	maxIdle, err = ParseDurationField("registry.max_idle", c.Registry.MaxIdle)
	if err != nil {
		return 0, "", err
	}
	every = strings.TrimSpace(c.Registry.SweepEvery)
	if (maxIdle > 0) != (every != "") {
		return 0, "", fmt.Errorf("registry.max_idle and registry.sweep_every must be set together")
	}
	if every != "" {
		if _, err := registry.ParseSchedule(every); err != nil {
			return 0, "", fmt.Errorf("registry.sweep_every: %w", err)
		}
	}
	return maxIdle, every, nil
}

// LogConfig maps the logging section onto logx.
func (c *Config) LogConfig() logx.Config {
	console := c.Logging.Console == nil || *c.Logging.Console
	return logx.Config{
		Level:   c.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled:    c.Logging.File.Enabled,
			Path:       c.Logging.File.Path,
			MaxSizeMB:  c.Logging.File.MaxSizeMB,
			MaxBackups: c.Logging.File.MaxBackups,
			MaxAgeDays: c.Logging.File.MaxAgeDays,
			Compress:   c.Logging.File.Compress,
		},
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
