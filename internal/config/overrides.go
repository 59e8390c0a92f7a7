package config

import (
	"strings"
	"time"
)

// Overrides are command-line values that win over the file. They are
// re-applied to every reloaded config.
type Overrides struct {
	SocketPath string
	// Duration is the notification expire timeout; nil leaves the file value.
	Duration *time.Duration
	LogLevel string
}

// Apply returns a copy of cfg with the overrides set. cfg is not modified.
func (o Overrides) Apply(cfg *Config) *Config {
	if cfg == nil {
		cfg = Defaults()
	}
	cp := *cfg
	if s := strings.TrimSpace(o.SocketPath); s != "" {
		cp.Socket.Path = expandHome(s)
	}
	if o.Duration != nil {
		cp.Notify.Duration = o.Duration.String()
	}
	if s := strings.TrimSpace(o.LogLevel); s != "" {
		cp.Logging.Level = s
	}
	return &cp
}
