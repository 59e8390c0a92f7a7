package config

import (
	"sort"

	logx "tagnotify/pkg/logx"
)

// Change describes what differs between two configs.
type Change struct {
	// Sections lists changed top-level sections, sorted.
	Sections []string
	// RestartRequired lists changed sections that only take effect on restart.
	RestartRequired []string
	// Attrs are log fields describing the new values.
	Attrs []logx.Field
}

// Empty reports whether nothing changed.
func (c Change) Empty() bool { return len(c.Sections) == 0 }

// SummarizeConfigChange compares two configs section by section. Socket,
// registry and journal changes are reported as restart-required.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, attrs ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		if restart {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
		ch.Attrs = append(ch.Attrs, attrs...)
	}

	o, n := oldCfg.Socket, newCfg.Socket
	if o.Path != n.Path || o.MaxDatagram != n.MaxDatagram || o.Mode != n.Mode || boolOr(o.Activation, true) != boolOr(n.Activation, true) {
		mark("socket", true,
			logx.String("socket.path", n.Path),
			logx.Int("socket.max_datagram", n.MaxDatagram),
		)
	}

	if oldCfg.Notify != newCfg.Notify {
		nn := newCfg.Notify
		mark("notify", false,
			logx.String("notify.app_name", nn.AppName),
			logx.String("notify.hint_name", nn.HintName),
			logx.String("notify.duration", nn.Duration),
			logx.String("notify.call_timeout", nn.CallTimeout),
			logx.String("notify.on_gateway_error", nn.OnGatewayError),
		)
	}

	if oldCfg.Registry != newCfg.Registry {
		mark("registry", true,
			logx.String("registry.max_idle", newCfg.Registry.MaxIdle),
			logx.String("registry.sweep_every", newCfg.Registry.SweepEvery),
		)
	}

	ol, nl := oldCfg.Logging, newCfg.Logging
	if ol.Level != nl.Level || boolOr(ol.Console, true) != boolOr(nl.Console, true) || ol.File != nl.File {
		mark("logging", false,
			logx.String("logging.level", nl.Level),
			logx.Bool("logging.console", boolOr(nl.Console, true)),
			logx.Bool("logging.file_enabled", nl.File.Enabled),
		)
	}

	if oldCfg.Journal != newCfg.Journal {
		mark("journal", true,
			logx.String("journal.driver", newCfg.Journal.Driver),
			logx.Bool("journal.path_set", newCfg.Journal.Path != ""),
		)
	}

	sort.Strings(ch.Sections)
	sort.Strings(ch.RestartRequired)
	return ch
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
