package app

import (
	"context"
	"strings"

	"tagnotify/internal/config"
	logx "tagnotify/pkg/logx"
	"tagnotify/pkg/systemd"
)

// reloadLoop applies published configs. Logging and notify settings take
// effect immediately; other sections are reported as needing a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	last := a.cfg
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			newCfg = a.overrides.Apply(newCfg)
			last = a.applyConfig(last, newCfg)
		}
	}
}

func (a *App) applyConfig(last, newCfg *config.Config) *config.Config {
	a.cur.Store(newCfg)
	change := config.SummarizeConfigChange(last, newCfg)
	if change.Empty() {
		a.log.Info("config reloaded (no changes)")
		return newCfg
	}
	_, _ = systemd.Reloading()
	defer func() { _, _ = systemd.Ready() }()

	if len(change.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(change.RestartRequired, ",")))
	}
	a.logs.Apply(newCfg.LogConfig())
	a.core.Apply(mapSettings(newCfg))

	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Attrs...)
	a.log.Info("config reloaded", fields...)
	return newCfg
}
