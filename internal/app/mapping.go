package app

import (
	"strings"
	"time"

	"tagnotify/internal/config"
	"tagnotify/internal/dispatch"
	"tagnotify/internal/storage"
)

const journalBusyTimeout = time.Second

func mapJournalConfig(cfg *config.Config) (storage.Config, bool) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false
	}
	sc := storage.Config{Driver: driver, Path: strings.TrimSpace(cfg.Journal.Path)}
	if driver != "file" {
		sc.BusyTimeout = journalBusyTimeout
	}
	return sc, true
}

// mapSettings assumes cfg has been validated.
func mapSettings(cfg *config.Config) dispatch.Settings {
	s := dispatch.DefaultSettings()
	s.AppName = cfg.Notify.AppName
	s.Icon = cfg.Notify.Icon
	if cfg.Notify.HintName != "" {
		s.HintName = cfg.Notify.HintName
	}
	if d, err := cfg.NotifyDuration(); err == nil {
		s.Timeout = d
	}
	s.CallTimeout = cfg.CallTimeout()
	s.ExitOnGatewayError = strings.EqualFold(strings.TrimSpace(cfg.Notify.OnGatewayError), config.GatewayErrorExit)
	return s
}
