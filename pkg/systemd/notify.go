// Package systemd wraps the pieces of systemd integration the daemon uses:
// readiness and watchdog notifications, and unit status over D-Bus.
// Every call is a no-op outside a systemd service.
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"golang.org/x/time/rate"

	logx "tagnotify/pkg/logx"
)

// Ready tells systemd the daemon has finished starting.
func Ready() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReady) }

// Stopping tells systemd shutdown has begun.
func Stopping() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyStopping) }

// Reloading marks a config reload in progress; call Ready when it is done.
func Reloading() (bool, error) { return daemon.SdNotify(false, daemon.SdNotifyReloading) }

// Status sets the free-form status line shown by `systemctl status`.
func Status(format string, args ...any) (bool, error) {
	return daemon.SdNotify(false, "STATUS="+fmt.Sprintf(format, args...))
}

// WatchdogInterval returns how often to ping the watchdog, or 0 when it is
// not enabled for this process. Pings go out at half the configured timeout.
func WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil || d <= 0 {
		return 0
	}
	return d / 2
}

// Watchdog pings systemd every interval while healthy reports nil.
// It returns when ctx is done. A failing health check skips the ping so
// systemd restarts a wedged daemon. A failed ping is logged and retried on
// the next tick.
func Watchdog(ctx context.Context, interval time.Duration, healthy func() error, log logx.Logger) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	warn := rate.Sometimes{First: 1, Interval: time.Minute}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if healthy != nil && healthy() != nil {
				continue
			}
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				warn.Do(func() { log.Warn("watchdog notify failed", logx.Err(err)) })
			}
		}
	}
}
