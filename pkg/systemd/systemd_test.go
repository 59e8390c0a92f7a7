package systemd

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	sddbus "github.com/coreos/go-systemd/v22/dbus"

	logx "tagnotify/pkg/logx"
)

func TestNotifyOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")
	for name, fn := range map[string]func() (bool, error){
		"ready":     Ready,
		"stopping":  Stopping,
		"reloading": Reloading,
	} {
		sent, err := fn()
		if sent || err != nil {
			t.Fatalf("%s: sent=%v err=%v", name, sent, err)
		}
	}
	if d := WatchdogInterval(); d != 0 {
		t.Fatalf("watchdog interval=%v", d)
	}
}

func TestWatchdogIntervalIsHalfTimeout(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "4000000")
	t.Setenv("WATCHDOG_PID", "")
	if d := WatchdogInterval(); d != 2*time.Second {
		t.Fatalf("interval=%v", d)
	}
}

func TestWatchdogDisabledWaitsForCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watchdog(ctx, 0, nil, logx.Nop()) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watchdog did not return")
	}
}

func TestWatchdogSkipsUnhealthy(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	calls := 0
	err := Watchdog(ctx, 5*time.Millisecond, func() error {
		calls++
		return errors.New("wedged")
	}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if calls == 0 {
		t.Fatal("health check never ran")
	}
}

func TestWatchdogSurvivesFailedPing(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", filepath.Join(t.TempDir(), "missing.sock"))
	if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err == nil {
		t.Skip("notify to a missing socket unexpectedly succeeded")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	checks := 0
	err := Watchdog(ctx, 5*time.Millisecond, func() error {
		checks++
		return nil
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Watchdog() err = %v, want nil after failed pings", err)
	}
	if checks < 2 {
		t.Fatalf("health checks = %d, want ticking to continue after a failed ping", checks)
	}
}

func TestToUnitStatesSorted(t *testing.T) {
	got := toUnitStates([]sddbus.UnitStatus{
		{Name: "tagnotifyd.socket", ActiveState: "active", SubState: "listening", LoadState: "loaded"},
		{Name: "tagnotifyd.service", ActiveState: "inactive", SubState: "dead", LoadState: "loaded"},
	})
	if len(got) != 2 || got[0].Name != "tagnotifyd.service" {
		t.Fatalf("got %+v", got)
	}
	if got[0].Active() || !got[1].Active() {
		t.Fatalf("active flags wrong: %+v", got)
	}
}
