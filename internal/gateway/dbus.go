package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	logx "tagnotify/pkg/logx"
)

const (
	dbusNotifyDest      = "org.freedesktop.Notifications"
	dbusNotifyPath      = dbus.ObjectPath("/org/freedesktop/Notifications")
	dbusNotifyInterface = "org.freedesktop.Notifications"
	dbusClosedMember    = "NotificationClosed"

	defaultHintName = "value"
	signalBuffer    = 64
)

// DBus sends notifications over the session bus.
type DBus struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	log  logx.Logger
}

// ServerInfo is the result of GetServerInformation.
type ServerInfo struct {
	Name        string
	Vendor      string
	Version     string
	SpecVersion string
}

// Connect opens a private session bus connection.
func Connect(ctx context.Context, log logx.Logger) (*DBus, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: session bus: %v", ErrUnavailable, err)
	}
	return NewDBus(conn, log), nil
}

// NewDBus wraps an already connected bus.
func NewDBus(conn *dbus.Conn, log logx.Logger) *DBus {
	return &DBus{
		conn: conn,
		obj:  conn.Object(dbusNotifyDest, dbusNotifyPath),
		log:  log,
	}
}

func (d *DBus) Close() error { return d.conn.Close() }

// Connected reports whether the bus connection is still usable.
func (d *DBus) Connected() bool { return d.conn.Connected() }

// ServerInfo asks the notification server to identify itself.
func (d *DBus) ServerInfo(ctx context.Context) (ServerInfo, error) {
	var info ServerInfo
	call := d.obj.CallWithContext(ctx, dbusNotifyInterface+".GetServerInformation", 0)
	if call.Err != nil {
		return info, d.classify(call.Err)
	}
	if err := call.Store(&info.Name, &info.Vendor, &info.Version, &info.SpecVersion); err != nil {
		return info, err
	}
	return info, nil
}

// Show sends Notify and returns the id the server assigned.
func (d *DBus) Show(ctx context.Context, n Notification) (Handle, error) {
	hints := map[string]dbus.Variant{}
	if n.Hint != nil {
		name := n.HintName
		if name == "" {
			name = defaultHintName
		}
		hints[name] = dbus.MakeVariant(*n.Hint)
	}

	// Notify(app_name, replaces_id, icon, summary, body, actions, hints, timeout) -> id
	call := d.obj.CallWithContext(ctx,
		dbusNotifyInterface+".Notify",
		0,
		n.AppName,
		uint32(n.ReplacesID),
		n.Icon,
		n.Summary,
		n.Body,
		[]string{},
		hints,
		n.ExpireMillis(),
	)
	if call.Err != nil {
		return NoHandle, d.classify(call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return NoHandle, fmt.Errorf("notify reply: %w", err)
	}
	return Handle(id), nil
}

// SubscribeClosed installs a match rule for NotificationClosed and forwards
// matching signals until ctx is done or the bus connection closes.
func (d *DBus) SubscribeClosed(ctx context.Context) (<-chan Closed, error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(dbusNotifyPath),
		dbus.WithMatchInterface(dbusNotifyInterface),
		dbus.WithMatchMember(dbusClosedMember),
	}
	if err := d.conn.AddMatchSignalContext(ctx, opts...); err != nil {
		return nil, d.classify(err)
	}

	signals := make(chan *dbus.Signal, signalBuffer)
	d.conn.Signal(signals)

	out := make(chan Closed, signalBuffer)
	go func() {
		defer close(out)
		defer func() {
			d.conn.RemoveSignal(signals)
			if d.conn.Connected() {
				_ = d.conn.RemoveMatchSignal(opts...)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					// godbus closes signal channels when the connection terminates.
					return
				}
				ev, ok := parseClosed(sig)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func parseClosed(sig *dbus.Signal) (Closed, bool) {
	if sig == nil || sig.Name != dbusNotifyInterface+"."+dbusClosedMember || len(sig.Body) < 2 {
		return Closed{}, false
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return Closed{}, false
	}
	reason, _ := sig.Body[1].(uint32)
	return Closed{ID: Handle(id), Reason: CloseReason(reason)}, true
}

// classify marks errors that mean the bus itself is gone.
func (d *DBus) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, dbus.ErrClosed) || !d.conn.Connected() {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var derr dbus.Error
	if errors.As(err, &derr) {
		return fmt.Errorf("%s: %v", derr.Name, derr.Body)
	}
	var pderr *dbus.Error
	if errors.As(err, &pderr) && pderr != nil {
		return fmt.Errorf("%s: %v", pderr.Name, pderr.Body)
	}
	return err
}
