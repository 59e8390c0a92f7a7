package dispatch

import (
	"context"
	"errors"
	"fmt"

	"tagnotify/internal/eventbus"
	"tagnotify/internal/gateway"
	"tagnotify/internal/registry"
	logx "tagnotify/pkg/logx"
)

// ErrStreamEnded is returned by Watcher.Run when the Closed stream stops
// while the daemon is still running.
var ErrStreamEnded = errors.New("closed-event stream ended")

// Watcher removes registry entries whose notification was closed.
type Watcher struct {
	gw  gateway.Gateway
	reg *registry.Registry
	bus eventbus.Bus
	log logx.Logger
}

func NewWatcher(gw gateway.Gateway, reg *registry.Registry, bus eventbus.Bus, log logx.Logger) *Watcher {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Watcher{gw: gw, reg: reg, bus: bus, log: log}
}

// Run subscribes once and handles events until ctx is done (nil) or the
// stream ends (ErrStreamEnded). Callers decide whether to resubscribe.
func (w *Watcher) Run(ctx context.Context) error {
	events, err := w.gw.SubscribeClosed(ctx)
	if err != nil {
		return fmt.Errorf("subscribe closed events: %w", err)
	}
	w.log.Debug("watching closed notifications")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrStreamEnded
			}
			w.Handle(ev)
		}
	}
}

// Handle applies one Closed event to the registry.
func (w *Watcher) Handle(ev gateway.Closed) []string {
	removed := w.reg.RemoveByHandle(ev.ID)
	if len(removed) > 0 {
		w.log.Debug("notification closed",
			logx.Uint32("handle", uint32(ev.ID)),
			logx.String("reason", ev.Reason.String()),
			logx.Strs("tags", removed),
		)
	} else {
		w.log.Trace("closed event for untracked handle", logx.Uint32("handle", uint32(ev.ID)))
	}
	w.bus.Publish(eventbus.Event{Type: eventbus.TypeClosed, Data: eventbus.Notice{
		Handle: uint32(ev.ID),
		Reason: uint32(ev.Reason),
		Tags:   removed,
	}})
	return removed
}
