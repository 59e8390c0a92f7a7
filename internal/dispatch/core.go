// Package dispatch turns datagrams into desktop notifications.
//
// Core runs the request loop: decode, look up the tag's current handle,
// call the gateway, record the new handle. Watcher runs next to it and prunes
// entries whose notification was closed. Both share only the registry.
//
// Core never holds the registry lock across a gateway call. The lookup and the
// upsert for one request are separate critical sections, and requests are
// handled one at a time by a single loop, so two requests for the same tag are
// always serialized. A Closed event for the looked-up handle that lands while
// Show is in flight can leave a stale entry behind; the next request for that
// tag then asks to replace a notification that is already gone, which servers
// treat as a fresh notification.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"tagnotify/internal/eventbus"
	"tagnotify/internal/gateway"
	"tagnotify/internal/listener"
	"tagnotify/internal/registry"
	"tagnotify/internal/wire"
	logx "tagnotify/pkg/logx"
)

// Source yields raw datagrams. Close must unblock a pending Receive.
type Source interface {
	Receive(buf []byte) (int, error)
	Close() error
}

// Settings are the per-notification parameters that don't come from the request.
// They can be swapped at runtime with Apply.
type Settings struct {
	AppName  string
	Icon     string
	HintName string
	Timeout  time.Duration
	// CallTimeout bounds one Show round trip; 0 means no bound.
	CallTimeout time.Duration
	// ExitOnGatewayError makes any Show failure fatal. Otherwise only a lost
	// connection is.
	ExitOnGatewayError bool
}

// DefaultSettings mirrors the CLI defaults.
func DefaultSettings() Settings {
	return Settings{HintName: "value", Timeout: 2 * time.Second}
}

type Option func(*Core)

func WithBus(bus eventbus.Bus) Option {
	return func(c *Core) {
		if bus != nil {
			c.bus = bus
		}
	}
}

func WithLogger(log logx.Logger) Option { return func(c *Core) { c.log = log } }

// WithMaxDatagram sets the receive buffer size.
func WithMaxDatagram(n int) Option {
	return func(c *Core) {
		if n > 0 && n <= wire.MaxDatagramLimit {
			c.maxDatagram = n
		}
	}
}

// WithDecodeLogRate limits how many decode failures per second are logged.
func WithDecodeLogRate(perSec float64, burst int) Option {
	return func(c *Core) { c.decodeLog = rate.NewLimiter(rate.Limit(perSec), burst) }
}

// Core is the request loop.
type Core struct {
	gw  gateway.Gateway
	reg *registry.Registry
	bus eventbus.Bus
	log logx.Logger

	settings    atomic.Pointer[Settings]
	maxDatagram int

	decodeLog  *rate.Limiter
	suppressed atomic.Uint64

	handled  atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64
}

// Stats counts requests by outcome.
type Stats struct {
	Handled  uint64 `json:"handled"`
	Rejected uint64 `json:"rejected"`
	Failed   uint64 `json:"failed"`
}

func New(gw gateway.Gateway, reg *registry.Registry, settings Settings, opts ...Option) *Core {
	c := &Core{
		gw:          gw,
		reg:         reg,
		bus:         eventbus.Nop{},
		maxDatagram: wire.MaxDatagram,
		decodeLog:   rate.NewLimiter(rate.Limit(1), 5),
	}
	for _, o := range opts {
		o(c)
	}
	c.Apply(settings)
	return c
}

// Apply swaps the notification settings. Safe to call while Run is active.
func (c *Core) Apply(s Settings) {
	c.settings.Store(&s)
}

func (c *Core) Settings() Settings { return *c.settings.Load() }

func (c *Core) Stats() Stats {
	return Stats{Handled: c.handled.Load(), Rejected: c.rejected.Load(), Failed: c.failed.Load()}
}

// Run receives and handles datagrams until ctx is done (returns nil) or the
// source or gateway fails for good (returns the error).
func (c *Core) Run(ctx context.Context, src Source) error {
	stop := context.AfterFunc(ctx, func() { _ = src.Close() })
	defer stop()

	buf := make([]byte, c.maxDatagram)
	for {
		n, err := src.Receive(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, listener.ErrClosed) {
				return fmt.Errorf("request socket closed unexpectedly: %w", err)
			}
			return err
		}
		if err := c.HandleDatagram(ctx, buf[:n]); err != nil {
			return err
		}
	}
}

// HandleDatagram decodes and handles one datagram. Only fatal errors are returned.
func (c *Core) HandleDatagram(ctx context.Context, b []byte) error {
	c.log.Trace("received datagram", logx.Int("size", len(b)), logx.String("raw", string(b)))

	req, err := wire.Decode(b)
	if err != nil {
		c.reject(err, len(b))
		return nil
	}
	return c.Handle(ctx, req)
}

func (c *Core) reject(err error, size int) {
	c.rejected.Add(1)
	if c.decodeLog.Allow() {
		fields := []logx.Field{logx.Err(err), logx.Int("size", size)}
		if n := c.suppressed.Swap(0); n > 0 {
			fields = append(fields, logx.Uint64("suppressed", n))
		}
		c.log.Warn("dropping malformed request", fields...)
	} else {
		c.suppressed.Add(1)
	}
	c.bus.Publish(eventbus.Event{Type: eventbus.TypeRejected, Data: eventbus.Notice{Error: err.Error()}})
}

// Handle shows or replaces the notification for req.Tag.
func (c *Core) Handle(ctx context.Context, req wire.Request) error {
	s := c.settings.Load()

	n := gateway.Notification{
		AppName:    s.AppName,
		ReplacesID: c.reg.LookupOrDefault(req.Tag),
		Icon:       s.Icon,
		Summary:    req.Tag,
		Body:       req.BodyText(),
		HintName:   s.HintName,
		Hint:       req.Value,
		Timeout:    s.Timeout,
	}

	callCtx := ctx
	if s.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.CallTimeout)
		defer cancel()
	}

	id, err := c.gw.Show(callCtx, n)
	if err != nil {
		return c.showFailed(ctx, req.Tag, n.ReplacesID, err, s.ExitOnGatewayError)
	}

	c.reg.Upsert(req.Tag, id)
	c.handled.Add(1)
	c.log.Debug("notification shown",
		logx.String("tag", req.Tag),
		logx.Uint32("replaces", uint32(n.ReplacesID)),
		logx.Uint32("handle", uint32(id)),
	)
	c.bus.Publish(eventbus.Event{Type: eventbus.TypeShown, Data: eventbus.Notice{
		Tag:        req.Tag,
		Handle:     uint32(id),
		ReplacesID: uint32(n.ReplacesID),
	}})
	return nil
}

func (c *Core) showFailed(ctx context.Context, tag string, replaces gateway.Handle, err error, strict bool) error {
	if ctx.Err() != nil {
		// Shutting down; the error is an artifact of cancellation.
		return nil
	}
	c.failed.Add(1)
	c.bus.Publish(eventbus.Event{Type: eventbus.TypeFailed, Data: eventbus.Notice{
		Tag:        tag,
		ReplacesID: uint32(replaces),
		Error:      err.Error(),
	}})
	if strict || errors.Is(err, gateway.ErrUnavailable) {
		return fmt.Errorf("show %q: %w", tag, err)
	}
	c.log.Error("notification failed", logx.String("tag", tag), logx.Uint32("replaces", uint32(replaces)), logx.Err(err))
	return nil
}
