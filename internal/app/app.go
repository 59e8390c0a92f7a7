package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"tagnotify/internal/config"
	"tagnotify/internal/dispatch"
	"tagnotify/internal/eventbus"
	"tagnotify/internal/gateway"
	"tagnotify/internal/listener"
	"tagnotify/internal/registry"
	"tagnotify/internal/runtime/supervisor"
	"tagnotify/internal/storage"
	logx "tagnotify/pkg/logx"
	"tagnotify/pkg/systemd"
)

// Options configure NewApp.
type Options struct {
	ConfigPath string
	Overrides  config.Overrides
	// Gateway replaces the session bus connection. Used by tests.
	Gateway gateway.Gateway
}

// App wires the daemon: socket, dispatch loop, closure watcher and the
// supporting services around them.
type App struct {
	cfgm      *config.ConfigManager
	cfg       *config.Config
	cur       atomic.Pointer[config.Config]
	overrides config.Overrides

	sup *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	reg   *registry.Registry
	store storage.Store

	gw      gateway.Gateway
	ownGW   bool
	server  gateway.ServerInfo
	lis     *listener.Listener
	core    *dispatch.Core
	watcher *dispatch.Watcher
	sweeper *registry.Sweeper

	startedAt time.Time
}

// Status is a point-in-time view of the daemon, logged on SIGUSR1.
type Status struct {
	Socket     string
	Activated  bool
	Uptime     time.Duration
	Tags       map[string]gateway.Handle
	Requests   dispatch.Stats
	Goroutines supervisor.Counters
	Server     gateway.ServerInfo
}

func NewApp(opts Options) (*App, error) {
	cfgm := config.NewConfigManager(opts.ConfigPath)
	loaded, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := opts.Overrides.Apply(loaded)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logs, log := logx.New(cfg.LogConfig())

	bus := eventbus.New()
	reg := registry.New()

	var store storage.Store
	if sc, enabled := mapJournalConfig(cfg); enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "journal")))
		if err != nil {
			_ = logs.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		store = st
		log.Info("journal enabled", logx.String("driver", sc.Driver))
	}

	var sweeper *registry.Sweeper
	if maxIdle, every, _ := cfg.Sweep(); maxIdle > 0 {
		sweeper, err = registry.NewSweeper(reg, every, maxIdle, bus, log.With(logx.String("comp", "sweep")))
		if err != nil {
			_ = logs.Close()
			return nil, err
		}
	}

	a := &App{
		cfgm:      cfgm,
		cfg:       cfg,
		overrides: opts.Overrides,
		log:       log.With(logx.String("comp", "app")),
		logs:      logs,
		bus:       bus,
		reg:       reg,
		store:     store,
		gw:        opts.Gateway,
		sweeper:   sweeper,
	}
	a.cur.Store(cfg)
	return a, nil
}

// Config returns the config currently in effect.
func (a *App) Config() *config.Config { return a.cur.Load() }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start connects to the notification service, opens the socket and launches
// every background goroutine. A returned error means nothing is running.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.startedAt = time.Now()
	cfg := a.cfg

	if a.gw == nil {
		gw, err := gateway.Connect(ctx, a.log.With(logx.String("comp", "gateway")))
		if err != nil {
			a.abortStart()
			return err
		}
		a.gw, a.ownGW = gw, true
		ictx, cancel := context.WithTimeout(ctx, 2*time.Second)
		info, err := gw.ServerInfo(ictx)
		cancel()
		if err != nil {
			a.log.Warn("notification server did not identify itself", logx.Err(err))
		} else {
			a.server = info
			a.log.Info("notification server",
				logx.String("name", info.Name),
				logx.String("vendor", info.Vendor),
				logx.String("version", info.Version),
				logx.String("spec", info.SpecVersion),
			)
		}
	}

	lis, err := a.openSocket(cfg)
	if err != nil {
		a.abortStart()
		return err
	}
	a.lis = lis

	a.core = dispatch.New(a.gw, a.reg, mapSettings(cfg),
		dispatch.WithBus(a.bus),
		dispatch.WithLogger(a.log.With(logx.String("comp", "dispatch"))),
		dispatch.WithMaxDatagram(cfg.Socket.MaxDatagram),
	)
	a.watcher = dispatch.NewWatcher(a.gw, a.reg, a.bus, a.log.With(logx.String("comp", "watcher")))

	// Subscribers go first: an activated socket may already hold a datagram.
	if a.store != nil {
		sink := storage.NewSink(a.store, a.bus, a.log.With(logx.String("comp", "journal")))
		a.sup.Go("journal.sink", sink.Run)
	}
	a.sup.GoRestart("closure.watch", a.watcher.Run,
		supervisor.WithRestartBackoff(250*time.Millisecond, 10*time.Second),
		supervisor.WithStopOnCleanExit(false),
	)
	if a.sweeper != nil {
		a.sup.Go("registry.sweep", a.sweeper.Run)
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event",
					logx.String("type", e.Type),
					logx.String("tag", e.Data.Tag),
					logx.Uint32("handle", e.Data.Handle),
				)
			}
		}
	})

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		return a.overrides.Apply(c).Validate()
	})
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", a.cfgm.Watch)

	if every := systemd.WatchdogInterval(); every > 0 {
		a.sup.Go("systemd.watchdog", func(c context.Context) error {
			return systemd.Watchdog(c, every, a.healthy, a.log.With(logx.String("comp", "systemd")))
		})
	}
	a.sup.Go0("status.signal", a.statusOnSignal)

	a.sup.Go("dispatch.loop", func(c context.Context) error {
		return a.core.Run(c, a.lis)
	})

	if _, err := systemd.Ready(); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	}
	_, _ = systemd.Status("listening on %s", a.lis.Path())

	a.log.Info("app started",
		logx.String("socket", a.lis.Path()),
		logx.Bool("activated", a.lis.Activated()),
		logx.String("duration", cfg.Notify.Duration),
	)
	return nil
}

func (a *App) openSocket(cfg *config.Config) (*listener.Listener, error) {
	if cfg.Socket.Activation == nil || *cfg.Socket.Activation {
		l, ok, err := listener.FromActivation()
		if err != nil {
			return nil, err
		}
		if ok {
			return l, nil
		}
	}
	mode, err := cfg.SocketMode()
	if err != nil {
		return nil, err
	}
	return listener.Listen(cfg.Socket.Path, mode)
}

// healthy fails once the bus connection is gone so the watchdog stops pinging.
func (a *App) healthy() error {
	if c, ok := a.gw.(interface{ Connected() bool }); ok && !c.Connected() {
		return gateway.ErrUnavailable
	}
	return a.sup.Err()
}

func (a *App) statusOnSignal(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			a.logStatus()
		}
	}
}

// Status snapshots the running daemon.
func (a *App) Status() Status {
	st := Status{
		Tags:   a.reg.Snapshot(),
		Server: a.server,
	}
	if a.lis != nil {
		st.Socket = a.lis.Path()
		st.Activated = a.lis.Activated()
	}
	if a.core != nil {
		st.Requests = a.core.Stats()
	}
	if a.sup != nil {
		st.Goroutines = a.sup.Counters()
		st.Uptime = time.Since(a.startedAt).Truncate(time.Second)
	}
	return st
}

func (a *App) logStatus() {
	st := a.Status()
	a.log.Info("status",
		logx.String("socket", st.Socket),
		logx.Duration("uptime", st.Uptime),
		logx.Int("tags", len(st.Tags)),
		logx.Any("handles", st.Tags),
		logx.Uint64("handled", st.Requests.Handled),
		logx.Uint64("rejected", st.Requests.Rejected),
		logx.Uint64("failed", st.Requests.Failed),
		logx.Int64("goroutines", st.Goroutines.Active),
		logx.Uint64("restarts", st.Goroutines.Restarts),
	)
}

// Stop cancels everything and releases the socket, bus connection and journal.
// Each step is bounded so one stuck component cannot stall shutdown.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	_, _ = systemd.Stopping()
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("listener", time.Second, func(context.Context) error {
		if a.lis != nil {
			return a.lis.Close()
		}
		return nil
	})
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("gateway", time.Second, func(context.Context) error {
		a.closeGateway()
		return nil
	})
	step("journal", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	if err := a.sup.Err(); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error("stopped with error", logx.Err(err))
	} else {
		a.log.Info("stopped")
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// abortStart releases what NewApp and a partial Start acquired.
func (a *App) abortStart() {
	a.sup.Cancel()
	a.closeGateway()
	if a.store != nil {
		_ = a.store.Close()
		a.store = nil
	}
	if a.logs != nil {
		_ = a.logs.Close()
		a.logs = nil
	}
}

func (a *App) closeGateway() {
	if !a.ownGW {
		return
	}
	if c, ok := a.gw.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}
