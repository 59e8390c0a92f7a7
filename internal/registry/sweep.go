package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"tagnotify/internal/eventbus"
	logx "tagnotify/pkg/logx"
)

// Sweeper periodically evicts idle entries on a cron schedule.
type Sweeper struct {
	reg    *Registry
	maxAge time.Duration
	sched  cron.Schedule
	bus    eventbus.Bus
	log    logx.Logger
}

// NewSweeper parses every as a cron spec ("@every 10m", "*/5 * * * *", ...).
func NewSweeper(reg *Registry, every string, maxAge time.Duration, bus eventbus.Bus, log logx.Logger) (*Sweeper, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("registry sweep: max idle must be > 0")
	}
	sched, err := ParseSchedule(every)
	if err != nil {
		return nil, err
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Sweeper{reg: reg, maxAge: maxAge, sched: sched, bus: bus, log: log}, nil
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a five-field cron spec or a descriptor such as "@every 10m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("registry sweep: invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Run sweeps on schedule until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	c := cron.New()
	c.Schedule(s.sched, cron.FuncJob(func() { s.SweepOnce(time.Now()) }))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// SweepOnce evicts entries idle for longer than maxAge.
func (s *Sweeper) SweepOnce(now time.Time) []string {
	removed := s.reg.SweepIdle(s.maxAge, now)
	if len(removed) == 0 {
		return nil
	}
	s.log.Info("evicted idle tags", logx.Strs("tags", removed), logx.Duration("max_idle", s.maxAge))
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeSwept, Time: now, Data: eventbus.Notice{Tags: removed}})
	return removed
}
