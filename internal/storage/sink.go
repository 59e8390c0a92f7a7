package storage

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"tagnotify/internal/eventbus"
	logx "tagnotify/pkg/logx"
)

const appendTimeout = 2 * time.Second

const sinkBuffer = 256

// Sink copies bus events into a Store until ctx is done.
type Sink struct {
	store  Store
	log    logx.Logger
	events <-chan eventbus.Event
	unsub  func()

	warn rate.Sometimes
}

// NewSink subscribes to bus immediately, so events published before Run
// starts are buffered rather than lost. Run (or Close) releases the
// subscription.
func NewSink(store Store, bus eventbus.Bus, log logx.Logger) *Sink {
	events, unsub := bus.Subscribe(sinkBuffer)
	return &Sink{
		store:  store,
		log:    log,
		events: events,
		unsub:  unsub,
		warn:   rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
}

// Close drops the subscription without running the sink.
func (s *Sink) Close() { s.unsub() }

// RecordOf converts a bus event to a journal record.
func RecordOf(e eventbus.Event) Record {
	return Record{
		At:         e.Time,
		Kind:       e.Type,
		Tag:        e.Data.Tag,
		Tags:       e.Data.Tags,
		Handle:     e.Data.Handle,
		ReplacesID: e.Data.ReplacesID,
		Reason:     e.Data.Reason,
		Error:      e.Data.Error,
	}
}

// Run records events until ctx is done. Events are dropped only when the
// subscription buffer overflows.
func (s *Sink) Run(ctx context.Context) error {
	defer s.unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-s.events:
			if !ok {
				return nil
			}
			s.write(ctx, e)
		}
	}
}

func (s *Sink) write(ctx context.Context, e eventbus.Event) {
	actx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()
	if err := s.store.Append(actx, RecordOf(e)); err != nil && ctx.Err() == nil {
		s.warn.Do(func() {
			s.log.Warn("journal append failed", logx.String("kind", e.Type), logx.Err(err))
		})
	}
}
