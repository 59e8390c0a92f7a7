package dispatch

import (
	"context"
	"errors"
	"sync"

	"tagnotify/internal/gateway"
	"tagnotify/internal/listener"
)

// fakeGateway records Show calls and hands out scripted handles.
type fakeGateway struct {
	mu      sync.Mutex
	calls   []gateway.Notification
	handles []gateway.Handle
	errs    []error
	seq     gateway.Handle

	shown  chan gateway.Notification
	closed chan gateway.Closed
	subErr error
	subs   int
}

func newFakeGateway(handles ...gateway.Handle) *fakeGateway {
	return &fakeGateway{
		handles: handles,
		seq:     100,
		shown:   make(chan gateway.Notification, 64),
		closed:  make(chan gateway.Closed, 64),
	}
}

// failNext makes the next Show return err.
func (g *fakeGateway) failNext(err error) {
	g.mu.Lock()
	g.errs = append(g.errs, err)
	g.mu.Unlock()
}

func (g *fakeGateway) Show(ctx context.Context, n gateway.Notification) (gateway.Handle, error) {
	g.mu.Lock()
	g.calls = append(g.calls, n)
	var err error
	if len(g.errs) > 0 {
		err, g.errs = g.errs[0], g.errs[1:]
	}
	var h gateway.Handle
	if err == nil {
		if len(g.handles) > 0 {
			h, g.handles = g.handles[0], g.handles[1:]
		} else {
			g.seq++
			h = g.seq
		}
	}
	g.mu.Unlock()

	g.shown <- n
	if err != nil {
		return gateway.NoHandle, err
	}
	return h, nil
}

func (g *fakeGateway) SubscribeClosed(ctx context.Context) (<-chan gateway.Closed, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.subErr != nil {
		return nil, g.subErr
	}
	g.subs++
	return g.closed, nil
}

func (g *fakeGateway) Calls() []gateway.Notification {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gateway.Notification(nil), g.calls...)
}

// fakeSource feeds datagrams to Core.Run.
type fakeSource struct {
	ch   chan []byte
	done chan struct{}
	once sync.Once
	errc chan error // next Receive fails with this
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		ch:   make(chan []byte, 64),
		done: make(chan struct{}),
		errc: make(chan error, 1),
	}
}

func (s *fakeSource) send(b string) { s.ch <- []byte(b) }

func (s *fakeSource) fail(err error) { s.errc <- err }

func (s *fakeSource) Receive(buf []byte) (int, error) {
	select {
	case b := <-s.ch:
		return copy(buf, b), nil
	case err := <-s.errc:
		return 0, err
	case <-s.done:
		return 0, listener.ErrClosed
	}
}

func (s *fakeSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

var errBoom = errors.New("boom")
