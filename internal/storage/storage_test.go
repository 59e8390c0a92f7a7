package storage

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tagnotify/internal/eventbus"
	logx "tagnotify/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, d := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		if err != nil || st != nil {
			t.Fatalf("driver %q: st=%v err=%v", d, st, err)
		}
	}
	if _, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected unknown driver error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestFileStoreAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "journal.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := st.Append(ctx, Record{Kind: eventbus.TypeShown, Tag: "volume", Handle: 7}); err != nil {
		t.Fatal(err)
	}
	if err := st.Append(ctx, Record{Kind: eventbus.TypeClosed, Handle: 7, Reason: 2, Tags: []string{"volume"}}); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}
	if err := st.Append(ctx, Record{Kind: "x"}); err != ErrClosed {
		t.Fatalf("append after close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var got []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		got = append(got, r)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records", len(got))
	}
	if got[0].Tag != "volume" || got[0].Handle != 7 || got[0].At.IsZero() {
		t.Fatalf("first=%+v", got[0])
	}
	if got[1].Reason != 2 || len(got[1].Tags) != 1 {
		t.Fatalf("second=%+v", got[1])
	}
}

func TestSQLiteStoreAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := st.Append(ctx, Record{Kind: eventbus.TypeShown, Tag: "volume", Handle: 9, ReplacesID: 7}); err != nil {
		t.Fatal(err)
	}
	if err := st.Append(ctx, Record{Kind: eventbus.TypeFailed, Tag: "volume", Error: "boom"}); err != nil {
		t.Fatal(err)
	}

	db := st.(*sqliteStore).db
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal WHERE tag = ?`, "volume").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("rows=%d", n)
	}
	var replaces int64
	var errText sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT replaces_id, err FROM journal WHERE handle = 9`).Scan(&replaces, &errText); err != nil {
		t.Fatal(err)
	}
	if replaces != 7 || errText.Valid {
		t.Fatalf("replaces=%d err=%v", replaces, errText)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	// reopening runs the migration again
	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = st.Close()
}

type memStore struct {
	recs chan Record
}

func (m *memStore) Append(_ context.Context, r Record) error {
	m.recs <- r
	return nil
}

func (m *memStore) Close() error { return nil }

func TestSinkCopiesEvents(t *testing.T) {
	bus := eventbus.New()
	st := &memStore{recs: make(chan Record, 4)}
	sink := NewSink(st, bus, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx) }()

	// wait until subscribed
	deadline := time.Now().Add(2 * time.Second)
	for {
		bus.Publish(eventbus.Event{Type: eventbus.TypeShown, Data: eventbus.Notice{Tag: "volume", Handle: 3}})
		select {
		case r := <-st.recs:
			if r.Kind != eventbus.TypeShown || r.Tag != "volume" || r.Handle != 3 || r.At.IsZero() {
				t.Fatalf("record=%+v", r)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatal(err)
			}
			return
		case <-time.After(20 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("sink never recorded an event")
		}
	}
}

func TestSinkKeepsEventsPublishedBeforeRun(t *testing.T) {
	bus := eventbus.New()
	st := &memStore{recs: make(chan Record, 4)}
	sink := NewSink(st, bus, logx.Nop())
	bus.Publish(eventbus.Event{Type: eventbus.TypeShown, Data: eventbus.Notice{Tag: "volume", Handle: 7}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx) }()

	select {
	case r := <-st.recs:
		if r.Tag != "volume" || r.Handle != 7 {
			t.Fatalf("record=%+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event published before Run was not recorded")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestSinkCloseUnsubscribes(t *testing.T) {
	bus := eventbus.New()
	sink := NewSink(&memStore{recs: make(chan Record, 1)}, bus, logx.Nop())
	sink.Close()
	_, ok := <-sink.events
	if ok {
		t.Fatal("events channel still open after Close")
	}
}
