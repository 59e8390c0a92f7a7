// Package listener owns the Unix datagram socket requests arrive on.
package listener

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/coreos/go-systemd/v22/activation"
)

// ErrClosed is returned by Receive after Close.
var ErrClosed = errors.New("listener closed")

// DefaultMode is applied to sockets the daemon binds itself.
const DefaultMode os.FileMode = 0o600

// Listener receives raw datagrams.
type Listener struct {
	conn   net.PacketConn
	path   string
	owned  bool // we bound path and remove it on Close
	closed atomic.Bool
}

// Listen binds a unixgram socket at path. A stale socket left by a previous
// run is removed first; any other kind of file at path is an error.
func Listen(path string, mode os.FileMode) (*Listener, error) {
	if path == "" {
		return nil, errors.New("socket path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("socket dir: %w", err)
	}
	if err := removeStale(path); err != nil {
		return nil, err
	}

	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", path, err)
	}
	if mode == 0 {
		mode = DefaultMode
	}
	if err := os.Chmod(path, mode); err != nil {
		_ = conn.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("chmod %s: %w", path, err)
	}
	return &Listener{conn: conn, path: path, owned: true}, nil
}

// FromActivation adopts the first datagram socket passed by systemd
// (ListenDatagram= in the .socket unit). ok is false when none was passed.
func FromActivation() (l *Listener, ok bool, err error) {
	conns, err := activation.PacketConns()
	if err != nil {
		return nil, false, fmt.Errorf("socket activation: %w", err)
	}
	var picked net.PacketConn
	for _, c := range conns {
		if c == nil {
			continue
		}
		if picked == nil {
			picked = c
			continue
		}
		_ = c.Close()
	}
	if picked == nil {
		return nil, false, nil
	}
	path := ""
	if a := picked.LocalAddr(); a != nil {
		path = a.String()
	}
	return &Listener{conn: picked, path: path}, true, nil
}

func removeStale(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}

// Receive blocks until a datagram arrives and copies it into buf. Datagrams
// longer than buf are truncated by the kernel.
func (l *Listener) Receive(buf []byte) (int, error) {
	n, _, err := l.conn.ReadFrom(buf)
	if err != nil {
		if l.closed.Load() || errors.Is(err, net.ErrClosed) {
			return 0, ErrClosed
		}
		return 0, fmt.Errorf("receive: %w", err)
	}
	return n, nil
}

// Path is the socket path (empty for unnamed activated sockets).
func (l *Listener) Path() string { return l.path }

// Activated reports whether the socket came from systemd.
func (l *Listener) Activated() bool { return !l.owned }

// Close unblocks Receive and removes the socket file if we created it.
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := l.conn.Close()
	if l.owned {
		if rerr := os.Remove(l.path); rerr != nil && !errors.Is(rerr, os.ErrNotExist) && err == nil {
			err = rerr
		}
	}
	return err
}
