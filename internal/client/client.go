// Package client sends requests to a running daemon.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"tagnotify/internal/wire"
)

// ErrNoDaemon means nothing is listening on the socket path.
var ErrNoDaemon = errors.New("daemon not running")

const writeTimeout = 2 * time.Second

// Send encodes req and writes it as one datagram to the socket at path.
// limit is the daemon's datagram size; 0 uses the default.
func Send(ctx context.Context, path string, req wire.Request, limit int) error {
	if limit <= 0 {
		limit = wire.MaxDatagram
	}
	b, err := wire.Encode(req, limit)
	if err != nil {
		return err
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unixgram", path)
	if err != nil {
		if isNotListening(err) {
			return fmt.Errorf("%w: %s", ErrNoDaemon, path)
		}
		return fmt.Errorf("dial %s: %w", path, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(writeTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetWriteDeadline(deadline)
	if _, err := conn.Write(b); err != nil {
		if isNotListening(err) {
			return fmt.Errorf("%w: %s", ErrNoDaemon, path)
		}
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func isNotListening(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}
