// Package gateway talks to the desktop notification service.
package gateway

import (
	"context"
	"errors"
	"time"
)

// Handle identifies a notification issued by the notification service.
// Beyond equality, the only meaningful value is NoHandle.
type Handle uint32

// NoHandle asks the service for a fresh notification instead of a replacement.
const NoHandle Handle = 0

// ErrUnavailable means the connection to the notification service is gone.
// Callers treat it as fatal; every other Show error concerns one notification only.
var ErrUnavailable = errors.New("notification service unavailable")

// CloseReason is the reason code carried by NotificationClosed.
type CloseReason uint32

const (
	ReasonExpired   CloseReason = 1
	ReasonDismissed CloseReason = 2
	ReasonCalled    CloseReason = 3
	ReasonUndefined CloseReason = 4
)

func (r CloseReason) String() string {
	switch r {
	case ReasonExpired:
		return "expired"
	case ReasonDismissed:
		return "dismissed"
	case ReasonCalled:
		return "closed"
	case ReasonUndefined:
		return "undefined"
	default:
		return "unknown"
	}
}

// Notification contains what Show sends. AppName, Icon and HintName come from
// daemon settings; the rest from the request.
type Notification struct {
	AppName    string
	ReplacesID Handle
	Icon       string
	Summary    string
	Body       string
	HintName   string        // key used for Hint, "value" when empty
	Hint       *int32        // omitted when nil
	Timeout    time.Duration // <0 = server default, 0 = never expire
}

// ExpireMillis converts Timeout to the expire_timeout argument.
func (n Notification) ExpireMillis() int32 {
	if n.Timeout < 0 {
		return -1
	}
	ms := n.Timeout.Milliseconds()
	if ms > int64(^uint32(0)>>1) {
		return int32(^uint32(0) >> 1)
	}
	return int32(ms)
}

// Closed reports that a notification is no longer visible.
type Closed struct {
	ID     Handle
	Reason CloseReason
}

// Gateway is the notification service as seen by the dispatch core.
type Gateway interface {
	// Show displays n and returns its handle. When n.ReplacesID is not
	// NoHandle the service replaces that notification in place.
	Show(ctx context.Context, n Notification) (Handle, error)
	// SubscribeClosed streams Closed events until ctx is done or the
	// connection drops; the channel is closed in both cases.
	SubscribeClosed(ctx context.Context) (<-chan Closed, error)
}
