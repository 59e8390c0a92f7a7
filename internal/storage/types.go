package storage

import (
	"errors"
	"time"
)

var ErrClosed = errors.New("journal closed")

// Config selects a journal driver. An empty Driver or "none" disables it.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is one journal line. Kind is an eventbus event type.
type Record struct {
	At         time.Time `json:"at"`
	Kind       string    `json:"kind"`
	Tag        string    `json:"tag,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Handle     uint32    `json:"handle,omitempty"`
	ReplacesID uint32    `json:"replaces_id,omitempty"`
	Reason     uint32    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
}
