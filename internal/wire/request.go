// Package wire defines the datagram schema accepted by the daemon.
//
// A request is a single JSON object:
//
//	{"tag": "volume", "body": "Speakers", "value": 50}
//
// tag is required and non-empty; body and value may be omitted or null.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MaxDatagram is the default cap on a single request datagram.
const MaxDatagram = 1024

// MaxDatagramLimit is the largest datagram a Unix socket buffer is configured to accept.
const MaxDatagramLimit = 65507

var (
	ErrMalformed  = errors.New("malformed request")
	ErrMissingTag = errors.New("request tag is empty")
	ErrTooLarge   = errors.New("encoded request exceeds datagram limit")
)

// Request asks the daemon to show (or replace) the notification for Tag.
type Request struct {
	Tag   string  `json:"tag"`
	Body  *string `json:"body,omitempty"`
	Value *int32  `json:"value,omitempty"`
}

// BodyText returns the body, or "" when none was sent.
func (r Request) BodyText() string {
	if r.Body == nil {
		return ""
	}
	return *r.Body
}

// DecodeError reports why a datagram was rejected.
type DecodeError struct {
	Size int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %d-byte datagram: %v", e.Size, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses one datagram. Field names match exactly; unknown fields
// (including differently cased ones) are ignored.
func Decode(b []byte) (Request, error) {
	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&fields); err != nil {
		return Request{}, &DecodeError{Size: len(b), Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	// reject trailing tokens (e.g. two records in one datagram)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Request{}, &DecodeError{Size: len(b), Err: fmt.Errorf("%w: trailing data", ErrMalformed)}
	}
	if fields == nil {
		return Request{}, &DecodeError{Size: len(b), Err: fmt.Errorf("%w: not an object", ErrMalformed)}
	}

	var r Request
	for key, dst := range map[string]any{"tag": &r.Tag, "body": &r.Body, "value": &r.Value} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return Request{}, &DecodeError{Size: len(b), Err: fmt.Errorf("%w: %s: %v", ErrMalformed, key, err)}
		}
	}
	if strings.TrimSpace(r.Tag) == "" {
		return Request{}, &DecodeError{Size: len(b), Err: ErrMissingTag}
	}
	return r, nil
}

// Encode renders r in the wire schema, refusing encodings larger than limit
// (limit <= 0 means MaxDatagram).
func Encode(r Request, limit int) ([]byte, error) {
	if strings.TrimSpace(r.Tag) == "" {
		return nil, ErrMissingTag
	}
	if limit <= 0 {
		limit = MaxDatagram
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	if len(b) > limit {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(b), limit)
	}
	return b, nil
}
