package stream

import (
	"errors"
	"fmt"
)

// ErrStopped is returned by Manager calls after Run has returned.
var ErrStopped = errors.New("stream manager stopped")

// ChannelError is a transport failure on the push channel.
type ChannelError struct {
	RequestID string
	Op        string
	Err       error
}

func (e *ChannelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("channel %s for %s failed", e.Op, e.RequestID)
	}
	return fmt.Sprintf("channel %s for %s: %v", e.Op, e.RequestID, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// DecodeError is an inbound frame that could not be understood.
type DecodeError struct {
	Snippet string
	Err     error
}

func newDecodeError(data []byte, err error) *DecodeError {
	const limit = 80
	s := string(data)
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return &DecodeError{Snippet: s, Err: err}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", e.Snippet, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
