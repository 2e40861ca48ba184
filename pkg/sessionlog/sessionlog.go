// Package sessionlog keeps the human-readable narration of a search session.
// It is observational only: nothing reads it to make decisions, and truncating it
// never changes behavior.
package sessionlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/ritzau/relgraph/pkg/logging"
)

// DefaultCapacity bounds the number of retained entries.
const DefaultCapacity = 200

// Entry is one timestamped line of the log.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Log is an append-only, bounded sequence of entries.
type Log struct {
	mu       sync.Mutex
	entries  []Entry // oldest first; Entries reverses
	capacity int
	now      func() time.Time
	sink     func(Entry)
}

// Option configures a Log.
type Option func(*Log)

// WithCapacity sets how many entries are kept. Older entries are dropped first.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithClock replaces time.Now (for tests).
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// WithSink registers a callback invoked for every appended entry, outside the lock.
func WithSink(sink func(Entry)) Option {
	return func(l *Log) {
		l.sink = sink
	}
}

// New creates an empty log.
func New(opts ...Option) *Log {
	l := &Log{
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records a message.
func (l *Log) Append(message string) Entry {
	l.mu.Lock()
	e := Entry{Timestamp: l.now(), Message: message}
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.capacity; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
	sink := l.sink
	l.mu.Unlock()

	logging.Debug("session log", "entry", message)
	if sink != nil {
		sink(e)
	}
	return e
}

// Appendf records a formatted message.
func (l *Log) Appendf(format string, args ...any) Entry {
	return l.Append(fmt.Sprintf(format, args...))
}

// Entries returns a copy of the log, newest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[len(l.entries)-1-i] = e
	}
	return out
}

// Clear drops all entries.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
