package events

import (
	"context"
	"sync"
)

// Log is an append-only in-memory event log. Sequence numbers start at 1.
type Log struct {
	mu     sync.RWMutex
	events []Event
}

var _ Sink = (*Log)(nil)

// NewLog creates an empty Log.
func NewLog() *Log {
	return &Log{}
}

// Emit appends e, assigning the next sequence number.
func (l *Log) Emit(_ context.Context, e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.Seq = uint64(len(l.events)) + 1
	l.events = append(l.events, e)
	return nil
}

// Since returns a copy of every event with a sequence number greater than seq.
func (l *Log) Since(seq uint64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq >= uint64(len(l.events)) {
		return []Event{}
	}
	out := make([]Event, len(l.events)-int(seq))
	copy(out, l.events[seq:])
	return out
}

// Len returns the number of events in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
