package event

import (
	"sync"

	"github.com/google/uuid"
)

// Log is an append-only, in-order record of domain events.
// Appends assign sequence numbers; entries are never mutated or removed.
type Log struct {
	mu      sync.Mutex
	entries []Event
	subs    []chan Event
}

// NewLog creates an empty event log.
func NewLog() *Log {
	return &Log{entries: make([]Event, 0, 1024)}
}

// Stamp assigns the next sequence number and a stream ID without
// recording the event. An operation stamps its event, makes the write
// durable, and only then Records it; an abandoned stamp leaves no gap
// because the sequence is derived from the recorded entries.
func (l *Log) Stamp(e Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Seq = uint64(len(l.entries)) + 1
	if e.ID == (uuid.UUID{}) {
		e.ID = uuid.New()
	}
	return e
}

// Record appends a stamped event and fans it out to subscribers.
// Slow subscribers are skipped rather than blocking settlement.
func (l *Log) Record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, e)
	for _, ch := range l.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Append stamps and records in one step. Returns the stored event.
func (l *Log) Append(e Event) Event {
	e = l.Stamp(e)
	l.Record(e)
	return e
}

// Restore re-inserts an already-sequenced event during rehydration.
// No fan-out: restored history predates any subscriber.
func (l *Log) Restore(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Events returns a snapshot copy of the full stream in append order.
func (l *Log) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Subscribe returns a buffered channel receiving every event appended
// after the call. The channel is never closed by the log.
func (l *Log) Subscribe() <-chan Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan Event, 256)
	l.subs = append(l.subs, ch)
	return ch
}
