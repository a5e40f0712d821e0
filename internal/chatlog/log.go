// Package chatlog holds the append-only conversation log that every other
// session component reads from or appends to.
package chatlog

import (
	"sync"
	"time"

	"github.com/user/urbanflow/internal/types"
)

// Observer is notified synchronously after each append, before Append
// returns, so consumers never read stale state.
type Observer func(types.Message)

// Log is an in-memory append-only message log. Appending is the only
// mutation; entries are never deleted, reordered, or edited. Sequence ids
// are assigned monotonically and define conversation order.
type Log struct {
	mu        sync.RWMutex
	next      types.MessageID
	entries   []types.Message
	observers []Observer
	now       func() time.Time
}

// New creates an empty Log.
func New() *Log {
	return &Log{next: 1, now: time.Now}
}

// Subscribe registers an observer for future appends.
func (l *Log) Subscribe(fn Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

// Append assigns the next sequence id to msg, records it, and notifies all
// observers before returning. A zero timestamp is stamped with the current
// time; timestamps are display-only and never affect ordering.
func (l *Log) Append(msg types.Message) types.MessageID {
	l.mu.Lock()
	msg.ID = l.next
	l.next++
	if msg.At.IsZero() {
		msg.At = l.now()
	}
	l.entries = append(l.entries, msg)
	observers := make([]Observer, len(l.observers))
	copy(observers, l.observers)
	l.mu.Unlock()

	for _, fn := range observers {
		fn(msg)
	}
	return msg.ID
}

// All returns a stable copy of the log in append order.
func (l *Log) All() []types.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Message, len(l.entries))
	copy(out, l.entries)
	return out
}

// Get returns the message with the given id.
func (l *Log) Get(id types.MessageID) (types.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, m := range l.entries {
		if m.ID == id {
			return m, true
		}
	}
	return types.Message{}, false
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
