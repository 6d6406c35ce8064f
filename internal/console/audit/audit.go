// Package audit provides an append-only audit log for console auth activity.
// Every signin, signout, refresh, and authorization denial is recorded.
package audit

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies audit events.
type EventType string

const (
	EventSigninSuccess       EventType = "auth.signin"
	EventSigninFailed        EventType = "auth.signin_failed"
	EventSignout             EventType = "auth.signout"
	EventTokenRefreshed      EventType = "auth.token_refreshed"
	EventAuthorizationDenied EventType = "auth.authorization_denied"
	EventAdminCreated        EventType = "admin.created"
	EventAdminDisabled       EventType = "admin.disabled"
)

// Event is a single audit log entry.
type Event struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Type       EventType `json:"type"`
	Actor      string    `json:"actor,omitempty"` // principal ID or attempted username
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Summary    string    `json:"summary"`
	Detail     any       `json:"detail,omitempty"`
}

// Log is an append-only in-memory audit log.
type Log struct {
	events []Event
	mu     sync.RWMutex
	maxLen int // ring buffer size (0 = unbounded)
}

// NewLog creates a new audit log. maxLen=0 means unbounded.
func NewLog(maxLen int) *Log {
	return &Log{
		events: make([]Event, 0, 1024),
		maxLen: maxLen,
	}
}

// Record appends an event to the log.
func (l *Log) Record(evt Event) {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, evt)

	// Ring buffer: drop oldest if over capacity
	if l.maxLen > 0 && len(l.events) > l.maxLen {
		l.events = l.events[len(l.events)-l.maxLen:]
	}
}

// Emit is a convenience for recording a new event with minimal args.
func (l *Log) Emit(typ EventType, actor, summary string) {
	l.Record(Event{
		Type:    typ,
		Actor:   actor,
		Summary: summary,
	})
}

// Filter selects events. Limit=0 means all.
type Filter struct {
	Actor string
	Type  EventType
	Since time.Time
	Until time.Time
	Limit int
}

// Query returns filtered events, newest first.
func (l *Log) Query(f Filter) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []Event

	// Walk backwards (newest first)
	for i := len(l.events) - 1; i >= 0; i-- {
		evt := l.events[i]

		if f.Actor != "" && evt.Actor != f.Actor {
			continue
		}
		if f.Type != "" && evt.Type != f.Type {
			continue
		}
		if !f.Since.IsZero() && evt.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && evt.Timestamp.After(f.Until) {
			continue
		}

		result = append(result, evt)

		if f.Limit > 0 && len(result) >= f.Limit {
			break
		}
	}

	return result
}

// Recent returns the N most recent events.
func (l *Log) Recent(n int) []Event {
	return l.Query(Filter{Limit: n})
}

// Count returns total event count.
func (l *Log) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// MarshalJSON exports all events as JSON (for API responses).
func (l *Log) MarshalJSON() ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return json.Marshal(l.events)
}
