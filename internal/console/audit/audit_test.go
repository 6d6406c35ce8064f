package audit

import (
	"testing"
	"time"
)

func TestRecordAssignsIDAndTimestamp(t *testing.T) {
	l := NewLog(0)
	l.Record(Event{Type: EventSigninSuccess, Actor: "test-admin-001", Summary: "signin"})

	events := l.Recent(1)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID == "" {
		t.Fatal("expected generated ID")
	}
	if events[0].Timestamp.IsZero() {
		t.Fatal("expected timestamp")
	}
}

func TestRingBufferDropsOldest(t *testing.T) {
	l := NewLog(3)
	for i := 0; i < 5; i++ {
		l.Emit(EventSigninFailed, "actor", "attempt")
	}

	if l.Count() != 3 {
		t.Fatalf("expected ring buffer to cap at 3, got %d", l.Count())
	}
}

func TestQueryFilters(t *testing.T) {
	l := NewLog(0)
	l.Emit(EventSigninSuccess, "alice", "signin ok")
	l.Emit(EventSigninFailed, "bob", "bad password")
	l.Emit(EventSignout, "alice", "signout")

	byActor := l.Query(Filter{Actor: "alice"})
	if len(byActor) != 2 {
		t.Fatalf("expected 2 alice events, got %d", len(byActor))
	}

	byType := l.Query(Filter{Type: EventSigninFailed})
	if len(byType) != 1 || byType[0].Actor != "bob" {
		t.Fatalf("unexpected type filter result %+v", byType)
	}

	limited := l.Query(Filter{Limit: 1})
	if len(limited) != 1 || limited[0].Type != EventSignout {
		t.Fatalf("expected newest event first, got %+v", limited)
	}
}

func TestQueryTimeWindow(t *testing.T) {
	l := NewLog(0)
	old := time.Now().UTC().Add(-2 * time.Hour)
	l.Record(Event{Type: EventSigninSuccess, Actor: "a", Timestamp: old})
	l.Record(Event{Type: EventSigninSuccess, Actor: "b"})

	recent := l.Query(Filter{Since: time.Now().UTC().Add(-time.Hour)})
	if len(recent) != 1 || recent[0].Actor != "b" {
		t.Fatalf("expected only the recent event, got %+v", recent)
	}

	older := l.Query(Filter{Until: time.Now().UTC().Add(-time.Hour)})
	if len(older) != 1 || older[0].Actor != "a" {
		t.Fatalf("expected only the old event, got %+v", older)
	}
}
