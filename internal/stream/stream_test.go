package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSSEFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewSSE(rec)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Emit(Log("[SEARCH] Starting search...")); err != nil {
		t.Fatal(err)
	}
	if err := s.Emit(Event{Kind: KindComplete, Payload: map[string]int{"results": 0, "analyzed": 0}}); err != nil {
		t.Fatal(err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: log\ndata: {\"message\":\"[SEARCH] Starting search...\"}\n\n") {
		t.Fatalf("missing log frame in %q", body)
	}
	if !strings.Contains(body, "event: complete\n") {
		t.Fatalf("missing complete frame in %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestSSERejectsEventsAfterTerminal(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewSSE(rec)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Emit(Error("embedding failed")); err != nil {
		t.Fatal(err)
	}
	if err := s.Emit(Log("late")); err != ErrStreamClosed {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
	if strings.Contains(rec.Body.String(), "late") {
		t.Fatal("event written after terminal frame")
	}
}

func TestCapturePreservesOrderAndCloses(t *testing.T) {
	var c Capture
	_ = c.Emit(Log("one"))
	_ = c.Emit(Log("two"))
	_ = c.Emit(Event{Kind: KindComplete, Payload: nil})
	if err := c.Emit(Log("after")); err != ErrStreamClosed {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
	kinds := c.Kinds()
	if len(kinds) != 3 || kinds[0] != KindLog || kinds[2] != KindComplete {
		t.Fatalf("unexpected kinds %v", kinds)
	}
}
