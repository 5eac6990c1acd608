package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// SSE writes events in server-sent-event framing, flushing after each one so
// the caller sees results as they complete rather than when the buffer
// fills.
type SSE struct {
	bw      *bufio.Writer
	flusher http.Flusher
	closed  bool
}

func NewSSE(w http.ResponseWriter) (*SSE, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming unsupported")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &SSE{bw: bufio.NewWriter(w), flusher: flusher}, nil
}

func (s *SSE) Emit(ev Event) error {
	if s.closed {
		return ErrStreamClosed
	}
	blob, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", ev.Kind, err)
	}
	if _, err := s.bw.WriteString("event: " + string(ev.Kind) + "\n"); err != nil {
		return err
	}
	if _, err := s.bw.WriteString("data: "); err != nil {
		return err
	}
	if _, err := s.bw.Write(blob); err != nil {
		return err
	}
	if _, err := s.bw.WriteString("\n\n"); err != nil {
		return err
	}
	if err := s.bw.Flush(); err != nil {
		return err
	}
	s.flusher.Flush()
	if ev.Kind.Terminal() {
		s.closed = true
	}
	return nil
}
