// Package stream serializes pipeline progress into an ordered event
// sequence for the caller. Events are emitted one at a time on a single
// logical channel; exactly one complete or error event ends a stream and
// nothing may be emitted after it.
package stream

import (
	"errors"
)

type Kind string

const (
	KindLog      Kind = "log"
	KindResult   Kind = "result"
	KindError    Kind = "error"
	KindComplete Kind = "complete"
)

func (k Kind) Terminal() bool {
	return k == KindComplete || k == KindError
}

type Event struct {
	Kind    Kind
	Payload any
}

// Emitter delivers events in strict call order. Implementations are used by
// a single coordinating goroutine and need not be safe for concurrent use.
type Emitter interface {
	Emit(ev Event) error
}

var ErrStreamClosed = errors.New("event stream already closed")

func Log(message string) Event {
	return Event{Kind: KindLog, Payload: map[string]string{"message": message}}
}

func Error(message string) Event {
	return Event{Kind: KindError, Payload: map[string]string{"message": message}}
}

// Discard drops every event; used by the export paths that only want the
// final aggregate.
type Discard struct{}

func (Discard) Emit(Event) error { return nil }

// Capture records events in order, for tests and the CLI.
type Capture struct {
	Events []Event
	closed bool
}

func (c *Capture) Emit(ev Event) error {
	if c.closed {
		return ErrStreamClosed
	}
	c.Events = append(c.Events, ev)
	if ev.Kind.Terminal() {
		c.closed = true
	}
	return nil
}

func (c *Capture) Kinds() []Kind {
	out := make([]Kind, len(c.Events))
	for i, ev := range c.Events {
		out[i] = ev.Kind
	}
	return out
}
