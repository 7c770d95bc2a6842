package events

import "sync"

// Event represents a structured state change emitted by the engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events until they are flushed to a downstream emitter.
// Invocations emit into a buffer so that events of a discarded invocation are
// never observed.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit records the event.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Events returns a copy of the buffered events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// Flush forwards buffered events to dst in order and clears the buffer.
func (b *Buffer) Flush(dst Emitter) {
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if dst == nil {
		return
	}
	for _, evt := range pending {
		dst.Emit(evt)
	}
}

// Fanout forwards every event to each emitter in turn.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, e := range f {
		if e != nil {
			e.Emit(evt)
		}
	}
}
