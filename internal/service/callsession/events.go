package callsession

import (
	"sync"

	"callsync-core/internal/domain"
)

// SessionHandler receives a snapshot copy of the session the event is about
type SessionHandler func(session *domain.CallSession)

// Emitter is a typed observer registry for call lifecycle events. Every
// subscription returns an unsubscribe func so handlers cannot accumulate
// across re-initialization.
type Emitter struct {
	mu       sync.Mutex
	nextID   int
	answered map[int]SessionHandler
	declined map[int]SessionHandler
	terminal map[int]SessionHandler
}

// NewEmitter creates an empty event registry
func NewEmitter() *Emitter {
	return &Emitter{
		answered: make(map[int]SessionHandler),
		declined: make(map[int]SessionHandler),
		terminal: make(map[int]SessionHandler),
	}
}

// OnCallAnswered registers a handler fired exactly once per call when the
// user answers
func (e *Emitter) OnCallAnswered(h SessionHandler) (unsubscribe func()) {
	return e.subscribe(e.answered, h)
}

// OnCallDeclined registers a handler fired exactly once per call when the
// user declines
func (e *Emitter) OnCallDeclined(h SessionHandler) (unsubscribe func()) {
	return e.subscribe(e.declined, h)
}

// OnSessionTerminal registers a handler fired exactly once per call when the
// session reaches any terminal state
func (e *Emitter) OnSessionTerminal(h SessionHandler) (unsubscribe func()) {
	return e.subscribe(e.terminal, h)
}

func (e *Emitter) subscribe(registry map[int]SessionHandler, h SessionHandler) func() {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	registry[id] = h
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(registry, id)
		e.mu.Unlock()
	}
}

// handlers are invoked outside the lock so a handler may subscribe or
// unsubscribe without deadlocking
func (e *Emitter) emit(registry map[int]SessionHandler, session *domain.CallSession) {
	e.mu.Lock()
	hs := make([]SessionHandler, 0, len(registry))
	for _, h := range registry {
		hs = append(hs, h)
	}
	e.mu.Unlock()

	for _, h := range hs {
		snapshot := *session
		h(&snapshot)
	}
}

func (e *Emitter) emitAnswered(session *domain.CallSession) { e.emit(e.answered, session) }
func (e *Emitter) emitDeclined(session *domain.CallSession) { e.emit(e.declined, session) }
func (e *Emitter) emitTerminal(session *domain.CallSession) { e.emit(e.terminal, session) }
