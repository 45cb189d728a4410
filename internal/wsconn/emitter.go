package wsconn

import "sync"

// emitter is the on/off/once bookkeeping shared by both WebSocketAdapter
// implementations, adapted from the teacher repo's order.Feed
// subscriber-list pattern (order/feed.go) down to a single-process,
// no-channel event bus since adapter events are emitted from one reader
// goroutine and consumed synchronously.
type emitter struct {
	mu       sync.Mutex
	handlers map[Event][]Handler
}

func newEmitter() *emitter {
	return &emitter{
		handlers: make(map[Event][]Handler),
	}
}

func (e *emitter) on(event Event, h Handler) func() {
	e.mu.Lock()
	e.handlers[event] = append(e.handlers[event], h)
	idx := len(e.handlers[event]) - 1
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		list := e.handlers[event]
		if idx < len(list) {
			e.handlers[event] = append(list[:idx], list[idx+1:]...)
		}
	}
}

func (e *emitter) once(event Event, h Handler) {
	var unsub func()
	unsub = e.on(event, func(payload any) {
		unsub()
		h(payload)
	})
}

func (e *emitter) off(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, event)
}

func (e *emitter) emit(event Event, payload any) {
	e.mu.Lock()
	listeners := append([]Handler{}, e.handlers[event]...)
	e.mu.Unlock()

	for _, h := range listeners {
		h(payload)
	}
}
