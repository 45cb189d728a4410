package wsconn

import (
	"sync"
	"sync/atomic"
)

// Scripted is the in-memory WebSocketAdapter test double, grounded on
// the teacher repo's exchange/paperwallet.go role: a full stand-in for
// the real adapter (exchange/binance.go there, Gorilla here) that tests
// drive by calling script methods instead of touching a real socket.
type Scripted struct {
	emitter *emitter
	state   atomic.Int32

	mu       sync.Mutex
	Sent     [][]byte
	connects int
}

// NewScripted returns a Scripted adapter in StateClosed.
func NewScripted() *Scripted {
	s := &Scripted{emitter: newEmitter()}
	s.state.Store(int32(StateClosed))
	return s
}

func (s *Scripted) ReadyState() ReadyState { return ReadyState(s.state.Load()) }

// Connect immediately "succeeds" and fires the open event, since tests
// script server behavior explicitly rather than simulating dial latency.
func (s *Scripted) Connect(url string, opts ConnectOptions) error {
	s.mu.Lock()
	s.connects++
	s.mu.Unlock()
	s.state.Store(int32(StateOpen))
	s.emitter.emit(EventOpen, nil)
	return nil
}

// Send records the bytes a caller tried to write, for assertions.
func (s *Scripted) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte{}, data...)
	s.Sent = append(s.Sent, cp)
	return nil
}

// Close marks the adapter closed and fires the close event with the
// given code, mirroring a real socket's local-initiated close.
func (s *Scripted) Close(code int, reason string) error {
	s.state.Store(int32(StateClosed))
	s.emitter.emit(EventClose, CloseInfo{Code: code, Reason: reason})
	return nil
}

func (s *Scripted) On(event Event, handler Handler) func() { return s.emitter.on(event, handler) }
func (s *Scripted) Once(event Event, handler Handler)      { s.emitter.once(event, handler) }
func (s *Scripted) Off(event Event)                        { s.emitter.off(event) }

// ScriptMessage simulates an inbound wire frame (pre-framed bytes).
func (s *Scripted) ScriptMessage(raw []byte) {
	s.emitter.emit(EventMessage, raw)
}

// ScriptError simulates a transport-level error event.
func (s *Scripted) ScriptError(err error) {
	s.emitter.emit(EventError, err)
}

// ScriptClose simulates a remote-initiated close (e.g. an abnormal 1006
// disconnect for S5-style tests).
func (s *Scripted) ScriptClose(code int, reason string) {
	s.state.Store(int32(StateClosed))
	s.emitter.emit(EventClose, CloseInfo{Code: code, Reason: reason})
}

// SentCount returns how many payloads have been sent so far.
func (s *Scripted) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Sent)
}

// LastSent returns the most recently sent payload, or nil if none.
func (s *Scripted) LastSent() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Sent) == 0 {
		return nil
	}
	return s.Sent[len(s.Sent)-1]
}

// ConnectCount returns how many times Connect was called.
func (s *Scripted) ConnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}
