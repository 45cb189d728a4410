// Package connstate implements the Connection lifecycle state machine
// (§4.2): a fixed legal-transition table, forced recovery transitions,
// an observable subscription feed, and a bounded transition history.
//
// The subscription mechanism is adapted from the teacher repo's
// order.Feed pub-sub (order/feed.go): callers subscribe consumer
// functions keyed by topic (here, a target State or the wildcard "*")
// and every transition fans out to the matching subscribers.
package connstate

import (
	"fmt"
	"sync"
)

// State is one node of the Connection lifecycle.
type State string

const (
	Disconnected   State = "disconnected"
	Connecting     State = "connecting"
	Connected      State = "connected"
	Authenticating State = "authenticating"
	Authenticated  State = "authenticated"
	Ready          State = "ready"
	Error          State = "error"
	Closed         State = "closed"
)

// Wildcard subscribes to every transition regardless of target state.
const Wildcard = "*"

const historyLimit = 50

var legalNext = map[State][]State{
	Disconnected:   {Connecting},
	Connecting:     {Connected, Error},
	Connected:      {Authenticating, Error},
	Authenticating: {Authenticated, Error},
	Authenticated:  {Ready, Error},
	Ready:          {Ready, Error, Closed},
	Error:          {Disconnected, Closed},
	Closed:         {},
}

// Transition records one state change for history and subscribers.
type Transition struct {
	From   State
	To     State
	Forced bool
}

type subscriber struct {
	id int
	fn func(Transition)
}

// Machine is a Connection's state machine. Zero value is not usable; use
// New.
type Machine struct {
	mu          sync.Mutex
	current     State
	history     []Transition
	subs        map[string][]subscriber
	nextSubID   int
}

// New returns a Machine starting in Disconnected.
func New() *Machine {
	return &Machine{
		current: Disconnected,
		subs:    make(map[string][]subscriber),
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns up to the last 50 transitions, oldest first.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// Transition attempts to move to `to`. It fails loudly (a non-nil error,
// never a panic) if the transition is not in the legal table.
func (m *Machine) Transition(to State) error {
	return m.transition(to, false)
}

// Force moves to `to` unconditionally, for error-recovery paths (e.g. an
// unexpected socket close forcing Closed from any state).
func (m *Machine) Force(to State) {
	_ = m.transition(to, true)
}

func (m *Machine) transition(to State, forced bool) error {
	m.mu.Lock()
	from := m.current
	if !forced && !isLegal(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("connstate: illegal transition %s -> %s", from, to)
	}
	m.current = to
	t := Transition{From: from, To: to, Forced: forced}
	m.history = append(m.history, t)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
	listeners := append(append([]subscriber{}, m.subs[string(to)]...), m.subs[Wildcard]...)
	m.mu.Unlock()

	for _, s := range listeners {
		s.fn(t)
	}
	return nil
}

func isLegal(from, to State) bool {
	for _, candidate := range legalNext[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Subscribe registers fn to be called on every transition into `state`, or
// every transition if state is Wildcard. It returns an unsubscribe func.
func (m *Machine) Subscribe(state State, fn func(Transition)) (unsubscribe func()) {
	key := string(state)
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[key] = append(m.subs[key], subscriber{id: id, fn: fn})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		list := m.subs[key]
		for i, s := range list {
			if s.id == id {
				m.subs[key] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}
