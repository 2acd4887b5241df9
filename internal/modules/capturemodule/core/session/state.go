// Package session runs one capture from browser launch to teardown.
package session

import (
	"fmt"
	"sync"
	"time"
)

// State is a step of the capture lifecycle.
type State string

const (
	StateIdle       State = "idle"
	StateLaunching  State = "launching"
	StateNavigating State = "navigating"
	StateSettling   State = "settling"
	StateScrolling  State = "scrolling"
	StateFinalizing State = "finalizing"
	StateClosed     State = "closed"
	StateFailed     State = "failed"
)

// StateTransitionError reports a transition the lifecycle does not allow.
type StateTransitionError struct {
	SessionID string
	From      State
	To        State
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition for session %s: %s -> %s", e.SessionID, e.From, e.To)
}

var transitions = map[State][]State{
	StateIdle:       {StateLaunching, StateFailed},
	StateLaunching:  {StateNavigating, StateFailed},
	StateNavigating: {StateSettling, StateFailed},
	StateSettling:   {StateScrolling, StateFailed},
	StateScrolling:  {StateFinalizing, StateFailed},
	StateFinalizing: {StateClosed, StateFailed},
	StateClosed:     {},
	StateFailed:     {},
}

// Transition is one recorded state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Machine tracks the state of one session and rejects transitions that are
// not in the lifecycle.
type Machine struct {
	id      string
	mu      sync.RWMutex
	state   State
	history []Transition
}

// NewMachine starts in StateIdle.
func NewMachine(id string) *Machine {
	return &Machine{id: id, state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// History returns the transitions so far.
func (m *Machine) History() []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Transition(nil), m.history...)
}

// To moves to state next.
func (m *Machine) To(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !allowed(m.state, next) {
		return &StateTransitionError{SessionID: m.id, From: m.state, To: next}
	}
	m.history = append(m.history, Transition{From: m.state, To: next, At: time.Now()})
	m.state = next
	return nil
}

// IsTerminal reports whether s has no outgoing transitions.
func IsTerminal(s State) bool {
	return len(transitions[s]) == 0
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
