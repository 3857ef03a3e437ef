package engine

import (
	"fmt"
	"sync"
)

// State of a session.
type State int

const (
	StateIdle State = iota
	StateSpawned
	StateRunning
	StateDraining
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpawned:
		return "spawned"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:     {StateSpawned},
	StateSpawned:  {StateRunning},
	StateRunning:  {StateDraining},
	StateDraining: {StateDone},
}

// StateMachine tracks the lifecycle of a session:
// Idle → Spawned → Running → Draining → Done, with Failed reachable from any
// non-terminal state.
type StateMachine struct {
	mu    sync.Mutex
	state State
}

// State returns the current state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to next or reports why it is not allowed.
func (m *StateMachine) Transition(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if next == StateFailed && !m.state.Terminal() {
		m.state = next
		return nil
	}
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("engine: invalid session transition %s -> %s", m.state, next)
}

// Fail moves to Failed unless the session already terminated.
func (m *StateMachine) Fail() {
	_ = m.Transition(StateFailed)
}
