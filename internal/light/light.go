// Package light holds the single authoritative light state shared by the
// scheduler loop and HTTP handlers.
package light

import (
	"sync"

	"github.com/sweeney/light-scheduler/internal/logic"
)

// Light is a mutex-guarded light state. Every operation is indivisible;
// concurrent writers resolve last-writer-wins.
//
// The state is process-local and starts OFF. It is deliberately not persisted.
type Light struct {
	mu    sync.Mutex
	state logic.State
}

// New returns a Light in the OFF state.
func New() *Light {
	return &Light{state: logic.StateOff}
}

// Read returns the current state.
func (l *Light) Read() logic.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Toggle flips the state and returns the new value.
func (l *Light) Toggle() logic.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = l.state.Toggled()
	return l.state
}

// Set stores s and returns the previous value.
func (l *Light) Set(s logic.State) logic.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.state
	l.state = s
	return prev
}
