package statemachine

import (
	"fmt"
	"sync"
)

// StateFn is a state expressed as a function following Rob Pike's pattern:
// each state does its work and returns the next state, or nil to terminate.
type StateFn[T any] func(*T) StateFn[T]

// StateMachine is a small thread-safe wrapper that tracks the current StateFn
// of an entity. Transitions happen by dispatching a state function, which runs
// once and yields the next state.
type StateMachine[T any] struct {
	entity  *T
	stateFn StateFn[T]
	mu      sync.RWMutex
}

// New creates a state machine for entity starting at initial.
func New[T any](entity *T, initial StateFn[T]) *StateMachine[T] {
	return &StateMachine[T]{
		entity:  entity,
		stateFn: initial,
	}
}

// Dispatch sets stateFn as the current state, runs it once and records the
// state it returns.
func (sm *StateMachine[T]) Dispatch(stateFn StateFn[T]) {
	sm.mu.Lock()
	sm.stateFn = stateFn
	sm.mu.Unlock()

	if stateFn == nil {
		return
	}

	next := stateFn(sm.entity)

	sm.mu.Lock()
	sm.stateFn = next
	sm.mu.Unlock()
}

// Current returns the current state function.
func (sm *StateMachine[T]) Current() StateFn[T] {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.stateFn
}

// Is reports whether the current state is fn. Function values are not
// comparable in Go, so identity is established through their addresses.
func (sm *StateMachine[T]) Is(fn StateFn[T]) bool {
	return Same(sm.Current(), fn)
}

// Same reports whether a and b are the same state function.
func Same[T any](a, b StateFn[T]) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprintf("%p", a) == fmt.Sprintf("%p", b)
}
