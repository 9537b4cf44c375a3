// SPDX-License-Identifier: MIT

// Package waitset lets a goroutine block until any one of several
// independently-triggered conditions fires, without busy-polling.
//
// It replaces the OrEvent pattern used by the watcher pipeline to sleep on
// several threading.Events at once (frame arrived, watcher toggled on/off,
// shutdown requested): a Go channel can only be waited on once per receive,
// so repeatable "wait for any of these" semantics need the level-triggered
// Signal type below rather than a bare channel.
package waitset

import (
	"context"
	"reflect"
	"sync"
)

// Signal is a resettable, broadcastable condition. Unlike a bare channel,
// which is consumed by the first receiver, a Signal can be waited on by any
// number of goroutines repeatedly: each Set/Clear transition closes and
// replaces an internal channel so every current waiter observes it exactly
// once, then resets for the next transition.
type Signal struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{}
}

// NewSignal returns a Signal in the cleared state.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set marks the signal as triggered and wakes any current waiters.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		s.set = true
		close(s.ch)
	}
}

// Clear resets the signal so future waiters block again.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		s.set = false
		s.ch = make(chan struct{})
	}
}

// IsSet reports whether the signal is currently triggered.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// C returns the channel current waiters should select on. It is closed
// while the signal is set, and replaced on the next Clear.
func (s *Signal) C() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Set is a named group of Signals that can be waited on together. Callers
// build it once per watcher loop iteration and pass it to Wait.
type Set struct {
	names   []string
	signals []*Signal
}

// New builds a Set from a name->Signal map. The iteration order of the
// returned Set is unspecified but fixed for the lifetime of the Set.
func New(signals map[string]*Signal) *Set {
	s := &Set{
		names:   make([]string, 0, len(signals)),
		signals: make([]*Signal, 0, len(signals)),
	}
	for name, sig := range signals {
		s.names = append(s.names, name)
		s.signals = append(s.signals, sig)
	}
	return s
}

// Wait blocks until any signal in the set is triggered, ctx is cancelled, or
// any already-set signal causes it to return immediately. It returns the
// name of the signal that fired, or an empty string with ctx.Err() if ctx
// was cancelled first.
func (s *Set) Wait(ctx context.Context) (string, error) {
	cases := make([]reflect.SelectCase, 0, len(s.signals)+1)
	for _, sig := range s.signals {
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(sig.C()),
		})
	}
	cases = append(cases, reflect.SelectCase{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(ctx.Done()),
	})

	chosen, _, _ := reflect.Select(cases)
	if chosen == len(s.signals) {
		return "", ctx.Err()
	}
	return s.names[chosen], nil
}
