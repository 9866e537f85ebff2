// Package actor provides the single-writer execution discipline the engine
// runs under. Synchronous sections never overlap; anything that waits on the
// network happens between sections, never inside one. State read in one
// section must be re-read in the next, since other operations may have run
// while the caller was waiting.
package actor

import "sync"

type Actor struct {
	mu sync.Mutex
}

func New() *Actor { return &Actor{} }

// Sync runs fn as one uninterrupted section. fn must not block on I/O other
// than the local store and must not call Sync itself.
func (a *Actor) Sync(fn func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn()
}

// Exec is Sync for sections that produce a value
func Exec[T any](a *Actor, fn func() (T, error)) (T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn()
}
