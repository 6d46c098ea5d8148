// Package locks provides an in-process mutex manager keyed by arbitrary
// strings. The trade engine uses it to hold exclusive critical sections
// per (portfolio, instrument) holding for the duration of a trade's
// read-compute-write sequence.
//
// Single-instance deployment only. Horizontal scaling needs distributed
// locking or database row locks instead (the Postgres store already takes
// FOR UPDATE row locks inside its transactions).
package locks

import "sync"

// Keyed hands out mutexes by key. Entries are reference-counted and removed
// when the last holder releases, so the map does not grow with the number of
// distinct holdings ever traded.
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyed creates an empty keyed mutex manager.
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Lock acquires the mutex for key, blocking until it is free.
func (k *Keyed) Lock(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for key. It must be called exactly once per
// Lock, by the holding goroutine.
func (k *Keyed) Unlock(key string) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		k.mu.Unlock()
		panic("locks: unlock of unheld key " + key)
	}
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}
