package service

import "sync"

// keyedMutex serializes lifecycle operations per tenant identity, closing the
// find-then-insert race between two concurrent creation requests for the same
// tenant. The backing unique index remains the hard guarantee; this lock keeps
// the common case free of constraint-violation noise.
//
// Entries are retained for the life of the process; tenant cardinality is low
// enough that shrinking the map is not worth the bookkeeping.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the mutex for key and returns its release func.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
