// Package keylock provides per-key mutual exclusion for int64 identifiers.
// Events touching the same order or the same buyer must be strictly
// sequential; events on different keys may proceed concurrently.
package keylock

import "sync"

type Map struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func New() *Map {
	return &Map{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
// Lock entries live for the lifetime of the process.
func (m *Map) Lock(key int64) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}
