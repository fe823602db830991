package service

import "sync"

// keyedLocks provides one logical mutex per key (instance id, user id)
// without holding memory for keys nobody is touching. Entries are
// refcounted and removed when the last holder releases.
type keyedLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{entries: make(map[string]*lockEntry)}
}

func (l *keyedLocks) entry(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *keyedLocks) put(key string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Acquire blocks until the key's lock is held and returns the release
// function. Used where queuing is acceptable (delete, admission checks).
func (l *keyedLocks) Acquire(key string) func() {
	e := l.entry(key)
	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.put(key, e)
		})
	}
}

// TryAcquire attempts the key's lock without blocking. Used for
// interactive operations, which are rejected rather than queued when a
// concurrent operation is in flight.
func (l *keyedLocks) TryAcquire(key string) (func(), bool) {
	e := l.entry(key)
	if !e.mu.TryLock() {
		l.put(key, e)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.put(key, e)
		})
	}, true
}
