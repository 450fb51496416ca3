package subscription

import "sync"

// keyedMutex serializes critical sections per key. Admission uses tier
// keys so the capacity check-then-write sequence is atomic per tier;
// renewal and cancellation use subscription keys so the later-committing
// operation wins without interleaving. Entries are reference counted and
// removed once the last holder releases, keeping the map bounded even
// though the subscription ID key space is not.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// lock acquires the mutex for key and returns its unlock function.
func (km *keyedMutex) lock(key string) func() {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		km.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}
