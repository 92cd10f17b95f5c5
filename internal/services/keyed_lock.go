package services

import "sync"

// KeyedLocks serializes units of work by string key. A sync round locks
// "sync:{table}" with TryAcquire so a second trigger while one is
// in-flight is coalesced instead of queued; a sequence repair locks
// "renumber:{day}" with Acquire because overlapping passes for the same
// day must be fully serialized (the read-then-write is not re-validated
// at commit).
type KeyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLocks creates an empty lock set
func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{locks: make(map[string]*keyLock)}
}

// Acquire blocks until the key's lock is held and returns the release func
func (k *KeyedLocks) Acquire(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() { k.release(key, l) }
}

// TryAcquire takes the key's lock without blocking. The second return
// is false when the key is already held.
func (k *KeyedLocks) TryAcquire(key string) (func(), bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	if !l.mu.TryLock() {
		return nil, false
	}
	l.refs++
	return func() { k.release(key, l) }, true
}

func (k *KeyedLocks) release(key string, l *keyLock) {
	l.mu.Unlock()
	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
