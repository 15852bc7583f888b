package service

import "sync"

// keyedMutex serializes mutation per channel key so claim-state transitions
// for one ticket never interleave. The entry map is bounded by the number of
// live ticket channels.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for key and returns its release func.
func (k *keyedMutex) acquire(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
