package turn

import "sync"

// threadLocks serializes turns per thread ID. Two concurrent turns on the
// same thread would otherwise both load the same checkpoint and the second
// save would silently drop the first turn's messages.
//
// Mutexes are created on first use and never removed. The set of active
// thread IDs in one process is small enough that this does not matter.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the mutex for threadID and returns its unlock function.
func (tl *threadLocks) acquire(threadID string) func() {
	tl.mu.Lock()
	m, ok := tl.locks[threadID]
	if !ok {
		m = &sync.Mutex{}
		tl.locks[threadID] = m
	}
	tl.mu.Unlock()

	m.Lock()
	return m.Unlock
}
