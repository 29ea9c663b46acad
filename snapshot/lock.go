package snapshot

import "sync"

// Lock serializes snapshot downloads: jobs sharing a Lock transfer and write
// one image at a time.
type Lock struct {
	mu sync.Mutex
}

func NewLock() *Lock {
	return &Lock{}
}

var processLock = NewLock()

// ProcessLock is the lock used by jobs that were not given one explicitly.
func ProcessLock() *Lock {
	return processLock
}

func (l *Lock) do(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}
