package registry

import (
	"errors"
	"fmt"
	"sync"
)

// ErrBusy is returned when a template already has an operation in flight.
var ErrBusy = errors.New("template is busy")

// Locks is a set of non-blocking per-template locks. Overlapping requests
// for one template are rejected rather than queued.
type Locks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocks creates an empty lock set.
func NewLocks() *Locks {
	return &Locks{held: make(map[string]struct{})}
}

// TryAcquire takes the lock for template, or returns ErrBusy. The returned
// release func is safe to call more than once.
func (l *Locks) TryAcquire(template string) (release func(), err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[template]; ok {
		return nil, fmt.Errorf("%w: %s", ErrBusy, template)
	}
	l.held[template] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, template)
			l.mu.Unlock()
		})
	}, nil
}

// Held returns the number of templates currently locked.
func (l *Locks) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
