package pagetable

import (
	"fmt"
	"sync"
)

// Exclusive guards an index store so only one walk selects indices at a
// time. The zero value is ready to use; embed it in store implementations.
type Exclusive struct {
	mu     sync.Mutex
	holder string
}

// Acquire takes the guard for holder or fails with ErrIndexStoreBusy
func (x *Exclusive) Acquire(holder string) (func(), error) {
	if holder == "" {
		holder = "anonymous"
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.holder != "" {
		return nil, fmt.Errorf("%w: held by %s", ErrIndexStoreBusy, x.holder)
	}
	x.holder = holder

	var once sync.Once
	return func() {
		once.Do(func() {
			x.mu.Lock()
			x.holder = ""
			x.mu.Unlock()
		})
	}, nil
}

// Holder returns the current holder, or "" when the guard is free
func (x *Exclusive) Holder() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.holder
}
