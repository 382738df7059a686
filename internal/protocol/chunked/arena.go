package chunked

import "sync"

// arena is the reorder buffer between out-of-order fetches and the in-order
// cursor. Chunk i lives in slot i%len(slots) and may only be parked once
// i < next+len(slots), so a slot is always free when its chunk arrives.
type arena struct {
	mu     sync.Mutex
	cond   *sync.Cond
	slots  [][]byte
	filled []bool
	next   int
	err    error
}

func newArena(size int) *arena {
	a := &arena{
		slots:  make([][]byte, size),
		filled: make([]bool, size),
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// waitRoom blocks until chunk i fits in the window.
func (a *arena) waitRoom(i int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.err == nil && i >= a.next+len(a.slots) {
		a.cond.Wait()
	}
	return a.err
}

// put parks the decrypted chunk i.
func (a *arena) put(i int, b []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot := i % len(a.slots)
	a.slots[slot] = b
	a.filled[slot] = true
	a.cond.Broadcast()
}

// take blocks until chunk i is parked, frees its slot and advances the cursor.
func (a *arena) take(i int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	slot := i % len(a.slots)
	for a.err == nil && !a.filled[slot] {
		a.cond.Wait()
	}
	if a.err != nil {
		return nil, a.err
	}
	b := a.slots[slot]
	a.slots[slot] = nil
	a.filled[slot] = false
	a.next = i + 1
	a.cond.Broadcast()
	return b, nil
}

// fail wakes every waiter with err. The first failure wins.
func (a *arena) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err == nil {
		a.err = err
	}
	a.cond.Broadcast()
}
