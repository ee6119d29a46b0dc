package ledger

import "sync"

// StartedFeed fans game-start notifications out to subscribers.
type StartedFeed struct {
	mu   sync.Mutex
	next int
	subs map[int]StartedFunc
}

// Subscribe registers fn and returns its unsubscribe function.
func (f *StartedFeed) Subscribe(fn StartedFunc) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[int]StartedFunc)
	}
	id := f.next
	f.next++
	f.subs[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Publish calls every subscriber outside the lock.
func (f *StartedFeed) Publish(gameID uint64, seed [32]byte) {
	f.mu.Lock()
	fns := make([]StartedFunc, 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(gameID, seed)
	}
}
