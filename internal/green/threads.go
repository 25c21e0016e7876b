package green

import (
	"sort"
	"sync"
)

// threadRegistry hands out small integer ids to worker threads. Released
// ids are reused lowest-first so a pool's workers are always numbered
// 1..n.
type threadRegistry struct {
	mu     sync.Mutex
	free   []uint64
	next   uint64
	owners map[uint64]*worker
}

func newThreadRegistry() *threadRegistry {
	return &threadRegistry{owners: make(map[uint64]*worker)}
}

func (r *threadRegistry) acquire(w *worker) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id uint64
	if len(r.free) > 0 {
		id = r.free[0]
		r.free = r.free[1:]
	} else {
		r.next++
		id = r.next
	}
	r.owners[id] = w
	return id
}

func (r *threadRegistry) release(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owners[id]; !ok {
		return
	}
	delete(r.owners, id)
	r.free = append(r.free, id)
	sort.Slice(r.free, func(i, j int) bool { return r.free[i] < r.free[j] })
}

func (r *threadRegistry) active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.owners)
}
