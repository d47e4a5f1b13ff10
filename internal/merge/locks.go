package merge

import (
	"sort"
	"sync"
)

// assetLocks serializes merge and undo work per asset ID. Locks are acquired
// in sorted ID order, so two transactions with overlapping assets queue
// behind each other instead of deadlocking.
type assetLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAssetLocks() *assetLocks {
	return &assetLocks{locks: make(map[string]*sync.Mutex)}
}

func (a *assetLocks) lockFor(id string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	lock, ok := a.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[id] = lock
	}
	return lock
}

// acquire locks every ID and returns a release function. IDs are deduplicated
// and sorted before locking.
func (a *assetLocks) acquire(ids []string) func() {
	unique := make(map[string]bool, len(ids))
	sorted := make([]string, 0, len(ids))
	for _, id := range ids {
		if unique[id] {
			continue
		}
		unique[id] = true
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	held := make([]*sync.Mutex, 0, len(sorted))
	for _, id := range sorted {
		lock := a.lockFor(id)
		lock.Lock()
		held = append(held, lock)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
