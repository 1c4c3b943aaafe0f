package hierarchy

import (
	"sort"
	"sync"
	"time"
)

// lockTable is an in-process keyed lock over container identities. Acquire is
// all-or-nothing across the requested set, so "child already has a live
// parent" is checked-and-set under the same lock that protects the children.
type lockTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[string]struct{})}
}

// tryAcquire takes every id or none. IDs are deduplicated; ordering does not
// matter because the whole set is taken under one table mutex.
func (l *lockTable) tryAcquire(ids []string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range ids {
		if _, taken := l.held[id]; taken {
			return false
		}
	}
	for _, id := range ids {
		l.held[id] = struct{}{}
	}
	return true
}

func (l *lockTable) release(ids []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		delete(l.held, id)
	}
}

// acquireWithRetry retries contended acquisition a bounded number of times
// before giving up
func (l *lockTable) acquireWithRetry(ids []string, attempts int, backoff time.Duration) bool {
	ids = dedupe(ids)
	for i := 0; i < attempts; i++ {
		if l.tryAcquire(ids) {
			return true
		}
		time.Sleep(backoff * time.Duration(i+1))
	}
	return false
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
