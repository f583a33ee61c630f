package crawler

import (
	"sort"
	"sync"
)

// VisitedSet records every URL enqueued during one run.
type VisitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewVisitedSet returns an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]struct{})}
}

// MarkIfNotVisited inserts key and reports whether it was absent.
// Check and insert happen under one lock.
func (v *VisitedSet) MarkIfNotVisited(key string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = struct{}{}
	return true
}

// Contains reports whether key has been marked.
func (v *VisitedSet) Contains(key string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[key]
	return ok
}

// Len returns the number of marked URLs.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}

// Keys returns the marked URLs in sorted order.
func (v *VisitedSet) Keys() []string {
	v.mu.Lock()
	keys := make([]string, 0, len(v.seen))
	for k := range v.seen {
		keys = append(keys, k)
	}
	v.mu.Unlock()
	sort.Strings(keys)
	return keys
}
