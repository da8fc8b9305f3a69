package jobs

import (
	"sort"
	"sync"
)

// AdmissionTable is the set of media paths currently owned by a job. A path
// enters through Reserve and leaves through Release; at most one owner exists
// per path at any time.
type AdmissionTable struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func NewAdmissionTable() *AdmissionTable {
	return &AdmissionTable{paths: make(map[string]struct{})}
}

// Reserve atomically inserts path and reports whether the caller now owns it.
func (t *AdmissionTable) Reserve(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.paths[path]; ok {
		return false
	}
	t.paths[path] = struct{}{}
	return true
}

// Release removes path and reports whether it was present.
func (t *AdmissionTable) Release(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.paths[path]
	delete(t.paths, path)
	return ok
}

func (t *AdmissionTable) Contains(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.paths[path]
	return ok
}

func (t *AdmissionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.paths)
}

// Paths returns a sorted snapshot of the owned paths.
func (t *AdmissionTable) Paths() []string {
	t.mu.Lock()
	out := make([]string, 0, len(t.paths))
	for p := range t.paths {
		out = append(out, p)
	}
	t.mu.Unlock()
	sort.Strings(out)
	return out
}
