package metacache

import "sync"

// pathLockTable serializes read-decide-purge-write sequences per path.
// Entries are refcounted so the table does not grow with every path ever
// touched.
type pathLockTable struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLockTable() *pathLockTable {
	return &pathLockTable{
		locks: map[string]*pathLock{},
	}
}

// Lock acquires the exclusive lock for path and returns its release func.
func (t *pathLockTable) Lock(path string) func() {
	t.mu.Lock()
	l, ok := t.locks[path]
	if !ok {
		l = &pathLock{}
		t.locks[path] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, path)
		}
		t.mu.Unlock()
	}
}
