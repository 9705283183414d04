package journal

import (
	"sync"
	"time"
)

// MemoryStore keeps entries in memory.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string][]Entry
	seq    int64
	closed bool
}

// NewMemoryStore creates an empty in-memory journal.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]Entry)}
}

// Record implements Store.
func (m *MemoryStore) Record(e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.seq++
	e.Seq = m.seq
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	m.runs[e.RunID] = append(m.runs[e.RunID], e)
	return nil
}

// List implements Store.
func (m *MemoryStore) List(runID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	return append([]Entry{}, m.runs[runID]...), nil
}

// Count implements Store.
func (m *MemoryStore) Count(runID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return len(m.runs[runID]), nil
}

// DeleteRun implements Store.
func (m *MemoryStore) DeleteRun(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.runs, runID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.runs = nil
	return nil
}
