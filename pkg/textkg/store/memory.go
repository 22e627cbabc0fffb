package store

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory result store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string]Result // runID -> document -> result
	closed bool
}

// NewMemoryStore creates a new in-memory result store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]Result),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(runID, document string, res Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if m.data[runID] == nil {
		m.data[runID] = make(map[string]Result)
	}

	stored := Result{
		Document:  document,
		Graph:     append([]byte(nil), res.Graph...),
		Report:    append([]byte(nil), res.Report...),
		CreatedAt: res.CreatedAt,
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	m.data[runID][document] = stored
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(runID, document string) (Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Result{}, ErrStoreClosed
	}

	run, ok := m.data[runID]
	if !ok {
		return Result{}, ErrNotFound
	}
	res, ok := run[document]
	if !ok {
		return Result{}, ErrNotFound
	}

	return Result{
		Document:  res.Document,
		Graph:     append([]byte(nil), res.Graph...),
		Report:    append([]byte(nil), res.Report...),
		CreatedAt: res.CreatedAt,
	}, nil
}

// List implements Store.
func (m *MemoryStore) List(runID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	run, ok := m.data[runID]
	if !ok {
		return nil, nil
	}

	infos := make([]Info, 0, len(run))
	for document, res := range run {
		infos = append(infos, Info{
			RunID:     runID,
			Document:  document,
			CreatedAt: res.CreatedAt,
			Size:      int64(len(res.Graph) + len(res.Report)),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].CreatedAt.Before(infos[j].CreatedAt)
		}
		return infos[i].Document < infos[j].Document
	})

	return infos, nil
}

// Has implements Store.
func (m *MemoryStore) Has(runID, document string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, ErrStoreClosed
	}

	run, ok := m.data[runID]
	if !ok {
		return false, nil
	}
	_, ok = run[document]
	return ok, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(runID, document string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if run, ok := m.data[runID]; ok {
		delete(run, document)
	}
	return nil
}

// DeleteRun implements Store.
func (m *MemoryStore) DeleteRun(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.data, runID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the total number of results across all runs.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, run := range m.data {
		count += len(run)
	}
	return count
}
