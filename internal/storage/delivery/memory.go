package delivery

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/newthinker/pushrelay/internal/core"
)

// DefaultMaxEntries bounds the history when no size is configured.
const DefaultMaxEntries = 500

// MemoryStore is a bounded in-memory delivery history. When full, the
// oldest result is evicted.
type MemoryStore struct {
	results []core.Result
	maxSize int
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory store with max capacity.
func NewMemoryStore(maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	return &MemoryStore{
		results: make([]core.Result, 0, maxSize),
		maxSize: maxSize,
	}
}

// Save adds a result to the store.
func (m *MemoryStore) Save(ctx context.Context, result core.Result) error {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.results = append(m.results, result)

	// Trim if over capacity (remove oldest)
	if len(m.results) > m.maxSize {
		m.results = append(m.results[:0], m.results[len(m.results)-m.maxSize:]...)
	}

	return nil
}

// GetByID retrieves a result by ID.
func (m *MemoryStore) GetByID(ctx context.Context, id string) (*core.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.results {
		if m.results[i].ID == id {
			r := m.results[i]
			return &r, nil
		}
	}
	return nil, core.ErrDeliveryNotFound
}

// List returns results matching the filter, newest first.
func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]core.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := []core.Result{}
	for i := len(m.results) - 1; i >= 0; i-- {
		if matches(m.results[i], filter) {
			result = append(result, m.results[i])
		}
	}

	// Apply offset and limit
	if filter.Offset >= len(result) {
		return []core.Result{}, nil
	}
	if filter.Offset > 0 {
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Count returns the count of matching results.
func (m *MemoryStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, r := range m.results {
		if matches(r, filter) {
			count++
		}
	}
	return count, nil
}

func matches(r core.Result, filter ListFilter) bool {
	if filter.Project != "" && r.Project != filter.Project {
		return false
	}
	if filter.Kind != "" && r.Kind != filter.Kind {
		return false
	}
	if filter.Outcome != "" && r.Outcome != filter.Outcome {
		return false
	}
	if !filter.From.IsZero() && r.At.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && r.At.After(filter.To) {
		return false
	}
	return true
}
