package history

import (
	"context"
	"sync"

	"codeberg.org/mutker/tankctl/internal/tank"
)

// memoryRepository is the volatile tier: a fixed-size ring that evicts the
// oldest reading once full.
type memoryRepository struct {
	mu       sync.Mutex
	buf      []tank.Reading
	start    int
	size     int
	capacity int
}

func NewMemoryRepository(capacity int) Repository {
	return newMemoryRepository(capacity)
}

func newMemoryRepository(capacity int) *memoryRepository {
	if capacity <= 0 {
		capacity = DefaultVolatileCapacity
	}
	return &memoryRepository{
		buf:      make([]tank.Reading, capacity),
		capacity: capacity,
	}
}

func (m *memoryRepository) Append(_ context.Context, reading tank.Reading) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	end := (m.start + m.size) % m.capacity
	m.buf[end] = reading
	if m.size < m.capacity {
		m.size++
	} else {
		m.start = (m.start + 1) % m.capacity
	}
	return nil
}

func (m *memoryRepository) QueryRecent(_ context.Context, limit int) ([]tank.Reading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 || limit > m.size {
		limit = m.size
	}
	out := make([]tank.Reading, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (m.start + m.size - 1 - i) % m.capacity
		out = append(out, m.buf[idx])
	}
	return out, nil
}

func (m *memoryRepository) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.buf = make([]tank.Reading, m.capacity)
	m.start = 0
	m.size = 0
	return nil
}

func (m *memoryRepository) Close() error {
	return nil
}

func (m *memoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}
