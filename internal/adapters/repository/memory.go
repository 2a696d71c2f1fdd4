package repository

import (
	"context"
	"sync"

	"github.com/katarzynaochnikdu/LEM-V1/pkg/logger"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/metrics"
)

const backendMemory = "memory"

// MemoryStore keeps the most recent records in a bounded ring. The oldest
// record is evicted once the ring is full.
type MemoryStore struct {
	mu     sync.RWMutex
	ring   []Record
	next   int
	size   int
	index  map[string]int
	closed bool
	log    logger.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory Store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := defaults()
	for _, opt := range opts {
		opt(&s)
	}
	return &MemoryStore{
		ring:  make([]Record, s.capacity),
		index: make(map[string]int, s.capacity),
		log:   s.log,
	}
}

// Save implements Store. Saving an existing id replaces it in place.
func (m *MemoryStore) Save(ctx context.Context, r Record) (string, error) {
	if err := prepare(&r); err != nil {
		metrics.RecordSinkWrite(backendMemory, "invalid")
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}
	id := r.Assessment.ID
	if i, ok := m.index[id]; ok {
		m.ring[i] = r
		metrics.RecordSinkWrite(backendMemory, "ok")
		return id, nil
	}
	if m.size == len(m.ring) {
		evicted := m.ring[m.next].Assessment.ID
		delete(m.index, evicted)
		m.log.Debug(ctx, "evicted oldest record", logger.String("assessment_id", evicted))
	} else {
		m.size++
	}
	m.ring[m.next] = r
	m.index[id] = m.next
	m.next = (m.next + 1) % len(m.ring)
	metrics.RecordSinkWrite(backendMemory, "ok")
	return id, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return m.ring[i], nil
}

// newestFirst calls fn for each stored record from newest to oldest until
// fn returns false. Caller holds the lock.
func (m *MemoryStore) newestFirst(fn func(Record) bool) {
	for k := 1; k <= m.size; k++ {
		i := (m.next - k + len(m.ring)) % len(m.ring)
		if !fn(m.ring[i]) {
			return
		}
	}
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, f Filter) ([]Summary, error) {
	f, err := normalizeFilter(f)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0, min(f.Limit, m.size))
	skipped := 0
	m.newestFirst(func(r Record) bool {
		a := r.Assessment
		if f.Competency != "" && a.Competency != f.Competency {
			return true
		}
		if f.ParticipantID != "" && a.ParticipantID != f.ParticipantID {
			return true
		}
		if skipped < f.Offset {
			skipped++
			return true
		}
		out = append(out, r.Summary())
		return len(out) < f.Limit
	})
	return out, nil
}

// Stats implements Store.
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc := newAccumulator()
	m.newestFirst(func(r Record) bool {
		acc.add(r.Summary())
		return true
	})
	return acc.result(), nil
}

// Len returns the number of records held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Close implements Store. Reads keep working after Close.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
