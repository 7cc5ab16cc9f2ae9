package cas

import "sync"

// MemoryStore keeps chunks in process memory. Used for tests and
// ephemeral repositories.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[Hash][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chunks: make(map[Hash][]byte),
	}
}

func (m *MemoryStore) Put(data []byte) (Hash, error) {
	h := Of(data)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chunks[h]; !ok {
		cp := make([]byte, len(data))
		copy(cp, data)
		m.chunks[h] = cp
	}
	return h, nil
}

func (m *MemoryStore) Get(h Hash) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.chunks[h]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *MemoryStore) Has(h Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.chunks[h]
	return ok, nil
}

// Len returns the number of distinct chunks stored.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

func (m *MemoryStore) Close() error {
	return nil
}
