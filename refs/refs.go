package refs

import (
	"errors"
	"sort"
	"sync"

	"github.com/lucab/strata/cas"
)

var (
	// ErrNotFound is returned when a named ref does not exist.
	ErrNotFound = errors.New("ref not found")
	// ErrConflict is returned when a compare-and-set loses a race; the
	// caller must re-read the tip before retrying.
	ErrConflict = errors.New("ref moved concurrently")
)

// Ref is a named pointer to a commit.
type Ref struct {
	Name string
	Hash cas.Hash
}

// Store persists branch refs and the current-branch marker.
//
// CompareAndSet with a zero old hash asserts the ref must not exist yet;
// a zero new hash deletes it. Either way, a mismatch yields ErrConflict
// and no mutation.
type Store interface {
	Get(name string) (cas.Hash, error)
	Set(name string, h cas.Hash) error
	CompareAndSet(name string, old, new cas.Hash) error
	Delete(name string) error
	List() ([]Ref, error)

	Head() (string, error)
	SetHead(name string) error
}

// MemoryStore keeps refs in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	refs map[string]cas.Hash
	head string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{refs: make(map[string]cas.Hash)}
}

func (m *MemoryStore) Get(name string) (cas.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.refs[name]
	if !ok {
		return cas.Hash{}, ErrNotFound
	}
	return h, nil
}

func (m *MemoryStore) Set(name string, h cas.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[name] = h
	return nil
}

func (m *MemoryStore) CompareAndSet(name string, old, new cas.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.refs[name]
	if old.IsZero() {
		if exists {
			return ErrConflict
		}
	} else if !exists || current != old {
		return ErrConflict
	}

	if new.IsZero() {
		delete(m.refs, name)
		return nil
	}
	m.refs[name] = new
	return nil
}

func (m *MemoryStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.refs[name]; !ok {
		return ErrNotFound
	}
	delete(m.refs, name)
	return nil
}

func (m *MemoryStore) List() ([]Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Ref, 0, len(m.refs))
	for name, h := range m.refs {
		out = append(out, Ref{Name: name, Hash: h})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) Head() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.head == "" {
		return "", ErrNotFound
	}
	return m.head, nil
}

func (m *MemoryStore) SetHead(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.head = name
	return nil
}
