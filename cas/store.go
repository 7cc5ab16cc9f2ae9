package cas

import "errors"

var (
	// ErrNotFound is returned when a requested chunk is absent.
	ErrNotFound = errors.New("chunk not found")
)

// Store is a content-addressed chunk store.
//
// Put is idempotent and durable: when it returns, the chunk is persisted
// and repeated puts of identical bytes return the same hash without
// duplicating storage. Get and Has never observe partial writes.
type Store interface {
	Put(data []byte) (Hash, error)
	Get(h Hash) ([]byte, error)
	Has(h Hash) (bool, error)
	Close() error
}

// Chunk pairs a hash with its content, for batch writes.
type Chunk struct {
	Hash Hash
	Data []byte
}

// BatchPutter is implemented by stores that can write many chunks at once,
// skipping those already present.
type BatchPutter interface {
	PutMany(chunks []Chunk) error
}

// PutMany writes chunks through the store's batch path when available.
func PutMany(s Store, chunks []Chunk) error {
	if bp, ok := s.(BatchPutter); ok {
		return bp.PutMany(chunks)
	}
	for _, c := range chunks {
		if _, err := s.Put(c.Data); err != nil {
			return err
		}
	}
	return nil
}
