package cas

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
)

const (
	chunkKeyPrefix = 'c'

	// Chunks at or above this size are xz-compressed before storage.
	compressThreshold = 4 * 1024

	encodingRaw = 0x00
	encodingXZ  = 0x01
)

// BadgerOptions configures a durable chunk store.
type BadgerOptions struct {
	Dir        string
	InMemory   bool
	SyncWrites bool
	Logger     *logrus.Logger
}

// BadgerStore is a chunk store backed by BadgerDB. The same Badger instance
// also backs the ref store, under a separate key prefix.
type BadgerStore struct {
	db  *badger.DB
	log *logrus.Logger
}

// OpenBadger opens (or creates) a Badger-backed chunk store.
func OpenBadger(cfg BadgerOptions) (*BadgerStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = nil
	opts.SyncWrites = cfg.SyncWrites
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}

	cfg.Logger.WithField("dir", cfg.Dir).Debug("chunk store opened")

	return &BadgerStore{
		db:  db,
		log: cfg.Logger,
	}, nil
}

// DB exposes the underlying Badger instance so other keyspaces (refs) can
// share it.
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}

func chunkKey(h Hash) []byte {
	key := make([]byte, 1+ByteLen)
	key[0] = chunkKeyPrefix
	copy(key[1:], h[:])
	return key
}

func encodeChunk(data []byte) ([]byte, error) {
	if len(data) < compressThreshold {
		return append([]byte{encodingRaw}, data...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(encodingXZ)
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create xz writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to compress chunk: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish compression: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeChunk(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, fmt.Errorf("empty stored chunk")
	}
	switch stored[0] {
	case encodingRaw:
		return stored[1:], nil
	case encodingXZ:
		r, err := xz.NewReader(bytes.NewReader(stored[1:]))
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unknown chunk encoding 0x%02x", stored[0])
	}
}

func (s *BadgerStore) Put(data []byte) (Hash, error) {
	h := Of(data)
	key := chunkKey(h)

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil // already stored
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		stored, err := encodeChunk(data)
		if err != nil {
			return err
		}
		return txn.Set(key, stored)
	})
	if err != nil {
		return Hash{}, fmt.Errorf("failed to put chunk %s: %w", h, err)
	}
	return h, nil
}

// PutMany writes the chunks that are not already present, in one batch.
func (s *BadgerStore) PutMany(chunks []Chunk) error {
	missing := make([]Chunk, 0, len(chunks))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, c := range chunks {
			_, err := txn.Get(chunkKey(c.Hash))
			if err == badger.ErrKeyNotFound {
				missing = append(missing, c)
			} else if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to check chunk existence: %w", err)
	}
	if len(missing) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, c := range missing {
		stored, err := encodeChunk(c.Data)
		if err != nil {
			return err
		}
		if err := wb.Set(chunkKey(c.Hash), stored); err != nil {
			return fmt.Errorf("failed to batch chunk %s: %w", c.Hash, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush chunk batch: %w", err)
	}

	s.log.WithField("chunks", len(missing)).Debug("batch wrote chunks")
	return nil
}

func (s *BadgerStore) Get(h Hash) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(h))
		if err != nil {
			return err
		}
		stored, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		data, err = decodeChunk(stored)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk %s: %w", h, err)
	}
	return data, nil
}

func (s *BadgerStore) Has(h Hash) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(chunkKey(h))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check chunk %s: %w", h, err)
	}
	return true, nil
}

func (s *BadgerStore) Close() error {
	if err := s.db.Sync(); err != nil {
		s.log.WithError(err).Warn("failed to sync badger store")
	}
	return s.db.Close()
}
