package refs

import (
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/lucab/strata/cas"
)

const (
	refKeyPrefix = "r/"
	headKey      = "r!head"
)

// BadgerStore persists refs in a Badger instance, typically the one that
// also backs the chunk store (refs live under their own key prefix).
// Compare-and-set runs inside a Badger transaction, so concurrent ref
// moves serialize and the loser sees ErrConflict.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func refKey(name string) []byte {
	return []byte(refKeyPrefix + name)
}

func (s *BadgerStore) Get(name string) (cas.Hash, error) {
	var h cas.Hash
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(refKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != cas.ByteLen {
				return fmt.Errorf("corrupt ref %q", name)
			}
			copy(h[:], val)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return cas.Hash{}, ErrNotFound
	}
	if err != nil {
		return cas.Hash{}, fmt.Errorf("failed to read ref %q: %w", name, err)
	}
	return h, nil
}

func (s *BadgerStore) Set(name string, h cas.Hash) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(refKey(name), h[:])
	})
	if err != nil {
		return fmt.Errorf("failed to set ref %q: %w", name, err)
	}
	return nil
}

func (s *BadgerStore) CompareAndSet(name string, old, new cas.Hash) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(refKey(name))
		switch {
		case err == badger.ErrKeyNotFound:
			if !old.IsZero() {
				return ErrConflict
			}
		case err != nil:
			return err
		default:
			var current cas.Hash
			if err := item.Value(func(val []byte) error {
				copy(current[:], val)
				return nil
			}); err != nil {
				return err
			}
			if old.IsZero() || current != old {
				return ErrConflict
			}
		}

		if new.IsZero() {
			return txn.Delete(refKey(name))
		}
		return txn.Set(refKey(name), new[:])
	})
	if err == ErrConflict || err == badger.ErrConflict {
		// A Badger transaction conflict means another writer touched the
		// ref between our read and commit; same contract as a CAS miss.
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to move ref %q: %w", name, err)
	}
	return nil
}

func (s *BadgerStore) Delete(name string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(refKey(name)); err != nil {
			return err
		}
		return txn.Delete(refKey(name))
	})
	if err == badger.ErrKeyNotFound {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete ref %q: %w", name, err)
	}
	return nil
}

func (s *BadgerStore) List() ([]Ref, error) {
	var out []Ref
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(refKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(refKeyPrefix)); it.ValidForPrefix([]byte(refKeyPrefix)); it.Next() {
			item := it.Item()
			name := string(item.KeyCopy(nil))[len(refKeyPrefix):]
			var h cas.Hash
			if err := item.Value(func(val []byte) error {
				copy(h[:], val)
				return nil
			}); err != nil {
				return err
			}
			out = append(out, Ref{Name: name, Hash: h})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list refs: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *BadgerStore) Head() (string, error) {
	var head string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(headKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			head = string(val)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read head: %w", err)
	}
	return head, nil
}

func (s *BadgerStore) SetHead(name string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(headKey), []byte(name))
	})
	if err != nil {
		return fmt.Errorf("failed to set head: %w", err)
	}
	return nil
}
