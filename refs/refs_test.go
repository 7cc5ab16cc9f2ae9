package refs

import (
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/lucab/strata/cas"
)

func storeFixtures(t *testing.T) map[string]Store {
	t.Helper()

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("badger.Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"badger": NewBadgerStore(db),
	}
}

func TestSetGetDelete(t *testing.T) {
	for name, store := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			tip := cas.Of([]byte("commit"))

			if _, err := store.Get("master"); err != ErrNotFound {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}

			if err := store.Set("master", tip); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			got, err := store.Get("master")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got != tip {
				t.Errorf("Expected %s, got %s", tip, got)
			}

			if err := store.Delete("master"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := store.Get("master"); err != ErrNotFound {
				t.Errorf("Expected ErrNotFound after delete, got %v", err)
			}
			if err := store.Delete("master"); err != ErrNotFound {
				t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
			}
		})
	}
}

func TestCompareAndSet(t *testing.T) {
	for name, store := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			c1 := cas.Of([]byte("c1"))
			c2 := cas.Of([]byte("c2"))
			c3 := cas.Of([]byte("c3"))

			// Creation asserts absence.
			if err := store.CompareAndSet("main", cas.Hash{}, c1); err != nil {
				t.Fatalf("CompareAndSet create failed: %v", err)
			}
			if err := store.CompareAndSet("main", cas.Hash{}, c1); err != ErrConflict {
				t.Errorf("Expected ErrConflict creating twice, got %v", err)
			}

			// A move with a stale old hash loses.
			if err := store.CompareAndSet("main", c2, c3); err != ErrConflict {
				t.Errorf("Expected ErrConflict on stale old hash, got %v", err)
			}
			// The ref must be unmoved after the failed CAS.
			got, _ := store.Get("main")
			if got != c1 {
				t.Errorf("Expected ref unchanged after conflict, got %s", got)
			}

			if err := store.CompareAndSet("main", c1, c2); err != nil {
				t.Fatalf("CompareAndSet move failed: %v", err)
			}

			// Deletion via zero new hash.
			if err := store.CompareAndSet("main", c2, cas.Hash{}); err != nil {
				t.Fatalf("CompareAndSet delete failed: %v", err)
			}
			if _, err := store.Get("main"); err != ErrNotFound {
				t.Errorf("Expected ErrNotFound after CAS delete, got %v", err)
			}
		})
	}
}

func TestList(t *testing.T) {
	for name, store := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			store.Set("master", cas.Of([]byte("m")))
			store.Set("exp", cas.Of([]byte("e")))
			store.SetHead("master")

			list, err := store.List()
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(list) != 2 {
				t.Fatalf("Expected 2 refs, got %d", len(list))
			}
			// Sorted by name; the head marker must not leak into the list.
			if list[0].Name != "exp" || list[1].Name != "master" {
				t.Errorf("Unexpected ref order: %v", list)
			}
		})
	}
}

func TestHead(t *testing.T) {
	for name, store := range storeFixtures(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Head(); err != ErrNotFound {
				t.Errorf("Expected ErrNotFound for unset head, got %v", err)
			}
			if err := store.SetHead("exp"); err != nil {
				t.Fatalf("SetHead failed: %v", err)
			}
			head, err := store.Head()
			if err != nil {
				t.Fatalf("Head failed: %v", err)
			}
			if head != "exp" {
				t.Errorf("Expected head 'exp', got %q", head)
			}
		})
	}
}
