package tbl

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/lucab/strata/cas"
)

func key(i int) []byte {
	return []byte(fmt.Sprintf("key-%06d", i))
}

func row(i int) []byte {
	return []byte(fmt.Sprintf("row-%d", i))
}

// buildMap creates a map holding n sequential entries.
func buildMap(t *testing.T, store cas.Store, n int) Map {
	t.Helper()

	m, err := EmptyMap(store)
	if err != nil {
		t.Fatalf("EmptyMap failed: %v", err)
	}
	ed := m.Edit()
	for i := 0; i < n; i++ {
		ed.Put(key(i), row(i))
	}
	m, count, err := ed.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if count != uint64(n) {
		t.Fatalf("Expected %d entries after flush, got %d", n, count)
	}
	return m
}

func TestEmptyMap(t *testing.T) {
	store := cas.NewMemoryStore()

	m, err := EmptyMap(store)
	if err != nil {
		t.Fatalf("EmptyMap failed: %v", err)
	}

	if _, ok, _ := m.Get([]byte("anything")); ok {
		t.Error("Expected empty map to hold nothing")
	}

	it, err := m.Iter()
	if err != nil {
		t.Fatalf("Iter failed: %v", err)
	}
	if it.Valid() {
		t.Error("Expected iterator over empty map to be exhausted")
	}
}

func TestGetAndIterate(t *testing.T) {
	store := cas.NewMemoryStore()
	m := buildMap(t, store, 500)

	got, ok, err := m.Get(key(123))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || !bytes.Equal(got, row(123)) {
		t.Errorf("Expected %q, got %q (ok=%v)", row(123), got, ok)
	}

	if _, ok, _ := m.Get([]byte("key-999999")); ok {
		t.Error("Expected absent key to be missing")
	}

	it, err := m.Iter()
	if err != nil {
		t.Fatalf("Iter failed: %v", err)
	}
	i := 0
	var prev []byte
	for it.Valid() {
		if prev != nil && bytes.Compare(prev, it.Key()) >= 0 {
			t.Fatalf("Iteration out of order at entry %d", i)
		}
		if !bytes.Equal(it.Key(), key(i)) {
			t.Fatalf("Expected key %q at position %d, got %q", key(i), i, it.Key())
		}
		prev = append(prev[:0], it.Key()...)
		i++
		if err := it.Next(); err != nil {
			t.Fatalf("Next failed: %v", err)
		}
	}
	if i != 500 {
		t.Errorf("Expected 500 entries, got %d", i)
	}
}

func TestEditRoundTrip(t *testing.T) {
	store := cas.NewMemoryStore()
	m := buildMap(t, store, 200)

	// Add a row, then remove it again: the tree must return to its
	// original shape because chunk boundaries depend only on content.
	ed := m.Edit()
	ed.Put([]byte("key-0000zz"), []byte("transient"))
	withRow, _, err := ed.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if withRow.Root() == m.Root() {
		t.Fatal("Expected a different root after insert")
	}

	ed = withRow.Edit()
	ed.Delete([]byte("key-0000zz"))
	restored, count, err := ed.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if count != 200 {
		t.Errorf("Expected 200 entries after delete, got %d", count)
	}
	if restored.Root() != m.Root() {
		t.Errorf("Expected structural equality after add+remove round trip: %s != %s",
			restored.Root(), m.Root())
	}
}

func TestEditUpdateAndDelete(t *testing.T) {
	store := cas.NewMemoryStore()
	m := buildMap(t, store, 50)

	ed := m.Edit()
	ed.Put(key(10), []byte("updated"))
	ed.Delete(key(20))
	ed.Delete([]byte("key-missing")) // no-op
	m2, count, err := ed.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if count != 49 {
		t.Errorf("Expected 49 entries, got %d", count)
	}

	got, ok, _ := m2.Get(key(10))
	if !ok || !bytes.Equal(got, []byte("updated")) {
		t.Errorf("Expected updated value, got %q (ok=%v)", got, ok)
	}
	if _, ok, _ := m2.Get(key(20)); ok {
		t.Error("Expected deleted key to be gone")
	}

	// The base map is unchanged.
	if _, ok, _ := m.Get(key(20)); !ok {
		t.Error("Expected base map to keep its entry")
	}
}

func TestDeterministicShape(t *testing.T) {
	// The same row set reached through different edit histories must
	// produce the same root.
	storeA := cas.NewMemoryStore()
	storeB := cas.NewMemoryStore()

	a := buildMap(t, storeA, 300)

	b := buildMap(t, storeB, 150)
	ed := b.Edit()
	for i := 150; i < 300; i++ {
		ed.Put(key(i), row(i))
	}
	b, _, err := ed.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if a.Root() != b.Root() {
		t.Errorf("Expected identical roots for identical content, got %s and %s",
			a.Root(), b.Root())
	}
}

func TestStructuralSharing(t *testing.T) {
	store := cas.NewMemoryStore()
	m := buildMap(t, store, 2000)

	before := store.Len()

	ed := m.Edit()
	ed.Put(key(1999), []byte("changed"))
	if _, _, err := ed.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// A single-row change near the end of a 2000-row table must reuse
	// almost every chunk.
	added := store.Len() - before
	if added > 8 {
		t.Errorf("Expected a small edit to add few chunks, added %d", added)
	}
}
