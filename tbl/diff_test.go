package tbl

import (
	"bytes"
	"testing"

	"github.com/lucab/strata/cas"
)

func TestDiffIdenticalRoots(t *testing.T) {
	store := cas.NewMemoryStore()
	m := buildMap(t, store, 100)

	iter, err := Diff(store, m.Root(), m.Root())
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	changes, err := iter.Collect()
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("Expected no changes between identical roots, got %d", len(changes))
	}
}

func TestDiffAddRemoveModify(t *testing.T) {
	store := cas.NewMemoryStore()
	base := buildMap(t, store, 100)

	ed := base.Edit()
	ed.Put([]byte("key-000050x"), []byte("new row")) // added
	ed.Delete(key(10))                               // removed
	ed.Put(key(70), []byte("changed"))               // modified
	next, _, err := ed.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	iter, err := Diff(store, base.Root(), next.Root())
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	changes, err := iter.Collect()
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(changes) != 3 {
		t.Fatalf("Expected 3 changes, got %d", len(changes))
	}

	// Changes arrive in key order: removed key-000010, added key-000050x,
	// modified key-000070.
	if changes[0].Kind != Removed || !bytes.Equal(changes[0].Key, key(10)) {
		t.Errorf("Expected removal of %q first, got %v %q", key(10), changes[0].Kind, changes[0].Key)
	}
	if changes[1].Kind != Added || !bytes.Equal(changes[1].New, []byte("new row")) {
		t.Errorf("Expected addition second, got %v %q", changes[1].Kind, changes[1].New)
	}
	if changes[2].Kind != Modified {
		t.Fatalf("Expected modification third, got %v", changes[2].Kind)
	}
	if !bytes.Equal(changes[2].Old, row(70)) || !bytes.Equal(changes[2].New, []byte("changed")) {
		t.Errorf("Expected old %q new %q, got old %q new %q",
			row(70), "changed", changes[2].Old, changes[2].New)
	}
}

func TestDiffFromEmpty(t *testing.T) {
	store := cas.NewMemoryStore()
	empty, err := EmptyMap(store)
	if err != nil {
		t.Fatalf("EmptyMap failed: %v", err)
	}
	m := buildMap(t, store, 25)

	iter, err := Diff(store, empty.Root(), m.Root())
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	changes, err := iter.Collect()
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(changes) != 25 {
		t.Fatalf("Expected 25 additions, got %d changes", len(changes))
	}
	for _, c := range changes {
		if c.Kind != Added {
			t.Errorf("Expected only additions, got %v for %q", c.Kind, c.Key)
		}
	}
}

func TestDiffIsLazy(t *testing.T) {
	store := cas.NewMemoryStore()
	base := buildMap(t, store, 1000)

	ed := base.Edit()
	for i := 0; i < 1000; i += 100 {
		ed.Put(key(i), []byte("touched"))
	}
	next, _, err := ed.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// Consume only the first change, then walk away.
	iter, err := Diff(store, base.Root(), next.Root())
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	c, ok, err := iter.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !ok || c.Kind != Modified {
		t.Errorf("Expected a first modification, got ok=%v kind=%v", ok, c.Kind)
	}

	// Restart from scratch and count everything.
	iter, err = Diff(store, base.Root(), next.Root())
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	changes, err := iter.Collect()
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(changes) != 10 {
		t.Errorf("Expected 10 modifications, got %d", len(changes))
	}
}
