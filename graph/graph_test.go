package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/lucab/strata/cas"
	"github.com/lucab/strata/core"
)

var testAuthor = core.Identity{Name: "Test", Email: "test@test.com"}

// writeRoot stores a root naming a single table whose address is derived
// from tag, so distinct tags give distinct roots.
func writeRoot(t *testing.T, store cas.Store, tag string) cas.Hash {
	t.Helper()
	h, err := WriteRoot(store, Root{"players": cas.Of([]byte(tag))})
	if err != nil {
		t.Fatalf("WriteRoot failed: %v", err)
	}
	return h
}

func mustCommit(t *testing.T, store cas.Store, root cas.Hash, parents []cas.Hash, msg string, when time.Time) cas.Hash {
	t.Helper()
	h, _, err := Create(store, CreateOptions{
		Root:    root,
		Parents: parents,
		Author:  testAuthor,
		Message: msg,
		When:    when,
	})
	if err != nil {
		t.Fatalf("Create %q failed: %v", msg, err)
	}
	return h
}

func TestCommitIdentity(t *testing.T) {
	store := cas.NewMemoryStore()
	root := writeRoot(t, store, "v1")
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	c1 := mustCommit(t, store, root, nil, "initial", when)
	c2 := mustCommit(t, store, root, nil, "initial", when)
	if c1 != c2 {
		t.Errorf("Expected identical commits to share identity, got %s and %s", c1, c2)
	}

	c3 := mustCommit(t, store, root, nil, "different message", when)
	if c1 == c3 {
		t.Error("Expected different content to produce a different identity")
	}

	loaded, err := ReadCommit(store, c1)
	if err != nil {
		t.Fatalf("ReadCommit failed: %v", err)
	}
	if loaded.Message != "initial" || loaded.Author != "Test" {
		t.Errorf("Unexpected commit after round trip: %+v", loaded)
	}
}

func TestEmptyCommitRejected(t *testing.T) {
	store := cas.NewMemoryStore()
	root := writeRoot(t, store, "v1")
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	c1 := mustCommit(t, store, root, nil, "initial", when)

	_, _, err := Create(store, CreateOptions{
		Root:    root,
		Parents: []cas.Hash{c1},
		Author:  testAuthor,
		Message: "no changes",
	})
	if !errors.Is(err, ErrEmptyCommit) {
		t.Fatalf("Expected ErrEmptyCommit, got %v", err)
	}

	// The override must lift the restriction.
	h, _, err := Create(store, CreateOptions{
		Root:       root,
		Parents:    []cas.Hash{c1},
		Author:     testAuthor,
		Message:    "checkpoint",
		AllowEmpty: true,
	})
	if err != nil {
		t.Fatalf("Expected allow-empty commit to succeed, got %v", err)
	}
	if h.IsZero() {
		t.Error("Expected a commit hash")
	}
}

// linearHistory builds c1 <- c2 <- c3 and returns the hashes oldest first.
func linearHistory(t *testing.T, store cas.Store) []cas.Hash {
	t.Helper()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c1 := mustCommit(t, store, writeRoot(t, store, "v1"), nil, "one", base)
	c2 := mustCommit(t, store, writeRoot(t, store, "v2"), []cas.Hash{c1}, "two", base.Add(time.Minute))
	c3 := mustCommit(t, store, writeRoot(t, store, "v3"), []cas.Hash{c2}, "three", base.Add(2*time.Minute))
	return []cas.Hash{c1, c2, c3}
}

func TestLogLinear(t *testing.T) {
	store := cas.NewMemoryStore()
	commits := linearHistory(t, store)

	it, err := Log(store, commits[2])
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	entries, err := it.Collect(0)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"three", "two", "one"} {
		if entries[i].Commit.Message != want {
			t.Errorf("Expected %q at position %d, got %q", want, i, entries[i].Commit.Message)
		}
	}
}

func TestLogMergeGraph(t *testing.T) {
	store := cas.NewMemoryStore()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// Diamond: a <- b, a <- c, (b,c) <- m. The shared ancestor must be
	// emitted exactly once and never before b or c.
	a := mustCommit(t, store, writeRoot(t, store, "a"), nil, "a", base)
	b := mustCommit(t, store, writeRoot(t, store, "b"), []cas.Hash{a}, "b", base.Add(time.Minute))
	c := mustCommit(t, store, writeRoot(t, store, "c"), []cas.Hash{a}, "c", base.Add(2*time.Minute))
	m := mustCommit(t, store, writeRoot(t, store, "m"), []cas.Hash{b, c}, "m", base.Add(3*time.Minute))

	it, err := Log(store, m)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	entries, err := it.Collect(0)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("Expected 4 entries, got %d", len(entries))
	}

	emitted := map[cas.Hash]int{}
	for i, e := range entries {
		if _, dup := emitted[e.Hash]; dup {
			t.Fatalf("Commit %s emitted twice", e.Hash)
		}
		emitted[e.Hash] = i
	}
	// No commit may appear after any of its parents... i.e. each parent's
	// position is strictly later than its child's.
	for _, e := range entries {
		for _, p := range e.Commit.Parents {
			if emitted[p] <= emitted[e.Hash] {
				t.Errorf("Parent %s emitted before child %s", p, e.Hash)
			}
		}
	}
	if entries[0].Hash != m || entries[3].Hash != a {
		t.Error("Expected merge first and shared ancestor last")
	}
}

func TestLogTopologicalUnderClockSkew(t *testing.T) {
	store := cas.NewMemoryStore()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// The parent claims a *later* timestamp than one of its children.
	a := mustCommit(t, store, writeRoot(t, store, "a"), nil, "a", base.Add(time.Hour))
	b := mustCommit(t, store, writeRoot(t, store, "b"), []cas.Hash{a}, "b", base)
	c := mustCommit(t, store, writeRoot(t, store, "c"), []cas.Hash{a}, "c", base.Add(2*time.Hour))
	m := mustCommit(t, store, writeRoot(t, store, "m"), []cas.Hash{b, c}, "m", base.Add(3*time.Hour))

	it, err := Log(store, m)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	entries, err := it.Collect(0)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	pos := map[cas.Hash]int{}
	for i, e := range entries {
		pos[e.Hash] = i
	}
	if pos[a] < pos[b] || pos[a] < pos[c] {
		t.Error("Expected the skewed parent to still follow both children")
	}
}

func TestLogLimit(t *testing.T) {
	store := cas.NewMemoryStore()
	commits := linearHistory(t, store)

	it, err := Log(store, commits[2])
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	entries, err := it.Collect(2)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Expected 2 entries with limit, got %d", len(entries))
	}
}

func TestMergeBase(t *testing.T) {
	store := cas.NewMemoryStore()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	a := mustCommit(t, store, writeRoot(t, store, "a"), nil, "a", base)
	b := mustCommit(t, store, writeRoot(t, store, "b"), []cas.Hash{a}, "b", base.Add(time.Minute))
	c := mustCommit(t, store, writeRoot(t, store, "c"), []cas.Hash{a}, "c", base.Add(2*time.Minute))

	// Self.
	got, err := MergeBase(store, b, b)
	if err != nil {
		t.Fatalf("MergeBase failed: %v", err)
	}
	if got != b {
		t.Errorf("Expected MergeBase(b, b) == b, got %s", got)
	}

	// Siblings meet at their parent, in both argument orders.
	got, err = MergeBase(store, b, c)
	if err != nil {
		t.Fatalf("MergeBase failed: %v", err)
	}
	if got != a {
		t.Errorf("Expected %s, got %s", a, got)
	}
	sym, err := MergeBase(store, c, b)
	if err != nil {
		t.Fatalf("MergeBase failed: %v", err)
	}
	if sym != got {
		t.Errorf("Expected symmetric merge base, got %s and %s", got, sym)
	}

	// Ancestor/descendant: the ancestor is the base.
	got, err = MergeBase(store, a, b)
	if err != nil {
		t.Fatalf("MergeBase failed: %v", err)
	}
	if got != a {
		t.Errorf("Expected %s, got %s", a, got)
	}

	// Disjoint histories share nothing.
	x := mustCommit(t, store, writeRoot(t, store, "x"), nil, "x", base)
	if _, err := MergeBase(store, b, x); !errors.Is(err, ErrNoCommonAncestor) {
		t.Errorf("Expected ErrNoCommonAncestor, got %v", err)
	}
}

func TestIsAncestor(t *testing.T) {
	store := cas.NewMemoryStore()
	commits := linearHistory(t, store)

	ok, err := IsAncestor(store, commits[0], commits[2])
	if err != nil {
		t.Fatalf("IsAncestor failed: %v", err)
	}
	if !ok {
		t.Error("Expected c1 to be an ancestor of c3")
	}

	ok, err = IsAncestor(store, commits[2], commits[0])
	if err != nil {
		t.Fatalf("IsAncestor failed: %v", err)
	}
	if ok {
		t.Error("Expected c3 not to be an ancestor of c1")
	}
}
