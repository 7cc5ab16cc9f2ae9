package tbl

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/lucab/strata/cas"
)

// Map is an immutable ordered map of encoded primary key to encoded row,
// stored as a tree of chunks. The zero Map is not usable; obtain one from
// EmptyMap or LoadMap.
type Map struct {
	store cas.Store
	root  cas.Hash
}

// EmptyMap writes (or reuses) the canonical empty tree and returns it.
func EmptyMap(store cas.Store) (Map, error) {
	h, _, err := newBuilder(store).Finish()
	if err != nil {
		return Map{}, fmt.Errorf("failed to write empty tree: %w", err)
	}
	return Map{store: store, root: h}, nil
}

// LoadMap opens an existing tree by its root hash.
func LoadMap(store cas.Store, root cas.Hash) Map {
	return Map{store: store, root: root}
}

// Root returns the tree's root hash. Two maps with equal roots hold
// identical contents.
func (m Map) Root() cas.Hash {
	return m.root
}

// Get returns the encoded row stored under key.
func (m Map) Get(key []byte) ([]byte, bool, error) {
	h := m.root
	for {
		n, err := readNode(m.store, h)
		if err != nil {
			return nil, false, err
		}
		idx := sort.Search(len(n.Keys), func(i int) bool {
			return bytes.Compare(n.Keys[i], key) >= 0
		})
		if n.isLeaf() {
			if idx < len(n.Keys) && bytes.Equal(n.Keys[idx], key) {
				return n.Values[idx], true, nil
			}
			return nil, false, nil
		}
		if idx == len(n.Children) {
			return nil, false, nil // beyond the largest key
		}
		h = n.Children[idx]
	}
}

// frame tracks the cursor position inside one node on the path from root
// to the current leaf.
type frame struct {
	n    *node
	hash cas.Hash
	idx  int
}

// Iterator walks a tree in key order. It is a finite lazy sequence: the
// caller can stop consuming at any point at no extra cost.
type Iterator struct {
	store cas.Store
	stack []frame
}

// Iter positions an iterator at the first entry.
func (m Map) Iter() (*Iterator, error) {
	it := &Iterator{store: m.store}
	if err := it.descend(m.root); err != nil {
		return nil, err
	}
	it.skipEmptyLeaves()
	return it, nil
}

// descend pushes frames from h down to its leftmost leaf.
func (it *Iterator) descend(h cas.Hash) error {
	for {
		n, err := readNode(it.store, h)
		if err != nil {
			return err
		}
		it.stack = append(it.stack, frame{n: n, hash: h})
		if n.isLeaf() {
			return nil
		}
		if len(n.Children) == 0 {
			return nil
		}
		h = n.Children[0]
	}
}

// Valid reports whether the iterator points at an entry.
func (it *Iterator) Valid() bool {
	if len(it.stack) == 0 {
		return false
	}
	top := &it.stack[len(it.stack)-1]
	return top.n.isLeaf() && top.idx < len(top.n.Keys)
}

func (it *Iterator) Key() []byte {
	top := &it.stack[len(it.stack)-1]
	return top.n.Keys[top.idx]
}

func (it *Iterator) Value() []byte {
	top := &it.stack[len(it.stack)-1]
	return top.n.Values[top.idx]
}

// Next advances to the following entry.
func (it *Iterator) Next() error {
	top := &it.stack[len(it.stack)-1]
	top.idx++
	if top.idx < len(top.n.Keys) {
		return nil
	}
	return it.ascend()
}

// ascend pops exhausted frames and descends into the next sibling subtree.
func (it *Iterator) ascend() error {
	it.stack = it.stack[:len(it.stack)-1]
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		top.idx++
		if top.idx < len(top.n.Children) {
			if err := it.descend(top.n.Children[top.idx]); err != nil {
				return err
			}
			it.skipEmptyLeaves()
			return nil
		}
		it.stack = it.stack[:len(it.stack)-1]
	}
	return nil
}

func (it *Iterator) skipEmptyLeaves() {
	// Only the canonical empty tree has an empty leaf, but guard anyway.
	if len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		if top.n.isLeaf() && len(top.n.Keys) == 0 {
			it.stack = it.stack[:len(it.stack)-1]
		}
	}
}

// atLeafStart reports whether the cursor sits on the first entry of its
// leaf; only then is leafHash meaningful for subtree skipping.
func (it *Iterator) atLeafStart() bool {
	if !it.Valid() {
		return false
	}
	return it.stack[len(it.stack)-1].idx == 0
}

func (it *Iterator) leafHash() cas.Hash {
	return it.stack[len(it.stack)-1].hash
}

// skipLeaf jumps over the current leaf entirely.
func (it *Iterator) skipLeaf() error {
	return it.ascend()
}

type edit struct {
	key    []byte
	value  []byte
	delete bool
}

// Editor accumulates edits against a base map and produces a new map on
// Flush. The base map is never modified.
type Editor struct {
	base  Map
	edits map[string]edit
}

// Edit starts an edit session on m.
func (m Map) Edit() *Editor {
	return &Editor{
		base:  m,
		edits: make(map[string]edit),
	}
}

// Put stages an insert or update.
func (e *Editor) Put(key, value []byte) {
	e.edits[string(key)] = edit{key: key, value: value}
}

// Delete stages a removal. Deleting an absent key is a no-op at Flush.
func (e *Editor) Delete(key []byte) {
	e.edits[string(key)] = edit{key: key, delete: true}
}

// Flush merges the staged edits with the base tree, in key order, into a
// new tree. Unchanged chunks are re-put idempotently and deduplicate in
// the store. Returns the new map and its entry count.
func (e *Editor) Flush() (Map, uint64, error) {
	ordered := make([]edit, 0, len(e.edits))
	for _, ed := range e.edits {
		ordered = append(ordered, ed)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return bytes.Compare(ordered[i].key, ordered[j].key) < 0
	})

	it, err := e.base.Iter()
	if err != nil {
		return Map{}, 0, err
	}

	b := newBuilder(e.base.store)
	pos := 0
	for it.Valid() {
		key := it.Key()

		// Emit staged edits that sort before the base entry.
		for pos < len(ordered) && bytes.Compare(ordered[pos].key, key) < 0 {
			if !ordered[pos].delete {
				if err := b.Append(ordered[pos].key, ordered[pos].value); err != nil {
					return Map{}, 0, err
				}
			}
			pos++
		}

		if pos < len(ordered) && bytes.Equal(ordered[pos].key, key) {
			// Edit shadows the base entry.
			if !ordered[pos].delete {
				if err := b.Append(ordered[pos].key, ordered[pos].value); err != nil {
					return Map{}, 0, err
				}
			}
			pos++
		} else {
			if err := b.Append(key, it.Value()); err != nil {
				return Map{}, 0, err
			}
		}

		if err := it.Next(); err != nil {
			return Map{}, 0, err
		}
	}
	for ; pos < len(ordered); pos++ {
		if ordered[pos].delete {
			continue
		}
		if err := b.Append(ordered[pos].key, ordered[pos].value); err != nil {
			return Map{}, 0, err
		}
	}

	root, count, err := b.Finish()
	if err != nil {
		return Map{}, 0, err
	}
	return Map{store: e.base.store, root: root}, count, nil
}
