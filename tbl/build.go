package tbl

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/lucab/strata/cas"
)

const (
	// Boundary parameters. A node closes when the rolling entry hash hits
	// the boundary pattern past minNodeEntries, or at maxNodeEntries at
	// the latest. Expected fanout is avgNodeEntries.
	minNodeEntries = 8
	avgNodeEntries = 32
	maxNodeEntries = 96
)

// boundary reports whether the entry with the given key and payload closes
// its node. The decision depends only on the entry's content, which keeps
// tree shape independent of edit history.
func boundary(key, payload []byte) bool {
	h := cas.Of(append(append([]byte{}, key...), payload...))
	return binary.BigEndian.Uint32(h[:4])%avgNodeEntries == 0
}

// builder assembles a tree bottom-up from a key-ordered entry stream.
type builder struct {
	store  cas.Store
	levels []*levelBuilder
	count  uint64
	last   []byte
}

type levelBuilder struct {
	level    int
	keys     [][]byte
	values   [][]byte
	children []cas.Hash
}

func newBuilder(store cas.Store) *builder {
	return &builder{
		store:  store,
		levels: []*levelBuilder{{level: 0}},
	}
}

// Append adds the next entry. Keys must arrive in strictly ascending order;
// a duplicate or out-of-order key means the primary-key invariant was
// violated upstream.
func (b *builder) Append(key, value []byte) error {
	if b.last != nil && bytes.Compare(key, b.last) <= 0 {
		return fmt.Errorf("keys out of order: %x after %x", key, b.last)
	}
	b.last = append(b.last[:0], key...)
	b.count++

	lb := b.levels[0]
	lb.keys = append(lb.keys, key)
	lb.values = append(lb.values, value)

	if len(lb.keys) >= maxNodeEntries ||
		(len(lb.keys) >= minNodeEntries && boundary(key, value)) {
		return b.closeNode(0)
	}
	return nil
}

// closeNode writes out the pending node at the given level and promotes its
// hash to the level above.
func (b *builder) closeNode(level int) error {
	lb := b.levels[level]
	n := &node{
		Level:    lb.level,
		Keys:     lb.keys,
		Values:   lb.values,
		Children: lb.children,
	}
	h, err := writeNode(b.store, n)
	if err != nil {
		return err
	}
	maxKey := n.maxKey()

	lb.keys = nil
	lb.values = nil
	lb.children = nil

	if level+1 == len(b.levels) {
		b.levels = append(b.levels, &levelBuilder{level: level + 1})
	}
	parent := b.levels[level+1]
	parent.keys = append(parent.keys, maxKey)
	parent.children = append(parent.children, h)

	if len(parent.keys) >= maxNodeEntries ||
		(len(parent.keys) >= minNodeEntries && boundary(maxKey, h[:])) {
		return b.closeNode(level + 1)
	}
	return nil
}

// Finish flushes pending nodes and returns the root hash and entry count.
// An empty stream yields the canonical empty leaf.
func (b *builder) Finish() (cas.Hash, uint64, error) {
	for level := 0; level < len(b.levels); level++ {
		lb := b.levels[level]
		isTop := level == len(b.levels)-1
		if isTop {
			// The top level collapses to the root: a single pending child
			// needs no wrapping node.
			if len(lb.children) == 1 && len(lb.keys) == 1 && level > 0 {
				return lb.children[0], b.count, nil
			}
			h, err := writeNode(b.store, &node{
				Level:    lb.level,
				Keys:     lb.keys,
				Values:   lb.values,
				Children: lb.children,
			})
			return h, b.count, err
		}
		if len(lb.keys) > 0 {
			if err := b.closeNode(level); err != nil {
				return cas.Hash{}, 0, err
			}
		}
	}
	// Unreachable: the loop always returns at the top level.
	return cas.Hash{}, 0, fmt.Errorf("builder finished without a root")
}
