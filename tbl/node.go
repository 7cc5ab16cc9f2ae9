package tbl

import (
	"encoding/json"
	"fmt"

	"github.com/lucab/strata/cas"
)

// node is one tree chunk. A leaf (level 0) holds encoded rows; an internal
// node holds child hashes. Keys are order-preserving primary key encodings;
// for internal nodes each key is the maximum key of the child subtree.
type node struct {
	Level    int        `json:"level"`
	Keys     [][]byte   `json:"keys"`
	Values   [][]byte   `json:"values,omitempty"`
	Children []cas.Hash `json:"children,omitempty"`
}

func (n *node) isLeaf() bool {
	return n.Level == 0
}

// maxKey returns the largest key in the subtree rooted at n.
func (n *node) maxKey() []byte {
	if len(n.Keys) == 0 {
		return nil
	}
	return n.Keys[len(n.Keys)-1]
}

func writeNode(store cas.Store, n *node) (cas.Hash, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return cas.Hash{}, fmt.Errorf("failed to encode tree node: %w", err)
	}
	h, err := store.Put(data)
	if err != nil {
		return cas.Hash{}, fmt.Errorf("failed to store tree node: %w", err)
	}
	return h, nil
}

func readNode(store cas.Store, h cas.Hash) (*node, error) {
	data, err := store.Get(h)
	if err != nil {
		return nil, fmt.Errorf("failed to load tree node %s: %w", h, err)
	}
	var n node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to decode tree node %s: %w", h, err)
	}
	if len(n.Keys) != len(n.Values) && n.isLeaf() {
		return nil, fmt.Errorf("corrupt leaf node %s: %d keys, %d values", h, len(n.Keys), len(n.Values))
	}
	if !n.isLeaf() && len(n.Keys) != len(n.Children) {
		return nil, fmt.Errorf("corrupt internal node %s: %d keys, %d children", h, len(n.Keys), len(n.Children))
	}
	return &n, nil
}
