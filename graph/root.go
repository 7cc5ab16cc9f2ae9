package graph

import (
	"encoding/json"
	"fmt"

	"github.com/lucab/strata/cas"
)

// Root maps table name to table address, representing one complete
// snapshot of a database.
type Root map[string]cas.Hash

// Clone returns an independent copy.
func (r Root) Clone() Root {
	out := make(Root, len(r))
	for name, h := range r {
		out[name] = h
	}
	return out
}

// Equal reports whether both roots name the same tables with the same
// addresses.
func (r Root) Equal(other Root) bool {
	if len(r) != len(other) {
		return false
	}
	for name, h := range r {
		if other[name] != h {
			return false
		}
	}
	return true
}

// WriteRoot stores the root as a chunk. encoding/json emits map keys in
// sorted order, so identical roots serialize identically.
func WriteRoot(store cas.Store, r Root) (cas.Hash, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return cas.Hash{}, fmt.Errorf("failed to encode root: %w", err)
	}
	h, err := store.Put(data)
	if err != nil {
		return cas.Hash{}, fmt.Errorf("failed to store root: %w", err)
	}
	return h, nil
}

// ReadRoot loads a root chunk.
func ReadRoot(store cas.Store, h cas.Hash) (Root, error) {
	data, err := store.Get(h)
	if err != nil {
		return nil, fmt.Errorf("failed to load root %s: %w", h, err)
	}
	r := make(Root)
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode root %s: %w", h, err)
	}
	return r, nil
}
