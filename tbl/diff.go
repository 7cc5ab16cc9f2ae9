package tbl

import (
	"bytes"

	"github.com/lucab/strata/cas"
)

type ChangeKind int

const (
	Added ChangeKind = iota
	Removed
	Modified
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// Change is one row-level difference. Old is set for Removed and Modified,
// New for Added and Modified.
type Change struct {
	Kind ChangeKind
	Key  []byte
	Old  []byte
	New  []byte
}

// DiffIter streams the differences between two tree versions in key order.
// It is lazy: abandoning it early costs nothing beyond the chunks already
// visited, and re-creating it restarts the walk.
type DiffIter struct {
	from *Iterator
	to   *Iterator
	err  error
}

// Diff prepares a structural diff from one root to another. Subtrees with
// equal hashes are skipped without loading their rows.
func Diff(store cas.Store, from, to cas.Hash) (*DiffIter, error) {
	if from == to {
		return &DiffIter{}, nil
	}

	a, err := LoadMap(store, from).Iter()
	if err != nil {
		return nil, err
	}
	b, err := LoadMap(store, to).Iter()
	if err != nil {
		return nil, err
	}
	return &DiffIter{from: a, to: b}, nil
}

// Next returns the following change. ok is false once the diff is
// exhausted.
func (d *DiffIter) Next() (change Change, ok bool, err error) {
	if d.err != nil {
		return Change{}, false, d.err
	}
	if d.from == nil || d.to == nil {
		return Change{}, false, nil
	}

	for d.from.Valid() || d.to.Valid() {
		// Identical leaves at matching positions are pruned wholesale;
		// equal content hashes imply equal keys and rows.
		if d.from.Valid() && d.to.Valid() &&
			d.from.atLeafStart() && d.to.atLeafStart() &&
			d.from.leafHash() == d.to.leafHash() {
			if err := d.from.skipLeaf(); err != nil {
				return d.fail(err)
			}
			if err := d.to.skipLeaf(); err != nil {
				return d.fail(err)
			}
			continue
		}

		switch {
		case !d.to.Valid():
			change = Change{Kind: Removed, Key: d.from.Key(), Old: d.from.Value()}
			if err := d.from.Next(); err != nil {
				return d.fail(err)
			}
			return change, true, nil

		case !d.from.Valid():
			change = Change{Kind: Added, Key: d.to.Key(), New: d.to.Value()}
			if err := d.to.Next(); err != nil {
				return d.fail(err)
			}
			return change, true, nil
		}

		switch cmp := bytes.Compare(d.from.Key(), d.to.Key()); {
		case cmp < 0:
			change = Change{Kind: Removed, Key: d.from.Key(), Old: d.from.Value()}
			if err := d.from.Next(); err != nil {
				return d.fail(err)
			}
			return change, true, nil

		case cmp > 0:
			change = Change{Kind: Added, Key: d.to.Key(), New: d.to.Value()}
			if err := d.to.Next(); err != nil {
				return d.fail(err)
			}
			return change, true, nil

		default:
			modified := !bytes.Equal(d.from.Value(), d.to.Value())
			if modified {
				change = Change{
					Kind: Modified,
					Key:  d.from.Key(),
					Old:  d.from.Value(),
					New:  d.to.Value(),
				}
			}
			if err := d.from.Next(); err != nil {
				return d.fail(err)
			}
			if err := d.to.Next(); err != nil {
				return d.fail(err)
			}
			if modified {
				return change, true, nil
			}
		}
	}
	return Change{}, false, nil
}

func (d *DiffIter) fail(err error) (Change, bool, error) {
	d.err = err
	return Change{}, false, err
}

// Collect drains the iterator. Intended for small diffs and tests.
func (d *DiffIter) Collect() ([]Change, error) {
	var changes []Change
	for {
		c, ok, err := d.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return changes, nil
		}
		changes = append(changes, c)
	}
}
