package db

import (
	"github.com/lucab/strata/cas"
	"github.com/lucab/strata/core"
	"github.com/lucab/strata/graph"
	"github.com/lucab/strata/tbl"
)

// Log returns commits reachable from a revision, newest first, parents
// never before children. rev empty means the current tip; limit <= 0
// means all.
func (r *Repo) Log(rev string, limit int) ([]graph.LogEntry, error) {
	tip, err := r.resolveRev(rev)
	if err != nil {
		return nil, err
	}
	it, err := graph.Log(r.store, tip)
	if err != nil {
		return nil, err
	}
	return it.Collect(limit)
}

// TableDelta is one table-level difference between two revisions.
type TableDelta struct {
	Name          string
	Kind          tbl.ChangeKind
	SchemaChanged bool
}

// DiffTables compares two revisions at table granularity. Revisions are
// branch names or commit hashes; empty means the working set's tip.
func (r *Repo) DiffTables(from, to string) ([]TableDelta, error) {
	fromRoot, err := r.rootAt(from)
	if err != nil {
		return nil, err
	}
	toRoot, err := r.rootAt(to)
	if err != nil {
		return nil, err
	}
	return diffRoots(r, fromRoot, toRoot)
}

// DiffWorking compares the branch tip against the working set.
func (r *Repo) DiffWorking() ([]TableDelta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return diffRoots(r, r.tipRoot, r.working)
}

func diffRoots(r *Repo, fromRoot, toRoot graph.Root) ([]TableDelta, error) {
	var deltas []TableDelta
	for _, name := range unionNames(fromRoot, toRoot) {
		fromAddr, inFrom := fromRoot[name]
		toAddr, inTo := toRoot[name]
		switch {
		case !inFrom:
			deltas = append(deltas, TableDelta{Name: name, Kind: tbl.Added})
		case !inTo:
			deltas = append(deltas, TableDelta{Name: name, Kind: tbl.Removed})
		case fromAddr != toAddr:
			fromTbl, err := tbl.ReadTable(r.store, fromAddr)
			if err != nil {
				return nil, err
			}
			toTbl, err := tbl.ReadTable(r.store, toAddr)
			if err != nil {
				return nil, err
			}
			deltas = append(deltas, TableDelta{
				Name:          name,
				Kind:          tbl.Modified,
				SchemaChanged: tbl.SchemaChanged(fromTbl, toTbl),
			})
		}
	}
	return deltas, nil
}

// RowChange is one row-level difference with decoded values.
type RowChange struct {
	Kind tbl.ChangeKind
	Old  core.Row
	New  core.Row
}

// DiffRows streams the row-level changes of one table between two
// revisions and decodes them. Identical subtrees are skipped without
// touching their rows.
func (r *Repo) DiffRows(table, from, to string) ([]RowChange, error) {
	fromRoot, err := r.rootAt(from)
	if err != nil {
		return nil, err
	}
	toRoot, err := r.rootAt(to)
	if err != nil {
		return nil, err
	}
	return r.diffTableRows(table, fromRoot, toRoot)
}

// DiffRowsWorking diffs one table between the branch tip and the working
// set.
func (r *Repo) DiffRowsWorking(table string) ([]RowChange, error) {
	r.mu.RLock()
	fromRoot := r.tipRoot.Clone()
	toRoot := r.working.Clone()
	r.mu.RUnlock()
	return r.diffTableRows(table, fromRoot, toRoot)
}

func (r *Repo) diffTableRows(table string, fromRoot, toRoot graph.Root) ([]RowChange, error) {
	fromRows, err := tableRowsRoot(r, fromRoot, table)
	if err != nil {
		return nil, err
	}
	toRows, err := tableRowsRoot(r, toRoot, table)
	if err != nil {
		return nil, err
	}

	it, err := tbl.Diff(r.store, fromRows, toRows)
	if err != nil {
		return nil, err
	}
	var changes []RowChange
	for {
		c, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return changes, nil
		}
		rc := RowChange{Kind: c.Kind}
		if c.Old != nil {
			if rc.Old, err = core.DecodeRow(c.Old); err != nil {
				return nil, err
			}
			if rc.Old, err = r.resolveBlobs(rc.Old); err != nil {
				return nil, err
			}
		}
		if c.New != nil {
			if rc.New, err = core.DecodeRow(c.New); err != nil {
				return nil, err
			}
			if rc.New, err = r.resolveBlobs(rc.New); err != nil {
				return nil, err
			}
		}
		changes = append(changes, rc)
	}
}

// tableRowsRoot resolves a table's row-tree root within a database root.
// A table absent from the root diffs as the empty tree.
func tableRowsRoot(r *Repo, root graph.Root, table string) (cas.Hash, error) {
	addr, ok := root[table]
	if !ok {
		empty, err := tbl.EmptyMap(r.store)
		if err != nil {
			return cas.Hash{}, err
		}
		return empty.Root(), nil
	}
	t, err := tbl.ReadTable(r.store, addr)
	if err != nil {
		return cas.Hash{}, err
	}
	return t.Root, nil
}
