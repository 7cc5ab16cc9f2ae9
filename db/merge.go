package db

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lucab/strata/cas"
	"github.com/lucab/strata/core"
	"github.com/lucab/strata/graph"
	"github.com/lucab/strata/refs"
	"github.com/lucab/strata/tbl"
)

// MergeStrategy selects how concurrent row edits are resolved.
type MergeStrategy int

const (
	// FastForwardOnly refuses any merge that needs a merge commit.
	FastForwardOnly MergeStrategy = iota
	// RowLevel auto-merges non-overlapping row edits; overlapping edits
	// resolve to the side with the newer commit timestamp.
	RowLevel
	// Manual auto-merges non-overlapping edits and parks overlapping ones
	// as a pending merge for ResolveConflict / ContinueMerge.
	Manual
)

func (s MergeStrategy) String() string {
	switch s {
	case FastForwardOnly:
		return "fast-forward-only"
	case RowLevel:
		return "row-level"
	case Manual:
		return "manual"
	default:
		return fmt.Sprintf("MergeStrategy(%d)", int(s))
	}
}

var (
	ErrMergeNotPossible = errors.New("merge requires a merge commit")
	ErrNoPendingMerge   = errors.New("no pending merge")
	ErrUnresolved       = errors.New("merge has unresolved conflicts")
	ErrStaleMerge       = errors.New("branch tip moved while the merge was pending")
)

// MergeOptions parameterizes Merge.
type MergeOptions struct {
	Strategy MergeStrategy
	Message  string // defaults to "Merge branch '<source>'"
}

// DefaultMergeOptions merges with row-level auto-resolution.
func DefaultMergeOptions() MergeOptions {
	return MergeOptions{Strategy: RowLevel}
}

// RecordConflict is one row where both branches edited since the base.
type RecordConflict struct {
	Table      string
	Key        []byte
	Base       core.Row // nil when the row was added on both sides
	Ours       core.Row // nil when deleted on our side
	Theirs     core.Row // nil when deleted on their side
	Resolved   bool
	Resolution core.Row // nil resolution means delete
}

// MergeResult reports the outcome of a merge.
type MergeResult struct {
	Transaction Transaction
	FastForward bool
	UpToDate    bool
	MergedRows  int
	Conflicts   []RecordConflict
	Unresolved  int
	MergeID     string // set for a pending manual merge
	Pending     bool
}

// pendingMerge holds an in-flight manual merge until every conflict is
// resolved. ourTip pins the branch tip the merged root was computed
// against; ContinueMerge refuses if the branch has moved since.
type pendingMerge struct {
	id        string
	source    string
	ourTip    cas.Hash
	sourceTip cas.Hash
	merged    graph.Root // auto-merged portion
	conflicts []RecordConflict
	message   string
}

// Merge merges a source branch into the checked-out branch. The working
// set must be clean. Fast-forward and already-up-to-date cases never
// create a commit.
func (r *Repo) Merge(source string, opts MergeOptions) (MergeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if source == r.branch {
		return MergeResult{UpToDate: true}, nil
	}
	if !r.working.Equal(r.tipRoot) || !r.staged.Equal(r.tipRoot) {
		return MergeResult{}, fmt.Errorf("%w: commit or reset before merging", ErrDirtyWorkingSet)
	}
	sourceTip, err := r.refs.Get(source)
	if err == refs.ErrNotFound {
		return MergeResult{}, fmt.Errorf("%w: %s", ErrBranchNotFound, source)
	}
	if err != nil {
		return MergeResult{}, err
	}

	// Already up to date: source is behind us.
	if ok, err := graph.IsAncestor(r.store, sourceTip, r.tip); err != nil {
		return MergeResult{}, err
	} else if ok {
		return MergeResult{UpToDate: true}, nil
	}

	// Fast-forward: we are behind the source.
	if ok, err := graph.IsAncestor(r.store, r.tip, sourceTip); err != nil {
		return MergeResult{}, err
	} else if ok {
		if err := r.refs.CompareAndSet(r.branch, r.tip, sourceTip); err != nil {
			return MergeResult{}, err
		}
		if err := r.resetTo(sourceTip); err != nil {
			return MergeResult{}, err
		}
		r.log.WithFields(logrus.Fields{
			"branch": r.branch, "source": source,
		}).Info("fast-forward merge")
		return MergeResult{FastForward: true, Transaction: Transaction{Hash: sourceTip}}, nil
	}

	if opts.Strategy == FastForwardOnly {
		return MergeResult{}, fmt.Errorf("%w: %s and %s have diverged",
			ErrMergeNotPossible, r.branch, source)
	}

	base, err := graph.MergeBase(r.store, r.tip, sourceTip)
	if err != nil {
		return MergeResult{}, err
	}
	baseRoot, err := r.commitRoot(base)
	if err != nil {
		return MergeResult{}, err
	}
	sourceRoot, err := r.commitRoot(sourceTip)
	if err != nil {
		return MergeResult{}, err
	}

	merged, mergedRows, conflicts, err := r.threeWayMerge(baseRoot, r.tipRoot, sourceRoot)
	if err != nil {
		return MergeResult{}, err
	}

	if len(conflicts) > 0 && opts.Strategy == Manual {
		id := uuid.NewString()
		r.pending[id] = &pendingMerge{
			id:        id,
			source:    source,
			ourTip:    r.tip,
			sourceTip: sourceTip,
			merged:    merged,
			conflicts: conflicts,
			message:   opts.Message,
		}
		return MergeResult{
			MergedRows: mergedRows,
			Conflicts:  conflicts,
			Unresolved: len(conflicts),
			MergeID:    id,
			Pending:    true,
		}, nil
	}

	if len(conflicts) > 0 {
		// RowLevel: newer commit timestamp wins for every conflicted row.
		ourCommit, err := graph.ReadCommit(r.store, r.tip)
		if err != nil {
			return MergeResult{}, err
		}
		theirCommit, err := graph.ReadCommit(r.store, sourceTip)
		if err != nil {
			return MergeResult{}, err
		}
		theirsWin := theirCommit.When.After(ourCommit.When)
		for i := range conflicts {
			conflicts[i].Resolved = true
			if theirsWin {
				conflicts[i].Resolution = conflicts[i].Theirs
			} else {
				conflicts[i].Resolution = conflicts[i].Ours
			}
		}
		merged, err = r.applyResolutions(merged, conflicts)
		if err != nil {
			return MergeResult{}, err
		}
	}

	txn, err := r.commitMerge(merged, sourceTip, source, opts.Message)
	if err != nil {
		return MergeResult{}, err
	}
	return MergeResult{
		Transaction: txn,
		MergedRows:  mergedRows,
		Conflicts:   conflicts,
	}, nil
}

// ResolveConflict records the resolution for one conflicted row of a
// pending merge. A nil resolution deletes the row.
func (r *Repo) ResolveConflict(mergeID, table string, key []byte, resolution core.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pm, ok := r.pending[mergeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPendingMerge, mergeID)
	}
	for i := range pm.conflicts {
		c := &pm.conflicts[i]
		if c.Table == table && bytes.Equal(c.Key, key) {
			c.Resolved = true
			c.Resolution = resolution
			return nil
		}
	}
	return fmt.Errorf("no conflict for table %q at that key", table)
}

// ContinueMerge commits a pending manual merge once every conflict is
// resolved.
func (r *Repo) ContinueMerge(mergeID string) (MergeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pm, ok := r.pending[mergeID]
	if !ok {
		return MergeResult{}, fmt.Errorf("%w: %s", ErrNoPendingMerge, mergeID)
	}
	if r.tip != pm.ourTip {
		// The merged root was computed against an older tip; committing it
		// now would erase whatever landed in between. The caller must abort
		// and re-run the merge against the current tip.
		return MergeResult{}, fmt.Errorf("%w: %s has advanced, abort and merge again", ErrStaleMerge, r.branch)
	}
	unresolved := 0
	for _, c := range pm.conflicts {
		if !c.Resolved {
			unresolved++
		}
	}
	if unresolved > 0 {
		return MergeResult{}, fmt.Errorf("%w: %d remaining", ErrUnresolved, unresolved)
	}

	merged, err := r.applyResolutions(pm.merged, pm.conflicts)
	if err != nil {
		return MergeResult{}, err
	}
	txn, err := r.commitMerge(merged, pm.sourceTip, pm.source, pm.message)
	if err != nil {
		return MergeResult{}, err
	}
	delete(r.pending, mergeID)
	return MergeResult{Transaction: txn, Conflicts: pm.conflicts}, nil
}

// AbortMerge discards a pending merge.
func (r *Repo) AbortMerge(mergeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[mergeID]; !ok {
		return fmt.Errorf("%w: %s", ErrNoPendingMerge, mergeID)
	}
	delete(r.pending, mergeID)
	return nil
}

// commitRoot loads the root of a commit. Callers hold r.mu.
func (r *Repo) commitRoot(h cas.Hash) (graph.Root, error) {
	c, err := graph.ReadCommit(r.store, h)
	if err != nil {
		return nil, err
	}
	return graph.ReadRoot(r.store, c.Root)
}

// resetTo points the working set at a commit. Callers hold r.mu.
func (r *Repo) resetTo(tip cas.Hash) error {
	root, err := r.commitRoot(tip)
	if err != nil {
		return err
	}
	r.tip = tip
	r.tipRoot = root
	r.working = root.Clone()
	r.staged = root.Clone()
	return nil
}

// commitMerge writes the merge commit with both tips as parents and
// advances the branch. Callers hold r.mu.
func (r *Repo) commitMerge(merged graph.Root, sourceTip cas.Hash, source, message string) (Transaction, error) {
	if message == "" {
		message = fmt.Sprintf("Merge branch '%s'", source)
	}
	rootHash, err := graph.WriteRoot(r.store, merged)
	if err != nil {
		return Transaction{}, err
	}
	commitHash, commit, err := graph.Create(r.store, graph.CreateOptions{
		Root:       rootHash,
		Parents:    []cas.Hash{r.tip, sourceTip},
		Author:     r.id,
		Message:    message,
		AllowEmpty: true,
	})
	if err != nil {
		return Transaction{}, err
	}
	if err := r.refs.CompareAndSet(r.branch, r.tip, commitHash); err != nil {
		return Transaction{}, err
	}
	if err := r.resetTo(commitHash); err != nil {
		return Transaction{}, err
	}
	r.log.WithFields(logrus.Fields{
		"branch": r.branch, "source": source, "commit": commitHash,
	}).Info("merged")
	return Transaction{Hash: commitHash, Commit: commit}, nil
}

// threeWayMerge merges ours and theirs against their common base, table
// by table, row by row. It returns the merged root with non-overlapping
// edits applied, the number of rows taken from theirs, and the rows both
// sides edited.
func (r *Repo) threeWayMerge(base, ours, theirs graph.Root) (graph.Root, int, []RecordConflict, error) {
	merged := ours.Clone()
	mergedRows := 0
	var conflicts []RecordConflict

	for _, name := range unionNames(base, ours, theirs) {
		baseAddr, inBase := base[name]
		ourAddr, inOurs := ours[name]
		theirAddr, inTheirs := theirs[name]

		ourChanged := inOurs != inBase || (inOurs && ourAddr != baseAddr)
		theirChanged := inTheirs != inBase || (inTheirs && theirAddr != baseAddr)

		switch {
		case !theirChanged:
			// Nothing incoming for this table.
		case !ourChanged:
			// Only theirs changed: take their version wholesale.
			if inTheirs {
				merged[name] = theirAddr
			} else {
				delete(merged, name)
			}
		case !inOurs || !inTheirs:
			// One side dropped a table the other edited. Keep the edited
			// side; a row-level merge has no base to work from.
			if inTheirs {
				merged[name] = theirAddr
			}
		default:
			// Both edited: merge row by row against the base version.
			addr, n, tc, err := r.mergeTable(name, baseAddr, inBase, ourAddr, theirAddr)
			if err != nil {
				return nil, 0, nil, err
			}
			merged[name] = addr
			mergedRows += n
			conflicts = append(conflicts, tc...)
		}
	}
	return merged, mergedRows, conflicts, nil
}

// mergeTable three-way-merges one table. Schema changes on both sides
// are not reconciled: our schema wins, rows are merged by key.
func (r *Repo) mergeTable(name string, baseAddr cas.Hash, inBase bool, ourAddr, theirAddr cas.Hash) (cas.Hash, int, []RecordConflict, error) {
	ourTbl, err := tbl.ReadTable(r.store, ourAddr)
	if err != nil {
		return cas.Hash{}, 0, nil, err
	}
	theirTbl, err := tbl.ReadTable(r.store, theirAddr)
	if err != nil {
		return cas.Hash{}, 0, nil, err
	}

	baseRows := cas.Hash{}
	if inBase {
		baseTbl, err := tbl.ReadTable(r.store, baseAddr)
		if err != nil {
			return cas.Hash{}, 0, nil, err
		}
		baseRows = baseTbl.Root
	} else {
		empty, err := tbl.EmptyMap(r.store)
		if err != nil {
			return cas.Hash{}, 0, nil, err
		}
		baseRows = empty.Root()
	}

	ourChanges, err := collectByKey(r.store, baseRows, ourTbl.Root)
	if err != nil {
		return cas.Hash{}, 0, nil, err
	}
	theirChanges, err := collectByKey(r.store, baseRows, theirTbl.Root)
	if err != nil {
		return cas.Hash{}, 0, nil, err
	}

	ed := tbl.LoadMap(r.store, ourTbl.Root).Edit()
	mergedRows := 0
	var conflicts []RecordConflict
	for key, theirC := range theirChanges {
		ourC, both := ourChanges[key]
		if !both {
			// Clean: only theirs touched this row.
			if theirC.Kind == tbl.Removed {
				ed.Delete([]byte(key))
			} else {
				ed.Put([]byte(key), theirC.New)
			}
			mergedRows++
			continue
		}
		if sameOutcome(ourC, theirC) {
			continue // both sides made the identical change
		}
		conflict := RecordConflict{Table: name, Key: []byte(key)}
		if conflict.Base, err = decodeOptional(r, theirC.Old); err != nil {
			return cas.Hash{}, 0, nil, err
		}
		if conflict.Ours, err = decodeOptional(r, ourC.New); err != nil {
			return cas.Hash{}, 0, nil, err
		}
		if conflict.Theirs, err = decodeOptional(r, theirC.New); err != nil {
			return cas.Hash{}, 0, nil, err
		}
		conflicts = append(conflicts, conflict)
	}

	m, count, err := ed.Flush()
	if err != nil {
		return cas.Hash{}, 0, nil, err
	}
	addr, err := tbl.WriteTable(r.store, tbl.Table{
		SchemaHash: ourTbl.SchemaHash,
		Root:       m.Root(),
		RowCount:   count,
	})
	if err != nil {
		return cas.Hash{}, 0, nil, err
	}
	return addr, mergedRows, conflicts, nil
}

// collectByKey indexes a structural diff by row key.
func collectByKey(store cas.Store, from, to cas.Hash) (map[string]tbl.Change, error) {
	it, err := tbl.Diff(store, from, to)
	if err != nil {
		return nil, err
	}
	out := make(map[string]tbl.Change)
	for {
		c, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out[string(c.Key)] = c
	}
}

func sameOutcome(a, b tbl.Change) bool {
	if (a.Kind == tbl.Removed) != (b.Kind == tbl.Removed) {
		return false
	}
	return bytes.Equal(a.New, b.New)
}

func decodeOptional(r *Repo, data []byte) (core.Row, error) {
	if data == nil {
		return nil, nil
	}
	row, err := core.DecodeRow(data)
	if err != nil {
		return nil, err
	}
	return r.resolveBlobs(row)
}

// applyResolutions folds resolved conflicts into the merged root.
func (r *Repo) applyResolutions(merged graph.Root, conflicts []RecordConflict) (graph.Root, error) {
	byTable := make(map[string][]RecordConflict)
	for _, c := range conflicts {
		byTable[c.Table] = append(byTable[c.Table], c)
	}

	out := merged.Clone()
	for name, tc := range byTable {
		addr, ok := out[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
		}
		t, err := tbl.ReadTable(r.store, addr)
		if err != nil {
			return nil, err
		}
		ed := tbl.LoadMap(r.store, t.Root).Edit()
		for _, c := range tc {
			if c.Resolution == nil {
				ed.Delete(c.Key)
				continue
			}
			stored, err := r.externalizeBlobs(c.Resolution)
			if err != nil {
				return nil, err
			}
			data, err := core.EncodeRow(stored)
			if err != nil {
				return nil, err
			}
			ed.Put(c.Key, data)
		}
		m, count, err := ed.Flush()
		if err != nil {
			return nil, err
		}
		newAddr, err := tbl.WriteTable(r.store, tbl.Table{
			SchemaHash: t.SchemaHash,
			Root:       m.Root(),
			RowCount:   count,
		})
		if err != nil {
			return nil, err
		}
		out[name] = newAddr
	}
	return out, nil
}
