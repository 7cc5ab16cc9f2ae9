package db

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/lucab/strata/cas"
	"github.com/lucab/strata/graph"
	"github.com/lucab/strata/refs"
)

// TableState classifies what happened to a table relative to the branch
// tip: created, removed, or changed. Whether the change is staged is a
// separate axis, reported by the Staged/Unstaged flags.
type TableState int

const (
	StateClean TableState = iota
	StateNew
	StateRemoved
	StateModified
)

func (s TableState) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StateNew:
		return "new"
	case StateRemoved:
		return "removed"
	case StateModified:
		return "modified"
	default:
		return fmt.Sprintf("TableState(%d)", int(s))
	}
}

// TableStatus is one line of Status output. A new table that was fully
// staged reports StateNew with Staged set; further working edits on top
// set Unstaged as well.
type TableStatus struct {
	Name     string
	State    TableState
	Staged   bool // the staged version differs from the tip
	Unstaged bool // the working version differs from the staged one
}

// Status describes the working set relative to the checked-out branch.
type Status struct {
	Branch string
	Tables []TableStatus
	Clean  bool
}

// Status compares working and staged roots against the branch tip.
func (r *Repo) Status() (Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Status{Branch: r.branch, Clean: true}
	for _, name := range unionNames(r.tipRoot, r.staged, r.working) {
		tip, atTip := r.tipRoot[name]
		staged, isStaged := r.staged[name]
		working, isWorking := r.working[name]

		ts := TableStatus{
			Name:     name,
			Staged:   isStaged != atTip || (isStaged && staged != tip),
			Unstaged: isWorking != isStaged || (isWorking && working != staged),
		}
		switch {
		case !ts.Staged && !ts.Unstaged:
			ts.State = StateClean
		case !atTip:
			ts.State = StateNew
		case !isWorking:
			ts.State = StateRemoved
		default:
			ts.State = StateModified
		}
		if ts.State != StateClean {
			st.Clean = false
		}
		st.Tables = append(st.Tables, ts)
	}
	return st, nil
}

// Add stages the working version of the named tables, including drops.
// With no names, every changed table is staged.
func (r *Repo) Add(names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(names) == 0 {
		names = unionNames(r.staged, r.working)
	}
	for _, name := range names {
		addr, inWorking := r.working[name]
		_, inStaged := r.staged[name]
		if !inWorking && !inStaged {
			if _, atTip := r.tipRoot[name]; !atTip {
				return fmt.Errorf("%w: %s", ErrUnknownTable, name)
			}
		}
		if inWorking {
			r.staged[name] = addr
		} else {
			delete(r.staged, name) // stage the drop
		}
	}
	return nil
}

// Reset unstages tables. With hard set, the working version is also
// discarded back to the staged version. With no names, every table is
// reset.
func (r *Repo) Reset(hard bool, names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(names) == 0 {
		names = unionNames(r.tipRoot, r.staged, r.working)
	}
	for _, name := range names {
		if tip, ok := r.tipRoot[name]; ok {
			r.staged[name] = tip
		} else {
			delete(r.staged, name)
		}
		if hard {
			if staged, ok := r.staged[name]; ok {
				r.working[name] = staged
			} else {
				delete(r.working, name)
			}
		}
	}
	return nil
}

// CommitOptions parameterizes Commit.
type CommitOptions struct {
	AllowEmpty bool
}

// Commit writes the staged root as a new commit and advances the branch
// ref by compare-and-swap. A lost race surfaces as refs.ErrConflict; the
// caller should Refresh and retry. Unstaged working edits survive the
// commit.
func (r *Repo) Commit(message string, opts CommitOptions) (Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.staged.Equal(r.tipRoot) && !opts.AllowEmpty {
		return Transaction{}, ErrNothingStaged
	}

	rootHash, err := graph.WriteRoot(r.store, r.staged)
	if err != nil {
		return Transaction{}, err
	}
	commitHash, commit, err := graph.Create(r.store, graph.CreateOptions{
		Root:       rootHash,
		Parents:    []cas.Hash{r.tip},
		Author:     r.id,
		Message:    message,
		AllowEmpty: opts.AllowEmpty,
	})
	if err != nil {
		return Transaction{}, err
	}

	if err := r.refs.CompareAndSet(r.branch, r.tip, commitHash); err != nil {
		if err == refs.ErrConflict {
			r.log.WithField("branch", r.branch).Warn("commit lost the ref race")
		}
		return Transaction{}, err
	}

	r.tip = commitHash
	r.tipRoot = r.staged.Clone()
	r.log.WithFields(logrus.Fields{
		"branch": r.branch,
		"commit": commitHash,
	}).Info("committed")
	return Transaction{Hash: commitHash, Commit: commit}, nil
}

// Refresh reloads the branch tip after a lost commit race, rebasing the
// staged and working roots onto it: tables the local session did not
// touch follow the new tip, local edits are kept.
func (r *Repo) Refresh() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	newTip, err := r.refs.Get(r.branch)
	if err != nil {
		return err
	}
	if newTip == r.tip {
		return nil
	}
	commit, err := graph.ReadCommit(r.store, newTip)
	if err != nil {
		return err
	}
	newRoot, err := graph.ReadRoot(r.store, commit.Root)
	if err != nil {
		return err
	}

	for _, name := range unionNames(r.tipRoot, newRoot) {
		oldTip, hadOld := r.tipRoot[name]
		newAddr, hasNew := newRoot[name]

		// Carry the incoming version wherever the local session left the
		// table untouched.
		if staged, ok := r.staged[name]; (ok && hadOld && staged == oldTip) || (!ok && !hadOld) {
			if hasNew {
				r.staged[name] = newAddr
			} else {
				delete(r.staged, name)
			}
		}
		if working, ok := r.working[name]; (ok && hadOld && working == oldTip) || (!ok && !hadOld) {
			if hasNew {
				r.working[name] = newAddr
			} else {
				delete(r.working, name)
			}
		}
	}

	r.tip = newTip
	r.tipRoot = newRoot
	return nil
}

// sortedNames returns a root's table names in order.
func sortedNames(root graph.Root) []string {
	names := make([]string, 0, len(root))
	for name := range root {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// unionNames merges table names across roots, sorted and deduplicated.
func unionNames(roots ...graph.Root) []string {
	seen := make(map[string]bool)
	var names []string
	for _, root := range roots {
		for name := range root {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}
