package db

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lucab/strata/cas"
	"github.com/lucab/strata/graph"
	"github.com/lucab/strata/refs"
)

// BranchOptions parameterizes Branch.
type BranchOptions struct {
	// StartPoint is a branch name or commit hash; empty means the current
	// tip.
	StartPoint string
	// Force moves an existing branch instead of failing.
	Force bool
}

// Branch creates a branch pointing at a start commit.
func (r *Repo) Branch(name string, opts BranchOptions) error {
	if name == "" {
		return fmt.Errorf("%w: empty branch name", ErrBranchNotFound)
	}
	start, err := r.resolveRev(opts.StartPoint)
	if err != nil {
		return err
	}
	if _, err := graph.ReadCommit(r.store, start); err != nil {
		return err
	}

	if opts.Force {
		return r.refs.Set(name, start)
	}
	if err := r.refs.CompareAndSet(name, cas.Hash{}, start); err != nil {
		if err == refs.ErrConflict {
			return fmt.Errorf("%w: %s", ErrBranchExists, name)
		}
		return err
	}
	r.log.WithFields(logrus.Fields{"branch": name, "at": start}).Debug("created branch")
	return nil
}

// Checkout switches the working set to another branch. Dirty tables that
// are identical between the two tips carry over; a dirty table that
// differs between the tips blocks the checkout with ErrDirtyWorkingSet
// so no local edit is silently discarded.
func (r *Repo) Checkout(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == r.branch {
		return nil
	}
	destTip, err := r.refs.Get(name)
	if err == refs.ErrNotFound {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, name)
	}
	if err != nil {
		return err
	}
	destCommit, err := graph.ReadCommit(r.store, destTip)
	if err != nil {
		return err
	}
	destRoot, err := graph.ReadRoot(r.store, destCommit.Root)
	if err != nil {
		return err
	}

	// Collect local edits and check each against the destination.
	type dirty struct {
		addr    cas.Hash
		present bool
	}
	working := make(map[string]dirty)
	staged := make(map[string]dirty)
	for _, set := range []struct {
		root graph.Root
		out  map[string]dirty
	}{{r.staged, staged}, {r.working, working}} {
		for _, tableName := range unionNames(r.tipRoot, set.root) {
			tip, atTip := r.tipRoot[tableName]
			addr, present := set.root[tableName]
			if atTip == present && (!present || addr == tip) {
				continue // table untouched locally
			}
			set.out[tableName] = dirty{addr: addr, present: present}
		}
	}
	dirtyNames := make(map[string]bool, len(working)+len(staged))
	for tableName := range working {
		dirtyNames[tableName] = true
	}
	for tableName := range staged {
		dirtyNames[tableName] = true
	}
	for tableName := range dirtyNames {
		srcTip, atSrc := r.tipRoot[tableName]
		dstTip, atDst := destRoot[tableName]
		if atSrc != atDst || (atSrc && srcTip != dstTip) {
			return fmt.Errorf("%w: table %q differs between %s and %s",
				ErrDirtyWorkingSet, tableName, r.branch, name)
		}
	}

	r.branch = name
	r.tip = destTip
	r.tipRoot = destRoot
	r.working = destRoot.Clone()
	r.staged = destRoot.Clone()
	for tableName, d := range staged {
		if d.present {
			r.staged[tableName] = d.addr
		} else {
			delete(r.staged, tableName)
		}
	}
	for tableName, d := range working {
		if d.present {
			r.working[tableName] = d.addr
		} else {
			delete(r.working, tableName)
		}
	}

	if err := r.refs.SetHead(name); err != nil {
		return err
	}
	r.log.WithField("branch", name).Info("checked out")
	return nil
}

// DeleteBranch removes a branch ref. The checked-out branch cannot be
// deleted. Unless force is set, a branch whose tip is not reachable from
// any other branch is protected with ErrUnmergedBranch.
func (r *Repo) DeleteBranch(name string, force bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == r.branch {
		return fmt.Errorf("%w: %s", ErrCheckedOut, name)
	}
	tip, err := r.refs.Get(name)
	if err == refs.ErrNotFound {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, name)
	}
	if err != nil {
		return err
	}

	if !force {
		merged, err := r.reachableElsewhere(name, tip)
		if err != nil {
			return err
		}
		if !merged {
			return fmt.Errorf("%w: %s", ErrUnmergedBranch, name)
		}
	}
	return r.refs.CompareAndSet(name, tip, cas.Hash{})
}

// reachableElsewhere reports whether tip is an ancestor of (or equal to)
// some other branch's tip.
func (r *Repo) reachableElsewhere(name string, tip cas.Hash) (bool, error) {
	list, err := r.refs.List()
	if err != nil {
		return false, err
	}
	for _, ref := range list {
		if ref.Name == name {
			continue
		}
		ok, err := graph.IsAncestor(r.store, tip, ref.Hash)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// RenameBranch moves a ref to a new name atomically enough for a single
// ref store: create the new name first, then drop the old one.
func (r *Repo) RenameBranch(oldName, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tip, err := r.refs.Get(oldName)
	if err == refs.ErrNotFound {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, oldName)
	}
	if err != nil {
		return err
	}
	if err := r.refs.CompareAndSet(newName, cas.Hash{}, tip); err != nil {
		if err == refs.ErrConflict {
			return fmt.Errorf("%w: %s", ErrBranchExists, newName)
		}
		return err
	}
	if err := r.refs.Delete(oldName); err != nil {
		return err
	}
	if oldName == r.branch {
		r.branch = newName
		if err := r.refs.SetHead(newName); err != nil {
			return err
		}
	}
	return nil
}

// BranchInfo is one entry of Branches.
type BranchInfo struct {
	Name    string
	Hash    cas.Hash
	Current bool
}

// Branches lists all branches, sorted by name.
func (r *Repo) Branches() ([]BranchInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list, err := r.refs.List()
	if err != nil {
		return nil, err
	}
	infos := make([]BranchInfo, 0, len(list))
	for _, ref := range list {
		infos = append(infos, BranchInfo{
			Name:    ref.Name,
			Hash:    ref.Hash,
			Current: ref.Name == r.branch,
		})
	}
	return infos, nil
}
