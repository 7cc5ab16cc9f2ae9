package db

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lucab/strata/cas"
	"github.com/lucab/strata/core"
	"github.com/lucab/strata/graph"
	"github.com/lucab/strata/refs"
	"github.com/lucab/strata/tbl"
)

// DefaultBranch is the branch created by Init.
const DefaultBranch = "master"

var (
	ErrTableExists     = errors.New("table already exists")
	ErrUnknownTable    = errors.New("unknown table")
	ErrNothingStaged   = errors.New("nothing staged to commit")
	ErrBranchExists    = errors.New("branch already exists")
	ErrBranchNotFound  = errors.New("branch not found")
	ErrCheckedOut      = errors.New("branch is currently checked out")
	ErrUnmergedBranch  = errors.New("branch is not fully merged")
	ErrDirtyWorkingSet = errors.New("uncommitted changes would be lost")
	ErrRowNotFound     = errors.New("row not found")
)

// Config assembles a repository from its stores.
type Config struct {
	Store    cas.Store
	Refs     refs.Store
	Identity core.Identity
	Logger   *logrus.Logger
}

// Repo is the repository context: the open chunk store, the ref store,
// and the working set of the checked-out branch. A Repo is owned by one
// writer; its mutex serializes mutation, while reads of immutable
// structures (chunks, commits) need no coordination.
type Repo struct {
	mu    sync.RWMutex
	store cas.Store
	refs  refs.Store
	log   *logrus.Logger
	id    core.Identity

	branch  string
	tip     cas.Hash   // commit the working set is based on
	tipRoot graph.Root // that commit's root
	working graph.Root
	staged  graph.Root

	pending map[string]*pendingMerge
}

// Transaction describes a committed change.
type Transaction struct {
	Hash   cas.Hash
	Commit graph.Commit
}

// Init opens the repository, creating the initial commit and the default
// branch when the ref store is empty.
func Init(cfg Config) (*Repo, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	r := &Repo{
		store:   cfg.Store,
		refs:    cfg.Refs,
		log:     cfg.Logger,
		id:      cfg.Identity,
		pending: make(map[string]*pendingMerge),
	}

	head, err := cfg.Refs.Head()
	if err == refs.ErrNotFound {
		head = DefaultBranch
		if err := r.bootstrap(head); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	if err := r.loadWorkingSet(head); err != nil {
		return nil, err
	}
	return r, nil
}

// bootstrap writes the genesis commit and points the default branch and
// head at it.
func (r *Repo) bootstrap(branch string) error {
	rootHash, err := graph.WriteRoot(r.store, graph.Root{})
	if err != nil {
		return err
	}
	commitHash, _, err := graph.Create(r.store, graph.CreateOptions{
		Root:    rootHash,
		Author:  r.id,
		Message: "Initialize data repository",
	})
	if err != nil {
		return err
	}
	if err := r.refs.CompareAndSet(branch, cas.Hash{}, commitHash); err != nil {
		return fmt.Errorf("failed to create %s: %w", branch, err)
	}
	if err := r.refs.SetHead(branch); err != nil {
		return err
	}
	r.log.WithField("branch", branch).Info("initialized repository")
	return nil
}

// loadWorkingSet points the working set at the tip of branch.
func (r *Repo) loadWorkingSet(branch string) error {
	tip, err := r.refs.Get(branch)
	if err == refs.ErrNotFound {
		return fmt.Errorf("%w: %s", ErrBranchNotFound, branch)
	}
	if err != nil {
		return err
	}
	commit, err := graph.ReadCommit(r.store, tip)
	if err != nil {
		return err
	}
	root, err := graph.ReadRoot(r.store, commit.Root)
	if err != nil {
		return err
	}

	r.branch = branch
	r.tip = tip
	r.tipRoot = root
	r.working = root.Clone()
	r.staged = root.Clone()
	return nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.branch
}

// Tip returns the commit hash the working set is based on.
func (r *Repo) Tip() cas.Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tip
}

// Store exposes the chunk store, e.g. for a transport layer that syncs
// chunks by hash.
func (r *Repo) Store() cas.Store {
	return r.store
}

// Refs exposes the ref store so a second repository can share it.
func (r *Repo) Refs() refs.Store {
	return r.refs
}

// resolveRev turns a branch name or hash text into a commit hash.
func (r *Repo) resolveRev(rev string) (cas.Hash, error) {
	if rev == "" {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.tip, nil
	}
	if h, err := r.refs.Get(rev); err == nil {
		return h, nil
	} else if err != refs.ErrNotFound {
		return cas.Hash{}, err
	}
	h, err := cas.Parse(rev)
	if err != nil {
		return cas.Hash{}, fmt.Errorf("%w: %s", ErrBranchNotFound, rev)
	}
	return h, nil
}

// CreateTable adds an empty table to the working root.
func (r *Repo) CreateTable(name string, schema core.Schema) error {
	if name == "" || strings.ContainsAny(name, "/ ") {
		return fmt.Errorf("%w: invalid table name %q", core.ErrInvalidSchema, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.working[name]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	addr, err := tbl.NewTable(r.store, schema)
	if err != nil {
		return err
	}
	r.working[name] = addr
	r.log.WithField("table", name).Debug("created table")
	return nil
}

// DropTable removes a table from the working root. The drop becomes
// permanent only once staged and committed.
func (r *Repo) DropTable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.working[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	delete(r.working, name)
	return nil
}

// workingTable loads a table out of the working root. Callers hold r.mu.
func (r *Repo) workingTable(name string) (tbl.Table, error) {
	addr, ok := r.working[name]
	if !ok {
		return tbl.Table{}, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return tbl.ReadTable(r.store, addr)
}

// Schema returns the working-set schema of a table.
func (r *Repo) Schema(name string) (core.Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, err := r.workingTable(name)
	if err != nil {
		return core.Schema{}, err
	}
	return t.Schema, nil
}

// TableInfo describes one table in the working root.
type TableInfo struct {
	Name string
	Hash cas.Hash
	Rows uint64
}

// Tables lists the working root's tables with address and row count.
func (r *Repo) Tables() ([]TableInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var infos []TableInfo
	for _, name := range sortedNames(r.working) {
		t, err := tbl.ReadTable(r.store, r.working[name])
		if err != nil {
			return nil, err
		}
		infos = append(infos, TableInfo{Name: name, Hash: r.working[name], Rows: t.RowCount})
	}
	return infos, nil
}

// Put upserts one row.
func (r *Repo) Put(table string, row core.Row) error {
	return r.PutRows(table, []core.Row{row})
}

// PutRows upserts a batch of rows in one tree edit.
func (r *Repo) PutRows(table string, rows []core.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.workingTable(table)
	if err != nil {
		return err
	}

	ed := tbl.LoadMap(r.store, t.Root).Edit()
	for _, row := range rows {
		if err := t.Schema.ValidateRow(row); err != nil {
			return err
		}
		stored, err := r.externalizeBlobs(row)
		if err != nil {
			return err
		}
		data, err := core.EncodeRow(stored)
		if err != nil {
			return err
		}
		ed.Put(t.Schema.KeyOf(stored), data)
	}
	return r.flushTable(table, t, ed)
}

// DeleteRow removes the row with the given primary key values. Deleting
// an absent row returns ErrRowNotFound.
func (r *Repo) DeleteRow(table string, pk []core.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.workingTable(table)
	if err != nil {
		return err
	}
	key, err := t.Schema.KeyOfPK(pk)
	if err != nil {
		return err
	}
	m := tbl.LoadMap(r.store, t.Root)
	if _, ok, err := m.Get(key); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrRowNotFound, table)
	}

	ed := m.Edit()
	ed.Delete(key)
	return r.flushTable(table, t, ed)
}

// flushTable commits a tree edit into the working root. Callers hold r.mu.
func (r *Repo) flushTable(name string, t tbl.Table, ed *tbl.Editor) error {
	m, count, err := ed.Flush()
	if err != nil {
		return err
	}
	addr, err := tbl.WriteTable(r.store, tbl.Table{
		SchemaHash: t.SchemaHash,
		Root:       m.Root(),
		RowCount:   count,
	})
	if err != nil {
		return err
	}
	r.working[name] = addr
	return nil
}

// GetRow fetches one row by primary key values.
func (r *Repo) GetRow(table string, pk []core.Value) (core.Row, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, err := r.workingTable(table)
	if err != nil {
		return nil, false, err
	}
	key, err := t.Schema.KeyOfPK(pk)
	if err != nil {
		return nil, false, err
	}
	data, ok, err := tbl.LoadMap(r.store, t.Root).Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	row, err := core.DecodeRow(data)
	if err != nil {
		return nil, false, err
	}
	row, err = r.resolveBlobs(row)
	if err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// Rows returns every row of a table in primary-key order, from the given
// revision ("" means the working set).
func (r *Repo) Rows(table, rev string) ([]core.Row, error) {
	var t tbl.Table
	var err error
	if rev == "" {
		r.mu.RLock()
		t, err = r.workingTable(table)
		r.mu.RUnlock()
	} else {
		t, err = r.tableAt(rev, table)
	}
	if err != nil {
		return nil, err
	}

	it, err := tbl.LoadMap(r.store, t.Root).Iter()
	if err != nil {
		return nil, err
	}
	var rows []core.Row
	for it.Valid() {
		row, err := core.DecodeRow(it.Value())
		if err != nil {
			return nil, err
		}
		row, err = r.resolveBlobs(row)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
		if err := it.Next(); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// tableAt loads a table from a committed revision.
func (r *Repo) tableAt(rev, table string) (tbl.Table, error) {
	root, err := r.rootAt(rev)
	if err != nil {
		return tbl.Table{}, err
	}
	addr, ok := root[table]
	if !ok {
		return tbl.Table{}, fmt.Errorf("%w: %s at %s", ErrUnknownTable, table, rev)
	}
	return tbl.ReadTable(r.store, addr)
}

// rootAt resolves a revision and loads its root.
func (r *Repo) rootAt(rev string) (graph.Root, error) {
	h, err := r.resolveRev(rev)
	if err != nil {
		return nil, err
	}
	commit, err := graph.ReadCommit(r.store, h)
	if err != nil {
		return nil, err
	}
	return graph.ReadRoot(r.store, commit.Root)
}

// externalizeBlobs moves oversized text payloads out of the row into
// content-defined blob chunks.
func (r *Repo) externalizeBlobs(row core.Row) (core.Row, error) {
	out := make(core.Row, len(row))
	copy(out, row)
	for i, v := range out {
		if v.Null || v.Blob != "" {
			continue
		}
		if v.Kind != core.TextType && v.Kind != core.JsonType {
			continue
		}
		if len(v.Str) <= tbl.InlineValueThreshold {
			continue
		}
		h, _, err := tbl.WriteBlob(r.store, strings.NewReader(v.Str))
		if err != nil {
			return nil, err
		}
		v.Str = ""
		v.Blob = h.String()
		out[i] = v
	}
	return out, nil
}

// resolveBlobs is the inverse of externalizeBlobs.
func (r *Repo) resolveBlobs(row core.Row) (core.Row, error) {
	for i, v := range row {
		if v.Blob == "" {
			continue
		}
		h, err := cas.Parse(v.Blob)
		if err != nil {
			return nil, err
		}
		data, err := tbl.ReadBlob(r.store, h)
		if err != nil {
			return nil, err
		}
		v.Str = string(data)
		v.Blob = ""
		row[i] = v
	}
	return row, nil
}
