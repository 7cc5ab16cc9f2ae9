package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lucab/strata/cas"
	"github.com/lucab/strata/core"
)

var (
	// ErrEmptyCommit is returned when the new root equals every parent's
	// root and allow-empty was not requested.
	ErrEmptyCommit = errors.New("nothing to commit")
)

// Commit is an immutable node of the history DAG. Parents is empty for
// the initial commit and has two or more entries for merges.
type Commit struct {
	Root    cas.Hash   `json:"root"`
	Parents []cas.Hash `json:"parents,omitempty"`
	Author  string     `json:"author"`
	Email   string     `json:"email,omitempty"`
	When    time.Time  `json:"when"`
	Message string     `json:"message"`
}

// WriteCommit serializes the commit into a chunk; the chunk hash is the
// commit's identity.
func WriteCommit(store cas.Store, c Commit) (cas.Hash, error) {
	if c.Root.IsZero() {
		return cas.Hash{}, fmt.Errorf("commit without a root")
	}
	data, err := json.Marshal(&c)
	if err != nil {
		return cas.Hash{}, fmt.Errorf("failed to encode commit: %w", err)
	}
	h, err := store.Put(data)
	if err != nil {
		return cas.Hash{}, fmt.Errorf("failed to store commit: %w", err)
	}
	return h, nil
}

// ReadCommit loads a commit by hash.
func ReadCommit(store cas.Store, h cas.Hash) (Commit, error) {
	data, err := store.Get(h)
	if err != nil {
		return Commit{}, fmt.Errorf("failed to load commit %s: %w", h, err)
	}
	var c Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return Commit{}, fmt.Errorf("failed to decode commit %s: %w", h, err)
	}
	return c, nil
}

// CreateOptions parameterizes Create.
type CreateOptions struct {
	Root       cas.Hash
	Parents    []cas.Hash
	Author     core.Identity
	Message    string
	When       time.Time // defaults to now
	AllowEmpty bool
}

// Create validates and writes a new commit. It fails with ErrEmptyCommit
// when the root is unchanged from every parent's root, unless AllowEmpty
// is set. Validation happens before any durable write.
func Create(store cas.Store, opts CreateOptions) (cas.Hash, Commit, error) {
	if opts.Root.IsZero() {
		return cas.Hash{}, Commit{}, fmt.Errorf("commit without a root")
	}

	if !opts.AllowEmpty && len(opts.Parents) > 0 {
		unchanged := true
		for _, p := range opts.Parents {
			parent, err := ReadCommit(store, p)
			if err != nil {
				return cas.Hash{}, Commit{}, err
			}
			if parent.Root != opts.Root {
				unchanged = false
				break
			}
		}
		if unchanged {
			return cas.Hash{}, Commit{}, ErrEmptyCommit
		}
	}

	when := opts.When
	if when.IsZero() {
		when = time.Now()
	}
	c := Commit{
		Root:    opts.Root,
		Parents: opts.Parents,
		Author:  opts.Author.Name,
		Email:   opts.Author.Email,
		When:    when.UTC(),
		Message: opts.Message,
	}
	h, err := WriteCommit(store, c)
	if err != nil {
		return cas.Hash{}, Commit{}, err
	}
	return h, c, nil
}
