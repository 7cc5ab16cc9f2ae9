// Package graph implements the commit graph: an append-only DAG of
// immutable commits stored as chunks.
//
// A commit references a root (the table-name to table-address mapping of
// one full database snapshot), zero or more parents, and author metadata.
// Commit identity is the hash of its serialized content, which makes
// history tamper-evident: changing anything reachable from a commit
// changes its hash.
//
//	hash, commit, err := graph.Create(store, graph.CreateOptions{
//	    Root:    root,
//	    Parents: []cas.Hash{tip},
//	    Author:  core.Identity{Name: "App", Email: "app@example.com"},
//	    Message: "Load season results",
//	})
//
// Log walks history in reverse-chronological topological order; MergeBase
// finds the lowest common ancestor of two commits.
package graph
