// Package db ties the storage engine together: a repository context
// holding the chunk store, the ref store, and the in-memory working set.
// Every operation takes the repository explicitly; there is no hidden
// process-wide state.
//
// # Opening a repository
//
//	repo, err := db.Init(db.Config{
//	    Store:    cas.NewMemoryStore(),
//	    Refs:     refs.NewMemoryStore(),
//	    Identity: core.Identity{Name: "App", Email: "app@example.com"},
//	})
//
// # Working set flow
//
//	repo.CreateTable("players", schema)
//	repo.Put("players", core.Row{core.Int(1), core.String("Roger")})
//	repo.Add("players")
//	txn, _ := repo.Commit("add players", db.CommitOptions{})
//
// Status, Add, Reset, Commit, Branch, Checkout, Log, Diff and Merge all
// return typed results; nothing round-trips through formatted text.
//
// # Concurrency
//
// One repository value owns its working set; a mutex serializes
// mutation. Two repositories sharing the same stores race on commit at
// the ref level: exactly one compare-and-swap wins and the loser gets
// refs.ErrConflict, after which Refresh rebases onto the new tip and the
// commit can be retried.
//
// The package also carries the ETL surface: CSV import from local,
// s3:// and http(s):// sources, CSV export, and composable loaders that
// create a branch, apply transforms, and commit.
package db
