// Package strata is a content-addressed, branchable storage engine for
// tabular data. Tables live in deterministic search trees of chunks, so
// identical table contents always produce identical storage regardless
// of edit history, and versions share structure. Commits form a DAG
// with branching, three-way merge, structural diff and git-like staging
// on top.
//
//	inst, err := strata.OpenMemory(core.Identity{Name: "App"}, nil)
//	if err != nil { ... }
//	defer inst.Close()
//
//	repo := inst.Repo
//	repo.CreateTable("players", schema)
//	repo.Put("players", core.Row{core.String("Roger"), core.Int(20)})
//	repo.Add("players")
//	repo.Commit("add players", db.CommitOptions{})
//
// Open does the same against a Badger-backed directory, surviving
// restarts. The subpackages are usable on their own: cas (chunk
// storage), tbl (trees, diff, blobs), graph (commits, log, merge base),
// refs (branch heads), db (the repository engine and ETL).
package strata
