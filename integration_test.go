package strata

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/lucab/strata/core"
	"github.com/lucab/strata/db"
	"github.com/lucab/strata/refs"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func playersSchema() core.Schema {
	return core.Schema{
		Columns: []core.Column{
			{Name: "name", Type: core.StringType, PrimaryKey: true},
			{Name: "titles", Type: core.IntType},
		},
	}
}

func TestBranchedEditing(t *testing.T) {
	inst, err := OpenMemory(core.Identity{Name: "Tester"}, testLogger())
	if err != nil {
		t.Fatalf("OpenMemory failed: %v", err)
	}
	defer inst.Close()
	repo := inst.Repo

	if err := repo.CreateTable("players", playersSchema()); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	repo.Put("players", core.Row{core.String("Roger"), core.Int(20)})
	repo.Add("players")
	if _, err := repo.Commit("add roger", db.CommitOptions{}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if err := repo.Branch("exp", db.BranchOptions{}); err != nil {
		t.Fatalf("Branch failed: %v", err)
	}
	if err := repo.Checkout("exp"); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	repo.Put("players", core.Row{core.String("Rafa"), core.Int(19)})
	repo.Add("players")
	if _, err := repo.Commit("add rafa", db.CommitOptions{}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	rows, _ := repo.Rows("players", "")
	if len(rows) != 2 {
		t.Errorf("Expected 2 rows on exp, got %d", len(rows))
	}

	if err := repo.Checkout(db.DefaultBranch); err != nil {
		t.Fatalf("Checkout failed: %v", err)
	}
	rows, _ = repo.Rows("players", "")
	if len(rows) != 1 || rows[0][0].Str != "Roger" {
		t.Errorf("Expected only Roger on %s, got %v", db.DefaultBranch, rows)
	}

	// Merging the experiment back fast-forwards.
	res, err := repo.Merge("exp", db.DefaultMergeOptions())
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if !res.FastForward {
		t.Error("Expected fast-forward merge")
	}
	rows, _ = repo.Rows("players", "")
	if len(rows) != 2 {
		t.Errorf("Expected both rows after merge, got %d", len(rows))
	}
}

func TestEmptyCommitLeavesRefUnmoved(t *testing.T) {
	inst, _ := OpenMemory(core.Identity{Name: "Tester"}, testLogger())
	defer inst.Close()
	repo := inst.Repo

	before := repo.Tip()
	if _, err := repo.Commit("no changes", db.CommitOptions{}); err != db.ErrNothingStaged {
		t.Errorf("Expected ErrNothingStaged, got %v", err)
	}
	if repo.Tip() != before {
		t.Error("Expected branch ref unmoved after failed commit")
	}
}

func TestConcurrentWritersOneWins(t *testing.T) {
	inst, _ := OpenMemory(core.Identity{Name: "A"}, testLogger())
	defer inst.Close()

	// A second repository on the same stores simulates a second process.
	other, err := db.Init(db.Config{
		Store:    inst.Repo.Store(),
		Refs:     inst.Repo.Refs(),
		Identity: core.Identity{Name: "B"},
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	a, b := inst.Repo, other
	a.CreateTable("players", playersSchema())
	a.Add("players")
	b.CreateTable("events", core.Schema{Columns: []core.Column{
		{Name: "id", Type: core.IntType, PrimaryKey: true},
	}})
	b.Add("events")

	if _, err := a.Commit("players", db.CommitOptions{}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := b.Commit("events", db.CommitOptions{}); err != refs.ErrConflict {
		t.Fatalf("Expected refs.ErrConflict for the losing writer, got %v", err)
	}
	if err := b.Refresh(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := b.Commit("events", db.CommitOptions{}); err != nil {
		t.Fatalf("Retry commit failed: %v", err)
	}

	infos, _ := b.Tables()
	if len(infos) != 2 {
		t.Errorf("Expected both writers' tables, got %v", infos)
	}
}

func TestDurableReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "repo")
	id := core.Identity{Name: "Tester"}

	inst, err := Open(dir, id, testLogger())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	repo := inst.Repo
	repo.CreateTable("players", playersSchema())
	repo.Put("players", core.Row{core.String("Roger"), core.Int(20)})
	repo.Add("players")
	txn, err := repo.Commit("add roger", db.CommitOptions{})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if err := inst.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	inst, err = Open(dir, id, testLogger())
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer inst.Close()

	if inst.Repo.Tip() != txn.Hash {
		t.Errorf("Expected tip %s after reopen, got %s", txn.Hash, inst.Repo.Tip())
	}
	rows, err := inst.Repo.Rows("players", "")
	if err != nil {
		t.Fatalf("Rows failed: %v", err)
	}
	if len(rows) != 1 || rows[0][1].Num != 20 {
		t.Errorf("Expected Roger with 20 titles after reopen, got %v", rows)
	}
}
