package strata

import (
	"github.com/sirupsen/logrus"

	"github.com/lucab/strata/cas"
	"github.com/lucab/strata/core"
	"github.com/lucab/strata/db"
	"github.com/lucab/strata/refs"
)

// Instance bundles an open repository with the stores behind it.
type Instance struct {
	Repo  *db.Repo
	store cas.Store
}

// OpenMemory starts an ephemeral repository. Everything lives in process
// memory and is gone on exit; intended for tests and experiments.
func OpenMemory(identity core.Identity, log *logrus.Logger) (*Instance, error) {
	store := cas.NewMemoryStore()
	repo, err := db.Init(db.Config{
		Store:    store,
		Refs:     refs.NewMemoryStore(),
		Identity: identity,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	return &Instance{Repo: repo, store: store}, nil
}

// Open starts a durable repository at dir. Chunks and refs share one
// Badger instance under separate key prefixes.
func Open(dir string, identity core.Identity, log *logrus.Logger) (*Instance, error) {
	store, err := cas.OpenBadger(cas.BadgerOptions{
		Dir:        dir,
		SyncWrites: true,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	repo, err := db.Init(db.Config{
		Store:    store,
		Refs:     refs.NewBadgerStore(store.DB()),
		Identity: identity,
		Logger:   log,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return &Instance{Repo: repo, store: store}, nil
}

// Close releases the underlying stores.
func (i *Instance) Close() error {
	return i.store.Close()
}
