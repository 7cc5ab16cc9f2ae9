// Package cas provides the content-addressed chunk store for strata.
//
// A chunk is an immutable byte sequence whose identity is the hash of its
// content. Stores are idempotent: putting the same bytes twice yields the
// same hash and does not duplicate storage.
//
// # Memory Store
//
// For testing or ephemeral repositories:
//
//	store := cas.NewMemoryStore()
//
// # Badger Store
//
// For durable storage:
//
//	store, err := cas.OpenBadger(cas.BadgerOptions{Dir: "/path/to/data"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Large chunks are transparently xz-compressed inside the Badger store.
package cas
