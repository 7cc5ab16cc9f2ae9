// Package refs manages branch refs: the only mutable named pointers into
// otherwise-immutable history.
//
// Every ref move goes through CompareAndSet. Two writers racing to move
// the same ref cannot both win; the loser observes ErrConflict, re-reads
// the tip, and may retry. A memory implementation backs tests, a Badger
// implementation shares the chunk store's database under its own key
// prefix.
package refs
