// Package tbl implements the table format: a table's rows stored as a
// search tree of content-addressed chunks, keyed by primary key.
//
// Tree shape is a pure function of the row set. Chunk boundaries are
// decided by hashing each entry, so two versions of a table that share
// most rows share most chunks, no matter in which order the edits
// happened. That is what makes structural diff cheap: identical subtrees
// have identical hashes and are skipped without loading them.
//
// # Building and editing
//
//	m, _ := tbl.EmptyMap(store)
//	ed := m.Edit()
//	ed.Put(key, encodedRow)
//	m, count, _ := ed.Flush()
//
// # Diffing
//
//	iter := tbl.Diff(store, oldRoot, newRoot)
//	for {
//	    change, ok, err := iter.Next()
//	    if err != nil || !ok {
//	        break
//	    }
//	    // change.Kind is Added, Removed or Modified
//	}
//
// Oversized values (long text, json documents) are stored out of line as
// chunked blobs, split at content-defined boundaries.
package tbl
