package tbl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	chunker "github.com/ipfs/boxo/chunker"

	"github.com/lucab/strata/cas"
)

// InlineValueThreshold is the size above which text/json values are stored
// out of line as blobs instead of inside the row.
const InlineValueThreshold = 1024

// blobNode indexes the content-defined chunks of one blob.
type blobNode struct {
	Chunks []cas.Hash `json:"chunks"`
	Size   int64      `json:"size"`
}

// WriteBlob splits the reader's content at content-defined boundaries,
// stores each piece as a chunk, and returns the hash of the blob index.
func WriteBlob(store cas.Store, r io.Reader) (cas.Hash, int64, error) {
	bz := chunker.NewBuzhash(r)

	var idx blobNode
	for {
		piece, err := bz.NextBytes()
		if err == io.EOF {
			break
		}
		if err != nil {
			return cas.Hash{}, 0, fmt.Errorf("failed to chunk blob: %w", err)
		}
		h, err := store.Put(piece)
		if err != nil {
			return cas.Hash{}, 0, fmt.Errorf("failed to store blob chunk: %w", err)
		}
		idx.Chunks = append(idx.Chunks, h)
		idx.Size += int64(len(piece))
	}

	data, err := json.Marshal(&idx)
	if err != nil {
		return cas.Hash{}, 0, fmt.Errorf("failed to encode blob index: %w", err)
	}
	h, err := store.Put(data)
	if err != nil {
		return cas.Hash{}, 0, fmt.Errorf("failed to store blob index: %w", err)
	}
	return h, idx.Size, nil
}

// ReadBlob reassembles a blob written by WriteBlob.
func ReadBlob(store cas.Store, h cas.Hash) ([]byte, error) {
	data, err := store.Get(h)
	if err != nil {
		return nil, fmt.Errorf("failed to load blob index %s: %w", h, err)
	}
	var idx blobNode
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to decode blob index %s: %w", h, err)
	}

	var buf bytes.Buffer
	buf.Grow(int(idx.Size))
	for _, ch := range idx.Chunks {
		piece, err := store.Get(ch)
		if err != nil {
			return nil, fmt.Errorf("failed to load blob chunk %s: %w", ch, err)
		}
		buf.Write(piece)
	}
	return buf.Bytes(), nil
}
