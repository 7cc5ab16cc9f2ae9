package tbl

import (
	"encoding/json"
	"fmt"

	"github.com/lucab/strata/cas"
	"github.com/lucab/strata/core"
)

// Table is one table version: a schema chunk plus a row tree. Its address
// is the hash of the serialized meta chunk, so a schema change alone (row
// tree untouched) still produces a new table address.
type Table struct {
	Schema     core.Schema
	SchemaHash cas.Hash
	Root       cas.Hash
	RowCount   uint64
}

// tableMeta is the persisted form.
type tableMeta struct {
	Schema cas.Hash `json:"schema"`
	Rows   cas.Hash `json:"rows"`
	Count  uint64   `json:"count"`
}

// WriteSchema stores a schema as its own chunk.
func WriteSchema(store cas.Store, s core.Schema) (cas.Hash, error) {
	if err := s.Validate(); err != nil {
		return cas.Hash{}, err
	}
	data, err := json.Marshal(s)
	if err != nil {
		return cas.Hash{}, fmt.Errorf("failed to encode schema: %w", err)
	}
	h, err := store.Put(data)
	if err != nil {
		return cas.Hash{}, fmt.Errorf("failed to store schema: %w", err)
	}
	return h, nil
}

// ReadSchema loads a schema chunk.
func ReadSchema(store cas.Store, h cas.Hash) (core.Schema, error) {
	data, err := store.Get(h)
	if err != nil {
		return core.Schema{}, fmt.Errorf("failed to load schema %s: %w", h, err)
	}
	var s core.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return core.Schema{}, fmt.Errorf("failed to decode schema %s: %w", h, err)
	}
	return s, nil
}

// WriteTable stores the table meta chunk and returns the table address.
func WriteTable(store cas.Store, t Table) (cas.Hash, error) {
	if t.SchemaHash.IsZero() {
		return cas.Hash{}, fmt.Errorf("table has no schema")
	}
	meta := tableMeta{
		Schema: t.SchemaHash,
		Rows:   t.Root,
		Count:  t.RowCount,
	}
	data, err := json.Marshal(&meta)
	if err != nil {
		return cas.Hash{}, fmt.Errorf("failed to encode table meta: %w", err)
	}
	h, err := store.Put(data)
	if err != nil {
		return cas.Hash{}, fmt.Errorf("failed to store table meta: %w", err)
	}
	return h, nil
}

// ReadTable loads a table, including its schema.
func ReadTable(store cas.Store, h cas.Hash) (Table, error) {
	data, err := store.Get(h)
	if err != nil {
		return Table{}, fmt.Errorf("failed to load table %s: %w", h, err)
	}
	var meta tableMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Table{}, fmt.Errorf("failed to decode table %s: %w", h, err)
	}
	schema, err := ReadSchema(store, meta.Schema)
	if err != nil {
		return Table{}, err
	}
	return Table{
		Schema:     schema,
		SchemaHash: meta.Schema,
		Root:       meta.Rows,
		RowCount:   meta.Count,
	}, nil
}

// NewTable creates an empty table with the given schema and returns its
// address.
func NewTable(store cas.Store, s core.Schema) (cas.Hash, error) {
	schemaHash, err := WriteSchema(store, s)
	if err != nil {
		return cas.Hash{}, err
	}
	empty, err := EmptyMap(store)
	if err != nil {
		return cas.Hash{}, err
	}
	return WriteTable(store, Table{
		SchemaHash: schemaHash,
		Root:       empty.Root(),
	})
}

// SchemaChanged reports whether two table versions differ in schema,
// independently of any row-level difference.
func SchemaChanged(a, b Table) bool {
	return a.SchemaHash != b.SchemaHash
}
