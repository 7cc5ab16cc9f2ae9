package core

import (
	"encoding/json"
	"fmt"
)

// Row is one table row, values aligned with the schema's columns.
type Row []Value

// Validate checks the row against the schema: arity, kinds, and non-null
// primary key values.
func (s Schema) ValidateRow(r Row) error {
	if len(r) != len(s.Columns) {
		return fmt.Errorf("%w: row has %d values, schema has %d columns",
			ErrInvalidSchema, len(r), len(s.Columns))
	}
	for i, v := range r {
		col := s.Columns[i]
		if v.Kind != col.Type {
			return fmt.Errorf("%w: column %q expects type %d, got %d",
				ErrInvalidSchema, col.Name, col.Type, v.Kind)
		}
		if col.PrimaryKey && v.Null {
			return fmt.Errorf("%w: null primary key value in column %q",
				ErrInvalidSchema, col.Name)
		}
	}
	return nil
}

// KeyOf encodes the row's primary key values into an order-preserving byte
// key. Rows within a table version sort by this key.
func (s Schema) KeyOf(r Row) []byte {
	var key []byte
	for _, i := range s.PrimaryKey() {
		key = appendKeyBytes(key, r[i])
	}
	return key
}

// KeyOfPK encodes standalone primary key values (in primary-key column
// order) into the same byte key KeyOf would produce for a full row.
func (s Schema) KeyOfPK(values []Value) ([]byte, error) {
	pk := s.PrimaryKey()
	if len(values) != len(pk) {
		return nil, fmt.Errorf("%w: %d primary key values, schema has %d key columns",
			ErrInvalidSchema, len(values), len(pk))
	}
	var key []byte
	for i, v := range values {
		if v.Null {
			return nil, fmt.Errorf("%w: null primary key value", ErrInvalidSchema)
		}
		if v.Kind != s.Columns[pk[i]].Type {
			return nil, fmt.Errorf("%w: primary key column %q expects type %d, got %d",
				ErrInvalidSchema, s.Columns[pk[i]].Name, s.Columns[pk[i]].Type, v.Kind)
		}
		key = appendKeyBytes(key, v)
	}
	return key, nil
}

// EncodeRow serializes a row for chunk storage. The encoding is
// deterministic: identical rows always produce identical bytes.
func EncodeRow(r Row) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRow is the inverse of EncodeRow.
func DecodeRow(data []byte) (Row, error) {
	var r Row
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode row: %w", err)
	}
	return r, nil
}
