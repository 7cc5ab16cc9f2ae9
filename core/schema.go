package core

import (
	"errors"
	"fmt"
)

type ColumnType int

const (
	StringType ColumnType = iota
	IntType
	FloatType
	BoolType
	TextType
	DateType
	TimestampType
	JsonType
)

var ErrInvalidSchema = errors.New("invalid schema")

type Column struct {
	Name       string     `json:"name"`
	Type       ColumnType `json:"type"`
	PrimaryKey bool       `json:"primaryKey"`
}

// Schema describes one table version: an ordered list of columns with a
// non-empty primary-key subset.
type Schema struct {
	Columns []Column `json:"columns"`
}

// Validate checks structural requirements before the schema is persisted.
func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrInvalidSchema)
	}

	seen := make(map[string]bool, len(s.Columns))
	hasPK := false
	for _, col := range s.Columns {
		if col.Name == "" {
			return fmt.Errorf("%w: column with empty name", ErrInvalidSchema)
		}
		if seen[col.Name] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidSchema, col.Name)
		}
		seen[col.Name] = true
		if col.PrimaryKey {
			hasPK = true
		}
	}
	if !hasPK {
		return fmt.Errorf("%w: no primary key column", ErrInvalidSchema)
	}
	return nil
}

// PrimaryKey returns the indices of the primary key columns, in schema order.
func (s Schema) PrimaryKey() []int {
	var pk []int
	for i, col := range s.Columns {
		if col.PrimaryKey {
			pk = append(pk, i)
		}
	}
	return pk
}

// ColumnIndex returns the position of the named column, or -1.
func (s Schema) ColumnIndex(name string) int {
	for i, col := range s.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}
