// Package core provides core types used throughout strata.
//
// The package defines fundamental types like Identity, Schema, Column,
// Row, and associated type constants.
//
// # Identity
//
// Identity identifies the author of commits:
//
//	identity := core.Identity{
//	    Name:  "John Doe",
//	    Email: "john@example.com",
//	}
//
// # Column Types
//
// Supported column types:
//   - StringType: Short strings (VARCHAR equivalent)
//   - TextType: Long text (TEXT equivalent)
//   - IntType: Integers
//   - FloatType: Floating point numbers
//   - BoolType: Boolean values
//   - TimestampType: Date/time values
//   - JsonType: JSON documents
//
// # Schema Definition
//
//	schema := core.Schema{
//	    Columns: []core.Column{
//	        {Name: "id", Type: core.IntType, PrimaryKey: true},
//	        {Name: "name", Type: core.StringType},
//	        {Name: "active", Type: core.BoolType},
//	    },
//	}
//
// Rows are ordered slices of values aligned with the schema columns.
// Primary key values are encoded into order-preserving byte keys so
// that table trees stay sorted by primary key.
package core
