package tbl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lucab/strata/cas"
	"github.com/lucab/strata/core"
)

func testSchema() core.Schema {
	return core.Schema{
		Columns: []core.Column{
			{Name: "id", Type: core.IntType, PrimaryKey: true},
			{Name: "name", Type: core.StringType},
		},
	}
}

func TestTableRoundTrip(t *testing.T) {
	store := cas.NewMemoryStore()

	addr, err := NewTable(store, testSchema())
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}

	table, err := ReadTable(store, addr)
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if len(table.Schema.Columns) != 2 {
		t.Errorf("Expected 2 columns, got %d", len(table.Schema.Columns))
	}
	if table.RowCount != 0 {
		t.Errorf("Expected empty table, got %d rows", table.RowCount)
	}
}

func TestNewTableRejectsInvalidSchema(t *testing.T) {
	store := cas.NewMemoryStore()

	_, err := NewTable(store, core.Schema{
		Columns: []core.Column{{Name: "x", Type: core.IntType}},
	})
	if err == nil {
		t.Fatal("Expected error for schema without primary key")
	}
}

func TestSchemaChangeDetectedWithoutRowChange(t *testing.T) {
	store := cas.NewMemoryStore()

	addrA, err := NewTable(store, testSchema())
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	a, _ := ReadTable(store, addrA)

	// Same rows (none), one extra column.
	wider := testSchema()
	wider.Columns = append(wider.Columns, core.Column{Name: "age", Type: core.IntType})
	addrB, err := NewTable(store, wider)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	b, _ := ReadTable(store, addrB)

	if a.Root != b.Root {
		t.Fatal("Expected identical row trees")
	}
	if !SchemaChanged(a, b) {
		t.Error("Expected schema change to be detected independently of rows")
	}
	if addrA == addrB {
		t.Error("Expected different table addresses after schema change")
	}
}

func TestBlobRoundTrip(t *testing.T) {
	store := cas.NewMemoryStore()

	content := strings.Repeat("a long json document that would bloat row chunks ", 8192)

	h, size, err := WriteBlob(store, strings.NewReader(content))
	if err != nil {
		t.Fatalf("WriteBlob failed: %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), size)
	}

	got, err := ReadBlob(store, h)
	if err != nil {
		t.Fatalf("ReadBlob failed: %v", err)
	}
	if !bytes.Equal(got, []byte(content)) {
		t.Error("Expected blob to round trip unchanged")
	}

	// Identical content stores to the same index chunk.
	h2, _, err := WriteBlob(store, strings.NewReader(content))
	if err != nil {
		t.Fatalf("WriteBlob failed: %v", err)
	}
	if h != h2 {
		t.Errorf("Expected identical blob hashes, got %s and %s", h, h2)
	}
}
