package db

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/lucab/strata/core"
)

const importBatchSize = 1000

// ImportOptions parameterizes ImportCSV.
type ImportOptions struct {
	// Branch, when set, receives the import on its own branch (created at
	// the current tip if missing) instead of the checked-out one.
	Branch string
	// Message, when set, commits the import with this message. Empty
	// leaves the rows staged.
	Message string
	// PrimaryKey names the key columns when the table does not exist yet.
	PrimaryKey []string
	// Types maps column name to type for table creation; unlisted columns
	// default to strings.
	Types map[string]core.ColumnType
	// Transform, when set, rewrites or drops (by returning nil) each row
	// before it is stored.
	Transform func(core.Row) (core.Row, error)
	// S3 configures s3:// sources.
	S3 *S3Config
}

// ImportResult reports what an import did.
type ImportResult struct {
	Table       string
	Rows        int
	Skipped     int
	Transaction Transaction // zero unless a commit was requested
}

// ImportCSV reads CSV from a local path, file://, http(s)://, or s3://
// source into a table. The header row names the columns. A missing table
// is created from the header and opts.PrimaryKey; an existing table's
// schema must match the header. Rows are staged, and committed when
// opts.Message is set.
func (r *Repo) ImportCSV(ctx context.Context, table, source string, opts ImportOptions) (ImportResult, error) {
	if opts.Branch != "" {
		if err := r.ensureBranch(opts.Branch); err != nil {
			return ImportResult{}, err
		}
		if err := r.Checkout(opts.Branch); err != nil {
			return ImportResult{}, err
		}
	}

	rc, err := openSource(ctx, source, opts.S3)
	if err != nil {
		return ImportResult{}, err
	}
	defer rc.Close()

	res, err := r.importCSVReader(ctx, table, rc, opts)
	if err != nil {
		return ImportResult{}, err
	}

	if err := r.Add(table); err != nil {
		return ImportResult{}, err
	}
	if opts.Message != "" {
		txn, err := r.Commit(opts.Message, CommitOptions{})
		if err != nil && err != ErrNothingStaged {
			return ImportResult{}, err
		}
		res.Transaction = txn
	}
	r.log.WithFields(logrus.Fields{
		"table": table, "rows": res.Rows, "source": source,
	}).Info("imported")
	return res, nil
}

// ensureBranch creates a branch at the current tip if it does not exist.
func (r *Repo) ensureBranch(name string) error {
	err := r.Branch(name, BranchOptions{})
	if err != nil && !errors.Is(err, ErrBranchExists) {
		return err
	}
	return nil
}

func (r *Repo) importCSVReader(ctx context.Context, table string, src io.Reader, opts ImportOptions) (ImportResult, error) {
	reader := csv.NewReader(src)
	header, err := reader.Read()
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to read CSV header: %w", err)
	}

	schema, err := r.importSchema(table, header, opts)
	if err != nil {
		return ImportResult{}, err
	}
	// Map CSV columns onto schema positions so column order is free.
	colFor := make([]int, len(header))
	for i, name := range header {
		idx := schema.ColumnIndex(name)
		if idx < 0 {
			return ImportResult{}, fmt.Errorf("%w: CSV column %q not in table %q",
				core.ErrInvalidSchema, name, table)
		}
		colFor[i] = idx
	}

	res := ImportResult{Table: table}
	batch := make([]core.Row, 0, importBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.PutRows(table, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return ImportResult{}, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ImportResult{}, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		row := make(core.Row, len(schema.Columns))
		for i := range row {
			row[i] = core.Null(schema.Columns[i].Type)
		}
		for i, raw := range record {
			col := schema.Columns[colFor[i]]
			v, err := core.ParseValue(col.Type, raw)
			if err != nil {
				return ImportResult{}, fmt.Errorf("line %d, column %q: %w", line, col.Name, err)
			}
			row[colFor[i]] = v
		}

		if opts.Transform != nil {
			row, err = opts.Transform(row)
			if err != nil {
				return ImportResult{}, fmt.Errorf("transform failed at line %d: %w", line, err)
			}
			if row == nil {
				res.Skipped++
				continue
			}
		}

		batch = append(batch, row)
		res.Rows++
		if len(batch) == importBatchSize {
			if err := flush(); err != nil {
				return ImportResult{}, err
			}
		}
	}
	if err := flush(); err != nil {
		return ImportResult{}, err
	}
	return res, nil
}

// importSchema returns the target table's schema, creating the table
// from the CSV header when it does not exist.
func (r *Repo) importSchema(table string, header []string, opts ImportOptions) (core.Schema, error) {
	schema, err := r.Schema(table)
	if err == nil {
		return schema, nil
	}
	if len(opts.PrimaryKey) == 0 {
		return core.Schema{}, fmt.Errorf("%w; a primary key is required to create it", err)
	}

	pk := make(map[string]bool, len(opts.PrimaryKey))
	for _, name := range opts.PrimaryKey {
		pk[name] = true
	}
	cols := make([]core.Column, len(header))
	for i, name := range header {
		typ := core.StringType
		if t, ok := opts.Types[name]; ok {
			typ = t
		}
		cols[i] = core.Column{Name: name, Type: typ, PrimaryKey: pk[name]}
	}
	schema = core.Schema{Columns: cols}
	if err := r.CreateTable(table, schema); err != nil {
		return core.Schema{}, err
	}
	return schema, nil
}

// ExportCSV writes a table, header first and rows in key order, to a
// local path, file://, or s3:// destination. rev empty exports the
// working set.
func (r *Repo) ExportCSV(ctx context.Context, table, rev, dest string, s3cfg *S3Config) error {
	var schema core.Schema
	var err error
	if rev == "" {
		schema, err = r.Schema(table)
	} else {
		t, terr := r.tableAt(rev, table)
		schema, err = t.Schema, terr
	}
	if err != nil {
		return err
	}
	rows, err := r.Rows(table, rev)
	if err != nil {
		return err
	}

	wc, err := openSink(ctx, dest, s3cfg)
	if err != nil {
		return err
	}
	defer wc.Close()

	w := csv.NewWriter(wc)
	header := make([]string, len(schema.Columns))
	for i, col := range schema.Columns {
		header[i] = col.Name
	}
	if err := w.Write(header); err != nil {
		return err
	}
	record := make([]string, len(schema.Columns))
	for _, row := range rows {
		for i, v := range row {
			record[i] = v.Format()
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return wc.Close()
}

// Loader is one step of a load pipeline: it writes rows into the
// repository's working set.
type Loader func(ctx context.Context, r *Repo) error

// TableLoader builds a Loader that upserts the rows produced by get into
// a table, creating it with schema when missing.
func TableLoader(table string, schema core.Schema, get func() ([]core.Row, error)) Loader {
	return func(ctx context.Context, r *Repo) error {
		if _, err := r.Schema(table); err != nil {
			if err := r.CreateTable(table, schema); err != nil {
				return err
			}
		}
		rows, err := get()
		if err != nil {
			return err
		}
		return r.PutRows(table, rows)
	}
}

// CSVLoader builds a Loader that imports one CSV source.
func CSVLoader(table, source string, opts ImportOptions) Loader {
	return func(ctx context.Context, r *Repo) error {
		opts.Branch = "" // branch handling belongs to LoadToBranch
		opts.Message = ""
		_, err := r.ImportCSV(ctx, table, source, opts)
		return err
	}
}

// LoadToBranch checks out a branch (created at the current tip when
// missing), runs the loaders in order, stages everything they touched,
// and commits.
func (r *Repo) LoadToBranch(ctx context.Context, branch, message string, loaders ...Loader) (Transaction, error) {
	if err := r.ensureBranch(branch); err != nil {
		return Transaction{}, err
	}
	if err := r.Checkout(branch); err != nil {
		return Transaction{}, err
	}
	for _, load := range loaders {
		if err := load(ctx, r); err != nil {
			return Transaction{}, err
		}
	}
	if err := r.Add(); err != nil {
		return Transaction{}, err
	}
	return r.Commit(message, CommitOptions{})
}
