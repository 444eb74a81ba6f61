// Package tablesource opens CSV, TSV, JSON, Parquet and SQL tables and
// yields their schema and rows in a deterministic, batched stream. It is
// the only component that ever touches a table's storage format; every
// other package works exclusively in terms of Schema/Row/Value.
package tablesource

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultBatchSize bounds the size of a single streamed batch of rows.
const DefaultBatchSize = 10000

// SourceKind distinguishes a rollback-capable file source from a
// read-only SQL source (spec.md §4.1).
type SourceKind string

const (
	KindFile SourceKind = "file"
	KindSQL  SourceKind = "sql"
)

// Value is the tagged cell value every row is made of: either SQL-NULL or
// a string. Null is distinct from the empty string throughout tabdiff.
type Value struct {
	Null bool
	Str  string
}

// NullValue is the canonical null cell.
func NullValue() Value { return Value{Null: true} }

// StrValue wraps a string as a non-null cell.
func StrValue(s string) Value { return Value{Str: s} }

func (v Value) String() string {
	if v.Null {
		return "<null>"
	}
	return v.Str
}

// Column describes one schema column. Column order is significant: it
// defines the cell position within every Row of that schema.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// Schema is the ordered list of columns of a table.
type Schema []Column

// IndexOf returns the position of a column by name, or -1.
func (s Schema) IndexOf(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Row is an ordered tuple of cell values, one per schema column.
type Row []Value

// RowBatch is a bounded-size slice of rows in source order.
type RowBatch struct {
	Rows []Row
}

// RowStream is a lazy, finite, non-restartable iterator over row batches.
// Next returns io.EOF-free: the final call that returns more=false may
// still carry a non-empty batch.
type RowStream interface {
	Next(ctx context.Context) (batch RowBatch, more bool, err error)
	Close() error
}

// Source is the opaque Table Source adapter (spec.md §4.1): it describes
// a table's schema and streams its rows in a deterministic order. For SQL
// sources that order is whatever the caller's query produced; for file
// sources it is file order.
type Source interface {
	Kind() SourceKind
	// Path is the canonicalized location of the source: an absolute file
	// path for file sources, or the query descriptor for SQL sources.
	Path() string
	Describe(ctx context.Context) (Schema, error)
	Scan(ctx context.Context, batchSize int) (RowStream, error)
}

// CanonicalPath resolves path to an absolute, cleaned form, the same
// canonicalization Open applies, so a path resolved here agrees with
// Source.Path() on identity. Nothing in the module calls it; the Snapshot
// Writer and Chain Manager use Source.Path() directly.
func CanonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return abs, nil
}

// Open resolves a file path to a Source based on its extension. SQL
// sources are opened separately via OpenSQL since they need a query, not
// a path.
func Open(path string) (Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path %q: %w", path, err)
	}
	switch ext := strings.ToLower(filepath.Ext(abs)); ext {
	case ".csv":
		return newDelimitedSource(abs, ','), nil
	case ".tsv":
		return newDelimitedSource(abs, '\t'), nil
	case ".json":
		return newJSONSource(abs), nil
	case ".parquet":
		return newParquetSource(abs), nil
	default:
		return nil, fmt.Errorf("unsupported table source extension %q", ext)
	}
}
