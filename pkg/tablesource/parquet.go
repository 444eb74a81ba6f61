package tablesource

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	pq "github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/peter-fm/tabdiff/pkg/errs"
)

// parquetSource implements Source for native .parquet files, grounded on
// the teacher's pkg/resource/parquet/io.go read path: open via pq.OpenFile,
// read schema fields, stream rows with a fixed-size pq.Row buffer. Unlike
// the teacher, values are converted to tabdiff's canonical string form
// rather than into typed Go values, since every comparison downstream is
// string-based (spec.md §3).
type parquetSource struct {
	path string
}

func newParquetSource(path string) *parquetSource { return &parquetSource{path: path} }

func (s *parquetSource) Kind() SourceKind { return KindFile }
func (s *parquetSource) Path() string     { return s.path }

func (s *parquetSource) openFile() (*os.File, *pq.File, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errs.Wrap(errs.KindSourceNotFound, s.path, err)
		}
		return nil, nil, errs.Wrap(errs.KindSourceUnreadable, s.path, err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, errs.Wrap(errs.KindSourceUnreadable, s.path, err)
	}
	pf, err := pq.OpenFile(f, stat.Size())
	if err != nil {
		f.Close()
		return nil, nil, errs.Wrap(errs.KindArchiveCorrupt, s.path, err)
	}
	return f, pf, nil
}

func (s *parquetSource) Describe(ctx context.Context) (Schema, error) {
	f, pf, err := s.openFile()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	schema := parquetSchemaToColumns(pf.Schema())
	if len(schema) == 0 {
		return nil, errs.New(errs.KindSchemaEmpty, s.path)
	}
	return schema, nil
}

func parquetSchemaToColumns(schema *pq.Schema) Schema {
	fields := schema.Fields()
	cols := make(Schema, 0, len(fields))
	for _, field := range fields {
		cols = append(cols, Column{
			Name:     field.Name(),
			Type:     parquetFieldType(field),
			Nullable: field.Optional(),
		})
	}
	return cols
}

func parquetFieldType(field pq.Field) string {
	if !field.Leaf() {
		return "string"
	}
	switch field.Type().Kind() {
	case pq.Boolean:
		return "bool"
	case pq.Int32:
		return "int32"
	case pq.Int64:
		return "int64"
	case pq.Float:
		return "float32"
	case pq.Double:
		return "float64"
	case pq.ByteArray, pq.FixedLenByteArray:
		if lt := field.Type().LogicalType(); lt != nil && lt.UTF8 != nil {
			return "string"
		}
		return "bytes"
	default:
		return "string"
	}
}

func (s *parquetSource) Scan(ctx context.Context, batchSize int) (RowStream, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	f, pf, err := s.openFile()
	if err != nil {
		return nil, err
	}
	schema := parquetSchemaToColumns(pf.Schema())
	reader := pq.NewReader(f, pf.Schema())
	return &parquetStream{
		file:      f,
		reader:    reader,
		schema:    schema,
		batchSize: batchSize,
		buf:       make([]pq.Row, batchSize),
	}, nil
}

type parquetStream struct {
	file      *os.File
	reader    *pq.Reader
	schema    Schema
	batchSize int
	buf       []pq.Row
	done      bool
}

func (s *parquetStream) Next(ctx context.Context) (RowBatch, bool, error) {
	if s.done {
		return RowBatch{}, false, nil
	}
	select {
	case <-ctx.Done():
		return RowBatch{}, false, errs.Wrap(errs.KindCancelled, "parquet scan", ctx.Err())
	default:
	}

	n, err := s.reader.ReadRows(s.buf)
	if err != nil && err != io.EOF {
		return RowBatch{}, false, fmt.Errorf("read parquet rows: %w", err)
	}
	if err == io.EOF {
		s.done = true
	}

	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		rows[i] = parquetRowToRow(s.schema, s.buf[i])
	}
	return RowBatch{Rows: rows}, !s.done, nil
}

func parquetRowToRow(schema Schema, pr pq.Row) Row {
	row := make(Row, len(schema))
	for i := range schema {
		if i >= len(pr) || pr[i].IsNull() {
			row[i] = NullValue()
			continue
		}
		row[i] = StrValue(parquetValueToString(schema[i], pr[i]))
	}
	return row
}

func parquetValueToString(col Column, v pq.Value) string {
	switch v.Kind() {
	case pq.Boolean:
		return strconv.FormatBool(v.Boolean())
	case pq.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case pq.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case pq.Float:
		return strconv.FormatFloat(float64(v.Float()), 'g', -1, 32)
	case pq.Double:
		return strconv.FormatFloat(v.Double(), 'g', -1, 64)
	case pq.ByteArray, pq.FixedLenByteArray:
		return string(v.ByteArray())
	default:
		return string(v.ByteArray())
	}
}

// ReadParquetFile reads every row of a .parquet file at path into memory,
// using schema's declared column order (ignoring the file's own schema
// metadata). Used by the archive container to decode data.parquet without
// going through the full Source/RowStream machinery.
func ReadParquetFile(path string, schema Schema) ([]Row, error) {
	src := newParquetSource(path)
	ctx := context.Background()
	fileSchema, err := src.Describe(ctx)
	if err != nil {
		return nil, err
	}
	reorder := !sameColumnOrder(fileSchema, schema)

	stream, err := src.Scan(ctx, DefaultBatchSize)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var rows []Row
	for {
		batch, more, err := stream.Next(ctx)
		if err != nil {
			return nil, err
		}
		for _, r := range batch.Rows {
			if reorder {
				r = reorderRowToSchema(fileSchema, r, schema)
			}
			rows = append(rows, r)
		}
		if !more {
			break
		}
	}
	return rows, nil
}

// reorderRowToSchema re-projects a row decoded with the file's own column
// order onto the caller-supplied schema order, by name. WriteParquet
// builds its file schema from a pq.Group, whose fields are ordered by
// name, so a file it wrote carries its columns in name order; whenever
// that differs from the schema.json order, this restores the schema order.
func reorderRowToSchema(fileSchema Schema, row Row, schema Schema) Row {
	out := make(Row, len(schema))
	for i, col := range schema {
		idx := fileSchema.IndexOf(col.Name)
		if idx < 0 || idx >= len(row) {
			out[i] = NullValue()
			continue
		}
		out[i] = row[idx]
	}
	return out
}

func sameColumnOrder(a, b Schema) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}

// WriteParquet writes schema+rows to a native .parquet file atomically,
// converting tabdiff's string cell form back into the declared column
// type (the inverse of parquetValueToString). Used by the archive
// container for its full-rows member (data.parquet; the forward delta is
// stored as JSON) and by the Rollback Executor to re-encode a .parquet
// table source.
func WriteParquet(path string, schema Schema, rows []Row, codec string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tabdiff_parquet_*.parquet")
	if err != nil {
		return fmt.Errorf("create temp parquet file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	pqSchema := columnsToParquetSchema(schema)
	opts := []pq.WriterOption{pqSchema}
	if c := parquetCompressionCodec(codec); c != nil {
		opts = append(opts, pq.Compression(c))
	}
	writer := pq.NewGenericWriter[map[string]any](tmp, opts...)

	batch := make([]map[string]any, 0, 1024)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := writer.Write(batch); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
		batch = batch[:0]
		return nil
	}
	for _, row := range rows {
		m := make(map[string]any, len(schema))
		for i, col := range schema {
			if i >= len(row) || row[i].Null {
				m[col.Name] = nil
				continue
			}
			m[col.Name] = stringToParquetGoValue(col, row[i].Str)
		}
		batch = append(batch, m)
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp parquet file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp parquet file: %w", err)
	}
	success = true
	return nil
}

func columnsToParquetSchema(schema Schema) *pq.Schema {
	group := make(pq.Group, len(schema))
	for _, col := range schema {
		group[col.Name] = columnToParquetNode(col)
	}
	return pq.NewSchema("tabdiff_row", group)
}

func columnToParquetNode(col Column) pq.Node {
	var node pq.Node
	switch col.Type {
	case "int64":
		node = pq.Leaf(pq.Int64Type)
	case "int32":
		node = pq.Leaf(pq.Int32Type)
	case "float64":
		node = pq.Leaf(pq.DoubleType)
	case "float32":
		node = pq.Leaf(pq.FloatType)
	case "bool":
		node = pq.Leaf(pq.BooleanType)
	case "bytes":
		node = pq.Leaf(pq.ByteArrayType)
	default:
		node = pq.String()
	}
	return pq.Optional(node)
}

func stringToParquetGoValue(col Column, s string) any {
	switch col.Type {
	case "int64":
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return int64(0)
		}
		return v
	case "int32":
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return int32(0)
		}
		return int32(v)
	case "float64":
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return float64(0)
		}
		return v
	case "float32":
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return float32(0)
		}
		return float32(v)
	case "bool":
		v, err := strconv.ParseBool(s)
		if err != nil {
			return false
		}
		return v
	case "bytes":
		return []byte(s)
	default:
		return s
	}
}

func parquetCompressionCodec(name string) compress.Codec {
	switch name {
	case "zstd":
		return &pq.Zstd
	case "snappy":
		return &pq.Snappy
	case "gzip":
		return &pq.Gzip
	case "none", "":
		return nil
	default:
		return &pq.Zstd
	}
}
