package tablesource

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/peter-fm/tabdiff/pkg/errs"
)

// delimitedSource implements Source for CSV/TSV files: the first row is
// the header, every other row is data. CSV has no native null literal, so
// a row shorter than the header treats its missing trailing cells as null
// (distinct from a present-but-empty field, which is the empty string).
// This mirrors the teacher's CSVAdapter.Connect header/record reading
// shape (pkg/resource/csv/adapter.go) but drops type inference: tabdiff
// never interprets cell values, only compares their canonical string
// form, so every column is declared "string".
type delimitedSource struct {
	path      string
	delimiter rune
}

func newDelimitedSource(path string, delimiter rune) *delimitedSource {
	return &delimitedSource{path: path, delimiter: delimiter}
}

func (s *delimitedSource) Kind() SourceKind { return KindFile }
func (s *delimitedSource) Path() string     { return s.path }

func (s *delimitedSource) openReader() (*os.File, *csv.Reader, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errs.Wrap(errs.KindSourceNotFound, s.path, err)
		}
		return nil, nil, errs.Wrap(errs.KindSourceUnreadable, s.path, err)
	}
	// Strip a UTF-8 BOM if present; transform.NewReader is a no-op for
	// files that don't start with one.
	decoded := transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	r := csv.NewReader(decoded)
	r.Comma = s.delimiter
	r.FieldsPerRecord = -1 // rows may be shorter than the header
	return f, r, nil
}

func (s *delimitedSource) Describe(ctx context.Context) (Schema, error) {
	f, r, err := s.openReader()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := r.Read()
	if err == io.EOF {
		return nil, errs.New(errs.KindSchemaEmpty, s.path)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindSourceUnreadable, s.path, err)
	}
	return headerToSchema(header), nil
}

func headerToSchema(header []string) Schema {
	schema := make(Schema, len(header))
	for i, name := range header {
		schema[i] = Column{Name: name, Type: "string", Nullable: true}
	}
	return schema
}

func (s *delimitedSource) Scan(ctx context.Context, batchSize int) (RowStream, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	f, r, err := s.openReader()
	if err != nil {
		return nil, err
	}

	header, err := r.Read()
	if err == io.EOF {
		f.Close()
		return nil, errs.New(errs.KindSchemaEmpty, s.path)
	}
	if err != nil {
		f.Close()
		return nil, errs.Wrap(errs.KindSourceUnreadable, s.path, err)
	}

	return &delimitedStream{file: f, reader: r, width: len(header), batchSize: batchSize}, nil
}

type delimitedStream struct {
	file      *os.File
	reader    *csv.Reader
	width     int
	batchSize int
	done      bool
}

func (s *delimitedStream) Next(ctx context.Context) (RowBatch, bool, error) {
	if s.done {
		return RowBatch{}, false, nil
	}
	var rows []Row
	for len(rows) < s.batchSize {
		select {
		case <-ctx.Done():
			return RowBatch{}, false, errs.Wrap(errs.KindCancelled, "csv scan", ctx.Err())
		default:
		}
		record, err := s.reader.Read()
		if err == io.EOF {
			s.done = true
			break
		}
		if err != nil {
			return RowBatch{}, false, fmt.Errorf("read csv record: %w", err)
		}
		rows = append(rows, recordToRow(record, s.width))
	}
	return RowBatch{Rows: rows}, !s.done, nil
}

func recordToRow(record []string, width int) Row {
	row := make(Row, width)
	for i := 0; i < width; i++ {
		if i < len(record) {
			row[i] = StrValue(record[i])
		} else {
			row[i] = NullValue()
		}
	}
	return row
}

func (s *delimitedStream) Close() error {
	return s.file.Close()
}
