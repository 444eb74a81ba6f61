package tablesource

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/peter-fm/tabdiff/pkg/errs"
)

// sqlSource implements Source over an opaque, already-ordered SELECT query
// (spec.md §4.1: the SQL Table Source never builds or rewrites SQL itself).
// Column scanning and value normalization mirror the teacher's
// server/datasource/sql/scanner.go ScanRows/normalizeValue, simplified to
// tabdiff's string-only cell representation since SQL sources are never a
// rollback target.
type sqlSource struct {
	driver string
	dsn    string
	query  string
}

// OpenSQL opens a read-only Source against driver ("postgres", "mysql" or
// "sqlite") running query verbatim. query must already be a complete,
// deterministically ordered SELECT; OpenSQL never parses or rewrites it.
func OpenSQL(driver, dsn, query string) (Source, error) {
	switch driver {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	return &sqlSource{driver: driver, dsn: dsn, query: query}, nil
}

func (s *sqlSource) Kind() SourceKind { return KindSQL }
func (s *sqlSource) Path() string     { return s.driver + ":" + s.query }

func (s *sqlSource) open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return nil, errs.Wrap(errs.KindSourceUnreadable, s.Path(), err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errs.Wrap(errs.KindSourceUnreadable, s.Path(), err)
	}
	return db, nil
}

func (s *sqlSource) Describe(ctx context.Context) (Schema, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, errs.Wrap(errs.KindSourceUnreadable, s.Path(), err)
	}
	defer rows.Close()

	schema, err := columnsToSchema(rows)
	if err != nil {
		return nil, err
	}
	if len(schema) == 0 {
		return nil, errs.New(errs.KindSchemaEmpty, s.Path())
	}
	return schema, nil
}

func columnsToSchema(rows *sql.Rows) (Schema, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("get column types: %w", err)
	}
	schema := make(Schema, len(colTypes))
	for i, ct := range colTypes {
		nullable, ok := ct.Nullable()
		if !ok {
			nullable = true
		}
		schema[i] = Column{Name: ct.Name(), Type: "string", Nullable: nullable}
	}
	return schema, nil
}

func (s *sqlSource) Scan(ctx context.Context, batchSize int) (RowStream, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, s.query)
	if err != nil {
		db.Close()
		return nil, errs.Wrap(errs.KindSourceUnreadable, s.Path(), err)
	}
	schema, err := columnsToSchema(rows)
	if err != nil {
		rows.Close()
		db.Close()
		return nil, err
	}
	return &sqlStream{db: db, rows: rows, width: len(schema), batchSize: batchSize}, nil
}

type sqlStream struct {
	db        *sql.DB
	rows      *sql.Rows
	width     int
	batchSize int
	done      bool
}

func (s *sqlStream) Next(ctx context.Context) (RowBatch, bool, error) {
	if s.done {
		return RowBatch{}, false, nil
	}
	var rows []Row
	for len(rows) < s.batchSize {
		select {
		case <-ctx.Done():
			return RowBatch{}, false, errs.Wrap(errs.KindCancelled, "sql scan", ctx.Err())
		default:
		}
		if !s.rows.Next() {
			if err := s.rows.Err(); err != nil {
				return RowBatch{}, false, fmt.Errorf("rows iteration: %w", err)
			}
			s.done = true
			break
		}
		row, err := s.scanRow()
		if err != nil {
			return RowBatch{}, false, err
		}
		rows = append(rows, row)
	}
	return RowBatch{Rows: rows}, !s.done, nil
}

func (s *sqlStream) scanRow() (Row, error) {
	values := make([]interface{}, s.width)
	targets := make([]interface{}, s.width)
	for i := range values {
		targets[i] = &values[i]
	}
	if err := s.rows.Scan(targets...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	row := make(Row, s.width)
	for i, v := range values {
		row[i] = normalizeSQLValue(v)
	}
	return row, nil
}

// normalizeSQLValue stringifies a database/sql scanned value into tabdiff's
// canonical cell form. Mirrors the teacher's normalizeValue, but returns a
// Value rather than interface{} since every comparison downstream compares
// strings, never typed values.
func normalizeSQLValue(v interface{}) Value {
	if v == nil {
		return NullValue()
	}
	switch val := v.(type) {
	case []byte:
		return StrValue(string(val))
	case time.Time:
		return StrValue(val.Format("2006-01-02 15:04:05"))
	case int64:
		return StrValue(strconv.FormatInt(val, 10))
	case float64:
		return StrValue(strconv.FormatFloat(val, 'g', -1, 64))
	case bool:
		return StrValue(strconv.FormatBool(val))
	case string:
		return StrValue(val)
	default:
		return StrValue(fmt.Sprintf("%v", val))
	}
}

func (s *sqlStream) Close() error {
	rowsErr := s.rows.Close()
	dbErr := s.db.Close()
	if rowsErr != nil {
		return rowsErr
	}
	return dbErr
}
