package tablesource

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// WriteDelimited re-encodes schema/rows as CSV or TSV, atomically replacing
// path. It mirrors WriteParquet's stage-to-temp-then-rename discipline so a
// crash mid-write never leaves a half-written table file in place, the same
// guarantee the teacher's CSVAdapter.writeBack gives its callers.
//
// Trailing null cells are left off a record, so the delimited reader reads
// them back as null; a null followed by a non-null cell, or a row whose
// first cell is null or empty with only nulls after it, is written as
// empty fields and reads back as the empty string.
func WriteDelimited(path string, schema Schema, rows []Row, delimiter rune) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tabdiff_csv_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp csv file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	w := csv.NewWriter(tmp)
	w.Comma = delimiter
	if err := w.Write(schema.Names()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(schema))
	for _, row := range rows {
		for i := range schema {
			if i < len(row) && !row[i].Null {
				record[i] = row[i].Str
			} else {
				record[i] = ""
			}
		}
		n := len(schema)
		for n > 1 && (n-1 >= len(row) || row[n-1].Null) {
			n--
		}
		if n == 1 && record[0] == "" {
			n = len(schema)
		}
		if err := w.Write(record[:n]); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp csv file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp csv file: %w", err)
	}
	success = true
	return nil
}

// WriteJSON re-encodes schema/rows as a top-level JSON array of objects,
// one per row, preserving schema column order via orderedmap so a
// subsequent Describe/Scan round-trips the same column order. Atomic
// stage-then-rename, same discipline as WriteDelimited/WriteParquet.
func WriteJSON(path string, schema Schema, rows []Row) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tabdiff_json_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp json file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.WriteString("[\n"); err != nil {
		return fmt.Errorf("write json array open: %w", err)
	}
	for i, row := range rows {
		obj := orderedmap.New[string, any]()
		for c, col := range schema {
			if c < len(row) && !row[c].Null {
				obj.Set(col.Name, row[c].Str)
			} else {
				obj.Set(col.Name, nil)
			}
		}
		b, err := json.MarshalIndent(obj, "  ", "  ")
		if err != nil {
			return fmt.Errorf("marshal json row: %w", err)
		}
		if _, err := tmp.Write([]byte("  ")); err != nil {
			return err
		}
		if _, err := tmp.Write(b); err != nil {
			return err
		}
		if i < len(rows)-1 {
			if _, err := tmp.WriteString(",\n"); err != nil {
				return err
			}
		} else {
			if _, err := tmp.WriteString("\n"); err != nil {
				return err
			}
		}
	}
	if _, err := tmp.WriteString("]\n"); err != nil {
		return fmt.Errorf("write json array close: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp json file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp json file: %w", err)
	}
	success = true
	return nil
}
