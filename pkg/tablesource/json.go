package tablesource

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/peter-fm/tabdiff/pkg/errs"
)

// jsonSource implements Source for a JSON file holding a top-level array
// of objects, one per row. Column order is taken from the key order of
// the first object (preserved via orderedmap, since encoding/json's map
// decoding does not preserve key order); later rows look columns up by
// name, filling missing keys with null.
type jsonSource struct {
	path string
}

func newJSONSource(path string) *jsonSource { return &jsonSource{path: path} }

func (s *jsonSource) Kind() SourceKind { return KindFile }
func (s *jsonSource) Path() string     { return s.path }

func (s *jsonSource) openDecoder() (*os.File, *json.Decoder, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, errs.Wrap(errs.KindSourceNotFound, s.path, err)
		}
		return nil, nil, errs.Wrap(errs.KindSourceUnreadable, s.path, err)
	}
	dec := json.NewDecoder(f)
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		f.Close()
		return nil, nil, errs.Wrap(errs.KindSourceUnreadable, s.path, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		f.Close()
		return nil, nil, errs.New(errs.KindSourceUnreadable, s.path+": expected top-level JSON array")
	}
	return f, dec, nil
}

func (s *jsonSource) Describe(ctx context.Context) (Schema, error) {
	f, dec, err := s.openDecoder()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if !dec.More() {
		return nil, errs.New(errs.KindSchemaEmpty, s.path)
	}
	var first orderedmap.OrderedMap[string, any]
	if err := dec.Decode(&first); err != nil {
		return nil, fmt.Errorf("decode first JSON row: %w", err)
	}
	return objectToSchema(&first), nil
}

func objectToSchema(obj *orderedmap.OrderedMap[string, any]) Schema {
	schema := make(Schema, 0, obj.Len())
	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		schema = append(schema, Column{Name: pair.Key, Type: "string", Nullable: true})
	}
	return schema
}

func (s *jsonSource) Scan(ctx context.Context, batchSize int) (RowStream, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	f, dec, err := s.openDecoder()
	if err != nil {
		return nil, err
	}
	if !dec.More() {
		f.Close()
		return nil, errs.New(errs.KindSchemaEmpty, s.path)
	}
	var first orderedmap.OrderedMap[string, any]
	if err := dec.Decode(&first); err != nil {
		f.Close()
		return nil, fmt.Errorf("decode first JSON row: %w", err)
	}
	schema := objectToSchema(&first)
	return &jsonStream{
		file:      f,
		dec:       dec,
		schema:    schema,
		batchSize: batchSize,
		pending:   []*orderedmap.OrderedMap[string, any]{&first},
	}, nil
}

type jsonStream struct {
	file      *os.File
	dec       *json.Decoder
	schema    Schema
	batchSize int
	pending   []*orderedmap.OrderedMap[string, any]
	done      bool
}

func (s *jsonStream) Next(ctx context.Context) (RowBatch, bool, error) {
	if s.done && len(s.pending) == 0 {
		return RowBatch{}, false, nil
	}

	objs := s.pending
	s.pending = nil

	for len(objs) < s.batchSize && !s.done {
		select {
		case <-ctx.Done():
			return RowBatch{}, false, errs.Wrap(errs.KindCancelled, "json scan", ctx.Err())
		default:
		}
		if !s.dec.More() {
			s.done = true
			break
		}
		var obj orderedmap.OrderedMap[string, any]
		if err := s.dec.Decode(&obj); err != nil {
			return RowBatch{}, false, fmt.Errorf("decode JSON row: %w", err)
		}
		objs = append(objs, &obj)
	}

	rows := make([]Row, len(objs))
	for i, obj := range objs {
		rows[i] = objectToRow(s.schema, obj)
	}
	return RowBatch{Rows: rows}, !s.done, nil
}

func objectToRow(schema Schema, obj *orderedmap.OrderedMap[string, any]) Row {
	row := make(Row, len(schema))
	for i, col := range schema {
		v, ok := obj.Get(col.Name)
		if !ok || v == nil {
			row[i] = NullValue()
			continue
		}
		row[i] = StrValue(jsonScalarToString(v))
	}
	return row
}

func jsonScalarToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		// Nested object/array: re-encode compactly so the canonical form
		// is still a deterministic string.
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

func (s *jsonStream) Close() error {
	return s.file.Close()
}
