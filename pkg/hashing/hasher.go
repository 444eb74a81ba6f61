package hashing

import (
	"context"
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"

	"github.com/peter-fm/tabdiff/pkg/tablesource"
	"github.com/peter-fm/tabdiff/pkg/workerpool"
)

// Hasher drives the schema/column/row fingerprints off a single pass over
// a row stream (spec.md §4.2): row fingerprints are emitted as each batch
// arrives, while per-column digests accumulate state across the whole
// stream to preserve order-sensitive hashing. Construct one Hasher per
// scan; it is not reusable once read.
type Hasher struct {
	schema    tablesource.Schema
	pool      *workerpool.Pool
	columns   []*blake3.Hasher
	rowHashes []string
	rowCount  int
}

// New builds a Hasher for schema. pool is used to parallelize row hashing
// within a batch and per-column hashing across columns; pass nil to hash
// sequentially.
func New(schema tablesource.Schema, pool *workerpool.Pool) *Hasher {
	columns := make([]*blake3.Hasher, len(schema))
	for i := range columns {
		columns[i] = blake3.New(32, nil)
	}
	return &Hasher{schema: schema, pool: pool, columns: columns}
}

// SchemaFingerprint is independent of row data and available immediately.
func (h *Hasher) SchemaFingerprint() string {
	return SchemaFingerprint(h.schema)
}

// WriteBatch feeds one batch of rows through the row and column hashers,
// appending to RowFingerprints in stream order. Row hashing inside the
// batch runs in parallel, indexed by position; per-column hashing runs in
// parallel across columns, each column seeing this batch's rows in order.
func (h *Hasher) WriteBatch(ctx context.Context, batch tablesource.RowBatch) error {
	rows := batch.Rows
	if len(rows) == 0 {
		return nil
	}

	rowHashes := make([]string, len(rows))
	if err := workerpool.ForEachIndexed(ctx, h.pool, len(rows), func(i int) error {
		rowHashes[i] = RowFingerprint(h.schema, rows[i])
		return nil
	}); err != nil {
		return fmt.Errorf("hash row batch: %w", err)
	}

	if err := workerpool.ForEachIndexed(ctx, h.pool, len(h.columns), func(c int) error {
		for _, row := range rows {
			var v tablesource.Value
			if c < len(row) {
				v = row[c]
			} else {
				v = tablesource.NullValue()
			}
			buf := appendCell(nil, v)
			if _, err := h.columns[c].Write(buf); err != nil {
				return fmt.Errorf("hash column %d: %w", c, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	h.rowHashes = append(h.rowHashes, rowHashes...)
	h.rowCount += len(rows)
	return nil
}

// RowFingerprints returns every row fingerprint seen so far, in stream
// order.
func (h *Hasher) RowFingerprints() []string {
	return h.rowHashes
}

// RowCount returns the number of rows hashed so far.
func (h *Hasher) RowCount() int {
	return h.rowCount
}

// ColumnFingerprints returns the per-column digest, in schema order, over
// every row seen so far.
func (h *Hasher) ColumnFingerprints() []string {
	out := make([]string, len(h.columns))
	for i, c := range h.columns {
		sum := c.Sum(nil)
		out[i] = hex.EncodeToString(sum)
	}
	return out
}
