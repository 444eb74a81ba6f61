package diff

import (
	"context"
	"sort"

	"github.com/peter-fm/tabdiff/pkg/errs"
	"github.com/peter-fm/tabdiff/pkg/tablesource"
	"github.com/peter-fm/tabdiff/pkg/workerpool"
)

// Detect runs the full Change Detector (spec.md §4.6): schema diff, row
// pairing and classification, cell-level diff, and rollback-operation
// synthesis. pool parallelizes the row fingerprinting that builds the
// fingerprint maps; pass nil to run it sequentially. The similarity pass
// and cell comparison always run sequentially.
func Detect(ctx context.Context, pool *workerpool.Pool, baseline, current Table) (ChangeSet, error) {
	if len(baseline.Schema) == 0 {
		return ChangeSet{}, errs.New(errs.KindSchemaEmpty, "baseline schema is empty")
	}

	schemaChanges := diffSchema(baseline, current)

	pairs, err := pairRows(ctx, pool, baseline, current)
	if err != nil {
		return ChangeSet{}, err
	}

	rowChanges := RowChanges{
		Unchanged: pairs.unchanged,
		Modified:  pairs.modified,
		Added:     pairs.added,
		Removed:   pairs.removed,
	}

	ops := synthesizeRollbackOps(baseline, schemaChanges, rowChanges)

	return ChangeSet{
		SchemaChanges:      schemaChanges,
		RowChanges:         rowChanges,
		RollbackOperations: ops,
	}, nil
}

// synthesizeRollbackOps builds the ordered operation list that transforms
// current into baseline (spec.md §4.6.4). Schema operations are emitted
// first, in remove-add-reorder-rename-type order so names never collide
// transiently; then row operations: removals of added rows (descending
// c_index), insertions of removed rows (ascending b_index), then cell
// updates (ascending b_index, columns in schema order).
func synthesizeRollbackOps(baseline Table, sc SchemaChanges, rc RowChanges) []RollbackOp {
	baselineSchema := baseline.Schema
	var ops []RollbackOp

	// Rolling back a column add means removing it from current; rolling
	// back a remove means re-adding it, with a null placeholder for every
	// row's cell until the per-row UpdateCell ops below patch in the real
	// historical value.
	for _, a := range sc.Added {
		ops = append(ops, RemoveColumnOp(a.Name))
	}
	for _, r := range sc.Removed {
		ops = append(ops, AddColumnOp(r.Name, r.Type, r.Position, tablesource.NullValue()))
	}
	if sc.Reordered && len(sc.Before) > 0 {
		ops = append(ops, ReorderColumnsOp(sc.Before))
	}
	for _, ren := range sc.Renamed {
		ops = append(ops, RenameColumnOp(ren.To, ren.From))
	}
	for _, tc := range sc.TypeChanges {
		ops = append(ops, ChangeTypeOp(tc.Name, tc.Before))
	}

	addedByIdx := append([]AddedRow(nil), rc.Added...)
	sort.Slice(addedByIdx, func(i, j int) bool { return addedByIdx[i].CIndex > addedByIdx[j].CIndex })
	for _, a := range addedByIdx {
		ops = append(ops, RemoveRowOp(a.CIndex))
	}

	removedByIdx := append([]RemovedRow(nil), rc.Removed...)
	sort.Slice(removedByIdx, func(i, j int) bool { return removedByIdx[i].BIndex < removedByIdx[j].BIndex })
	for _, r := range removedByIdx {
		ops = append(ops, InsertRowOp(r.BIndex, r.Data))
	}

	// perRowUpdates accumulates every cell that must be set back to its
	// baseline value for a row that survives in current (unchanged or
	// modified). Removed rows don't need an entry here: InsertRowOp above
	// already carries their full baseline row, removed columns included.
	// Modified rows' own edits come from Changes; a removed column's value
	// is never part of Changes because cellChanges only compares the
	// intersection schema (spec.md §4.6.2 step 1), so without this it
	// would come back as the AddColumnOp's null placeholder instead of its
	// real historical value — the same class of bug ForwardDelta's
	// AddedColumnValues fixes on the reconstruction side (pkg/snapshot).
	perRowUpdates := make(map[int]map[string]tablesource.Value)
	for _, m := range rc.Modified {
		cm := make(map[string]tablesource.Value, len(m.Changes))
		for col, ch := range m.Changes {
			cm[col] = ch.Before
		}
		perRowUpdates[m.BIndex] = cm
	}
	for _, r := range sc.Removed {
		for _, u := range rc.Unchanged {
			restoreRemovedColumn(perRowUpdates, u.BIndex, r, baseline)
		}
		for _, m := range rc.Modified {
			restoreRemovedColumn(perRowUpdates, m.BIndex, r, baseline)
		}
	}

	bIndices := make([]int, 0, len(perRowUpdates))
	for b := range perRowUpdates {
		bIndices = append(bIndices, b)
	}
	sort.Ints(bIndices)
	for _, b := range bIndices {
		changes := perRowUpdates[b]
		for _, col := range baselineSchema.Names() {
			if v, ok := changes[col]; ok {
				ops = append(ops, UpdateCellOp(b, col, v))
			}
		}
	}

	return ops
}

// restoreRemovedColumn records removed column r's baseline value for row
// bIndex in updates, creating that row's entry if needed.
func restoreRemovedColumn(updates map[int]map[string]tablesource.Value, bIndex int, r ColumnRemove, baseline Table) {
	if _, ok := updates[bIndex]; !ok {
		updates[bIndex] = make(map[string]tablesource.Value)
	}
	updates[bIndex][r.Name] = valueAt(baseline.Rows, bIndex, r.Position)
}

// valueAt returns the value at (rowIndex, colPosition), or null if either
// index falls outside the table's bounds.
func valueAt(rows []tablesource.Row, rowIndex, colPosition int) tablesource.Value {
	if rowIndex < 0 || rowIndex >= len(rows) {
		return tablesource.NullValue()
	}
	row := rows[rowIndex]
	if colPosition < 0 || colPosition >= len(row) {
		return tablesource.NullValue()
	}
	return row[colPosition]
}

// FromScan is a convenience constructor that drains a Source's row stream
// into a Table, used by callers (status/diff/rollback) that need the
// current on-disk state as a Change Detector input.
func FromScan(ctx context.Context, src tablesource.Source, batchSize int) (Table, error) {
	schema, err := src.Describe(ctx)
	if err != nil {
		return Table{}, err
	}
	stream, err := src.Scan(ctx, batchSize)
	if err != nil {
		return Table{}, err
	}
	defer stream.Close()

	var rows []tablesource.Row
	for {
		batch, more, err := stream.Next(ctx)
		if err != nil {
			return Table{}, err
		}
		rows = append(rows, batch.Rows...)
		if !more {
			break
		}
	}
	return Table{Schema: schema, Rows: rows}, nil
}
