package chain

import (
	"fmt"
	"sort"

	"github.com/peter-fm/tabdiff/pkg/diff"
	"github.com/peter-fm/tabdiff/pkg/snapshot"
	"github.com/peter-fm/tabdiff/pkg/tablesource"
)

// applyForwardDelta replays one snapshot's forward delta against its
// parent's (schema, rows), producing this snapshot's own (schema, rows)
// (spec.md §4.5 "Delta replay semantics").
//
// Row-level operations in delta.RowChanges use BIndex/CIndex positions
// from the parent/child schemas, exactly as the Change Detector produced
// them when the delta was written. Because schema changes can alter a
// row's physical cell layout (add/remove/reorder a column) before any row
// operation applies, schema changes are applied to every surviving parent
// row first, projecting it onto the new schema by column name; only then
// do row removal/modification/addition proceed by index.
func applyForwardDelta(parentSchema tablesource.Schema, parentRows []tablesource.Row, delta snapshot.ForwardDelta) (tablesource.Schema, []tablesource.Row, error) {
	newSchema := applySchemaChanges(parentSchema, delta.SchemaChanges)

	renameTo := make(map[string]string, len(delta.SchemaChanges.Renamed))
	for _, r := range delta.SchemaChanges.Renamed {
		renameTo[r.From] = r.To
	}
	projected := make([]tablesource.Row, len(parentRows))
	for i, row := range parentRows {
		projected[i] = projectRowOntoSchema(parentSchema, row, newSchema, renameTo)
	}

	residual, oldToResidual, err := removeRows(projected, delta.RowChanges.Removed)
	if err != nil {
		return nil, nil, err
	}

	if err := applyModifications(residual, newSchema, delta.RowChanges.Modified, oldToResidual); err != nil {
		return nil, nil, err
	}

	final, err := insertAddedRows(residual, newSchema, delta.RowChanges.Added)
	if err != nil {
		return nil, nil, err
	}

	// Columns introduced by this delta carry real per-row values only for
	// rows recorded in RowChanges.Added (whole new rows); existing rows
	// that merely gained a column have no entry there (spec.md §4.6.2
	// compares only the intersection schema), so AddedColumnValues
	// supplies the authoritative value for every row, in child order.
	for name, values := range delta.AddedColumnValues {
		idx := newSchema.IndexOf(name)
		if idx < 0 {
			continue
		}
		for i := range final {
			if i < len(values) {
				final[i][idx] = values[i]
			}
		}
	}

	return newSchema, final, nil
}

// applySchemaChanges produces σ' from σ and a SchemaChanges record, in
// remove-add-rename-type-reorder order (spec.md §4.5 lists add/remove/
// rename/reorder/type without prescribing a sub-order). The reorder runs
// last because SchemaChanges.After names columns by their current,
// post-rename names.
func applySchemaChanges(schema tablesource.Schema, sc diff.SchemaChanges) tablesource.Schema {
	removed := make(map[string]bool, len(sc.Removed))
	for _, r := range sc.Removed {
		removed[r.Name] = true
	}

	var out tablesource.Schema
	for _, c := range schema {
		if !removed[c.Name] {
			out = append(out, c)
		}
	}
	for _, a := range sc.Added {
		out = append(out, tablesource.Column{Name: a.Name, Type: a.Type, Nullable: true})
	}

	renameTo := make(map[string]string, len(sc.Renamed))
	for _, r := range sc.Renamed {
		renameTo[r.From] = r.To
	}
	for i, c := range out {
		if to, ok := renameTo[c.Name]; ok {
			out[i].Name = to
		}
	}

	typeTo := make(map[string]string, len(sc.TypeChanges))
	for _, tc := range sc.TypeChanges {
		typeTo[tc.Name] = tc.After
	}
	for i, c := range out {
		if newType, ok := typeTo[c.Name]; ok {
			out[i].Type = newType
		}
	}

	if sc.Reordered && len(sc.After) > 0 {
		out = reorderByNames(out, sc.After)
	}

	return out
}

// reorderByNames moves the columns named in order to the front, in that
// order, leaving any remaining columns (e.g. newly added ones not part of
// the intersection order) after them in their existing relative order.
func reorderByNames(schema tablesource.Schema, order []string) tablesource.Schema {
	pos := make(map[string]int, len(schema))
	for i, c := range schema {
		pos[c.Name] = i
	}
	used := make(map[string]bool, len(order))
	out := make(tablesource.Schema, 0, len(schema))
	for _, name := range order {
		if i, ok := pos[name]; ok {
			out = append(out, schema[i])
			used[name] = true
		}
	}
	for _, c := range schema {
		if !used[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

// projectRowOntoSchema re-lays-out row (in oldSchema's physical order) to
// match newSchema's column order and names, following the rename mapping
// for columns that still exist under a new name. Columns absent from
// newSchema are dropped; columns in newSchema with no counterpart in
// oldSchema (freshly added) get a null placeholder, later overwritten by
// AddedColumnValues or an AddedRow entry.
func projectRowOntoSchema(oldSchema tablesource.Schema, row tablesource.Row, newSchema tablesource.Schema, renameTo map[string]string) tablesource.Row {
	oldNameAt := make([]string, len(oldSchema))
	for i, c := range oldSchema {
		name := c.Name
		if to, ok := renameTo[name]; ok {
			name = to
		}
		oldNameAt[i] = name
	}
	oldIdx := make(map[string]int, len(oldNameAt))
	for i, name := range oldNameAt {
		oldIdx[name] = i
	}

	out := make(tablesource.Row, len(newSchema))
	for i, col := range newSchema {
		if oi, ok := oldIdx[col.Name]; ok && oi < len(row) {
			out[i] = row[oi]
		} else {
			out[i] = tablesource.NullValue()
		}
	}
	return out
}

// removeRows drops the rows named in removed (by their original/baseline
// index, collected into a set and filtered out in one pass, so every index
// refers to the original slice regardless of the order of removed),
// returning the residual rows in original relative order and a mapping
// from each surviving original index to its position in the residual
// slice, for applyModifications to resolve Modified.BIndex against.
func removeRows(rows []tablesource.Row, removed []diff.RemovedRow) ([]tablesource.Row, map[int]int, error) {
	removedSet := make(map[int]bool, len(removed))
	for _, r := range removed {
		if r.BIndex < 0 || r.BIndex >= len(rows) {
			return nil, nil, fmt.Errorf("chain: removed row index %d out of range (%d rows)", r.BIndex, len(rows))
		}
		removedSet[r.BIndex] = true
	}

	residual := make([]tablesource.Row, 0, len(rows)-len(removedSet))
	oldToResidual := make(map[int]int, len(rows))
	for i, row := range rows {
		if removedSet[i] {
			continue
		}
		oldToResidual[i] = len(residual)
		residual = append(residual, row)
	}
	return residual, oldToResidual, nil
}

// applyModifications updates cell values in place by column name, mutating
// residual's rows according to delta.RowChanges.Modified.
func applyModifications(residual []tablesource.Row, schema tablesource.Schema, modified []diff.ModifiedRow, oldToResidual map[int]int) error {
	for _, m := range modified {
		pos, ok := oldToResidual[m.BIndex]
		if !ok {
			return fmt.Errorf("chain: modified row %d was also removed", m.BIndex)
		}
		for col, change := range m.Changes {
			idx := schema.IndexOf(col)
			if idx < 0 {
				continue
			}
			residual[pos][idx] = change.After
		}
	}
	return nil
}

// insertAddedRows inserts delta.RowChanges.Added entries into residual at
// their CIndex, ascending (spec.md §4.5), shifting later rows right.
func insertAddedRows(residual []tablesource.Row, schema tablesource.Schema, added []diff.AddedRow) ([]tablesource.Row, error) {
	if len(added) == 0 {
		return residual, nil
	}
	sorted := append([]diff.AddedRow(nil), added...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CIndex < sorted[j].CIndex })

	total := len(residual) + len(sorted)
	final := make([]tablesource.Row, 0, total)
	ai, ri := 0, 0
	for len(final) < total {
		if ai < len(sorted) && sorted[ai].CIndex == len(final) {
			final = append(final, rowFromData(schema, sorted[ai].Data))
			ai++
			continue
		}
		if ri < len(residual) {
			final = append(final, residual[ri])
			ri++
			continue
		}
		return nil, fmt.Errorf("chain: inconsistent added-row indices")
	}
	return final, nil
}

func rowFromData(schema tablesource.Schema, data map[string]tablesource.Value) tablesource.Row {
	row := make(tablesource.Row, len(schema))
	for i, col := range schema {
		if v, ok := data[col.Name]; ok {
			row[i] = v
		} else {
			row[i] = tablesource.NullValue()
		}
	}
	return row
}
