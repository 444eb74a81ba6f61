package diff

import (
	"github.com/peter-fm/tabdiff/pkg/hashing"
	"github.com/peter-fm/tabdiff/pkg/tablesource"
)

func diffSchema(baseline Table, current Table) SchemaChanges {
	bSchema, cSchema := baseline.Schema, current.Schema
	bIdx := make(map[string]int, len(bSchema))
	for i, c := range bSchema {
		bIdx[c.Name] = i
	}
	cIdx := make(map[string]int, len(cSchema))
	for i, c := range cSchema {
		cIdx[c.Name] = i
	}

	var added []ColumnAdd
	for i, c := range cSchema {
		if _, ok := bIdx[c.Name]; !ok {
			added = append(added, ColumnAdd{Name: c.Name, Type: c.Type, Position: i})
		}
	}
	var removed []ColumnRemove
	for i, c := range bSchema {
		if _, ok := cIdx[c.Name]; !ok {
			removed = append(removed, ColumnRemove{Name: c.Name, Type: c.Type, Position: i})
		}
	}

	var typeChanges []TypeChange
	for name, bi := range bIdx {
		if ci, ok := cIdx[name]; ok {
			if bSchema[bi].Type != cSchema[ci].Type {
				typeChanges = append(typeChanges, TypeChange{Name: name, Before: bSchema[bi].Type, After: cSchema[ci].Type})
			}
		}
	}

	var renamed []ColumnRename
	if len(added) > 0 && len(added) == len(removed) {
		renamed, added, removed = detectRenames(baseline, current, bIdx, cIdx, added, removed)
	}

	var before, after []string
	for _, c := range bSchema {
		if _, ok := cIdx[c.Name]; ok {
			before = append(before, c.Name)
		}
	}
	for _, c := range cSchema {
		if _, ok := bIdx[c.Name]; ok {
			after = append(after, c.Name)
		}
	}
	reordered := !sameOrder(before, after)

	return SchemaChanges{
		Reordered:   reordered,
		Before:      before,
		After:       after,
		Added:       added,
		Removed:     removed,
		Renamed:     renamed,
		TypeChanges: typeChanges,
	}
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// detectRenames pairs each removed column with the added column whose
// ColumnFingerprint is identical, computed over the side that still has
// that column's data (spec.md §4.6.1). Unpaired columns remain in
// added/removed.
func detectRenames(baseline, current Table, bIdx, cIdx map[string]int, added []ColumnAdd, removed []ColumnRemove) ([]ColumnRename, []ColumnAdd, []ColumnRemove) {
	addedFp := make(map[string][]ColumnAdd, len(added))
	for _, a := range added {
		fp := hashing.ColumnFingerprint(columnValues(current.Rows, a.Position))
		addedFp[fp] = append(addedFp[fp], a)
	}

	var renamed []ColumnRename
	var stillRemoved []ColumnRemove
	consumed := make(map[string]bool, len(added))

	for _, r := range removed {
		fp := hashing.ColumnFingerprint(columnValues(baseline.Rows, r.Position))
		candidates := addedFp[fp]
		var match *ColumnAdd
		for i := range candidates {
			key := candidates[i].Name
			if !consumed[key] {
				match = &candidates[i]
				consumed[key] = true
				break
			}
		}
		if match != nil {
			renamed = append(renamed, ColumnRename{From: r.Name, To: match.Name})
		} else {
			stillRemoved = append(stillRemoved, r)
		}
	}

	var stillAdded []ColumnAdd
	for _, a := range added {
		if !consumed[a.Name] {
			stillAdded = append(stillAdded, a)
		}
	}
	return renamed, stillAdded, stillRemoved
}

func columnValues(rows []tablesource.Row, pos int) []tablesource.Value {
	values := make([]tablesource.Value, len(rows))
	for i, row := range rows {
		if pos < len(row) {
			values[i] = row[pos]
		} else {
			values[i] = tablesource.NullValue()
		}
	}
	return values
}

// intersectionSchema returns the columns present in both schemas, ordered
// as they appear in baseline, per spec.md §4.6.2 step 1.
func intersectionSchema(baseline, current tablesource.Schema) tablesource.Schema {
	cIdx := make(map[string]bool, len(current))
	for _, c := range current {
		cIdx[c.Name] = true
	}
	var out tablesource.Schema
	for _, c := range baseline {
		if cIdx[c.Name] {
			out = append(out, c)
		}
	}
	return out
}

// projectRow picks, for each column in schema, the value at that column's
// position in the source schema (full), producing a row aligned to
// schema's order for fingerprinting or comparison.
func projectRow(full tablesource.Schema, row tablesource.Row, schema tablesource.Schema) tablesource.Row {
	out := make(tablesource.Row, len(schema))
	for i, col := range schema {
		idx := full.IndexOf(col.Name)
		if idx < 0 || idx >= len(row) {
			out[i] = tablesource.NullValue()
			continue
		}
		out[i] = row[idx]
	}
	return out
}
