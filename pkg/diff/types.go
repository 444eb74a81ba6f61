// Package diff implements the Change Detector: schema diffing, fingerprint
// row pairing and classification, cell-level comparison, and the
// derivation of an ordered rollback-operation list (spec.md §4.6).
package diff

import "github.com/peter-fm/tabdiff/pkg/tablesource"

// Table is the minimal input the Change Detector needs: a schema and its
// materialized rows. Both baseline and current are passed this way so
// pkg/diff has no dependency on how either was loaded (scan vs. archive
// reconstruction).
type Table struct {
	Schema tablesource.Schema
	Rows   []tablesource.Row
}

// ColumnAdd describes a column present in current but not baseline.
type ColumnAdd struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Position int    `json:"position"`
}

// ColumnRemove describes a column present in baseline but not current.
type ColumnRemove struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Position int    `json:"position"`
}

// ColumnRename pairs a removed and an added column identified by matching
// ColumnFingerprint (spec.md §4.6.1).
type ColumnRename struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// TypeChange describes a column present in both schemas whose declared
// type differs.
type TypeChange struct {
	Name   string `json:"name"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// SchemaChanges is the result of comparing two schemas by name (spec.md
// §4.6.1). Added/Removed exclude columns resolved as Renamed.
type SchemaChanges struct {
	Reordered  bool           `json:"reordered,omitempty"`
	Before     []string       `json:"order_before,omitempty"`
	After      []string       `json:"order_after,omitempty"`
	Added      []ColumnAdd    `json:"columns_added,omitempty"`
	Removed    []ColumnRemove `json:"columns_removed,omitempty"`
	Renamed    []ColumnRename `json:"columns_renamed,omitempty"`
	TypeChanges []TypeChange  `json:"type_changes,omitempty"`
}

// IsEmpty reports whether the two schemas were identical.
func (c SchemaChanges) IsEmpty() bool {
	return !c.Reordered && len(c.Added) == 0 && len(c.Removed) == 0 &&
		len(c.Renamed) == 0 && len(c.TypeChanges) == 0
}

// CellChange is one differing cell within a modified row.
type CellChange struct {
	Before tablesource.Value `json:"before"`
	After  tablesource.Value `json:"after"`
}

// ModifiedRow pairs a baseline row index with a current row index and the
// cells that differ between them.
type ModifiedRow struct {
	BIndex  int                   `json:"base_row_index"`
	CIndex  int                   `json:"row_index"`
	Changes map[string]CellChange `json:"changes"`
}

// AddedRow is a current-only row (no baseline counterpart).
type AddedRow struct {
	CIndex int                          `json:"row_index"`
	Data   map[string]tablesource.Value `json:"data"`
}

// RemovedRow is a baseline-only row (no current counterpart).
type RemovedRow struct {
	BIndex int                          `json:"row_index"`
	Data   map[string]tablesource.Value `json:"data"`
}

// UnchangedRow pairs a baseline row index with its current row index for a
// row the fingerprint pairing matched as identical (spec.md §4.6.2 step 3).
// It carries no cell data of its own; it exists so rollback-op synthesis
// can locate a surviving row's baseline index when a column removal needs
// its historical value restored (see synthesizeRollbackOps).
type UnchangedRow struct {
	BIndex int
	CIndex int
}

// RowChanges is the result of pairing and classifying rows (spec.md
// §4.6.2-§4.6.3). Unchanged is excluded from the change report JSON
// (spec.md §6 only names modified/added/removed); it is internal
// bookkeeping for rollback-op synthesis.
type RowChanges struct {
	Unchanged []UnchangedRow `json:"-"`
	Modified  []ModifiedRow  `json:"modified"`
	Added     []AddedRow     `json:"added"`
	Removed   []RemovedRow   `json:"removed"`
}

// IsEmpty reports whether no rows differ.
func (c RowChanges) IsEmpty() bool {
	return len(c.Modified) == 0 && len(c.Added) == 0 && len(c.Removed) == 0
}

// RollbackOp is one step of the ordered operation list that transforms the
// current table into the baseline state (spec.md §4.6.4). Parameters is a
// flat, JSON-friendly bag rather than N typed structs, mirroring the
// teacher's generic Filter{Field, Operator, Value} query-condition shape.
type RollbackOp struct {
	Type       string         `json:"operation_type"`
	Parameters map[string]any `json:"parameters"`
}

func RemoveRowOp(rowIndex int) RollbackOp {
	return RollbackOp{Type: "RemoveRow", Parameters: map[string]any{"row_index": rowIndex}}
}

func InsertRowOp(rowIndex int, values map[string]tablesource.Value) RollbackOp {
	return RollbackOp{Type: "InsertRow", Parameters: map[string]any{"row_index": rowIndex, "values": values}}
}

func UpdateCellOp(rowIndex int, column string, value tablesource.Value) RollbackOp {
	return RollbackOp{Type: "UpdateCell", Parameters: map[string]any{"row_index": rowIndex, "column": column, "value": value}}
}

func RenameColumnOp(from, to string) RollbackOp {
	return RollbackOp{Type: "RenameColumn", Parameters: map[string]any{"from": from, "to": to}}
}

func AddColumnOp(name, typ string, position int, def tablesource.Value) RollbackOp {
	return RollbackOp{Type: "AddColumn", Parameters: map[string]any{"name": name, "type": typ, "position": position, "default": def}}
}

func RemoveColumnOp(name string) RollbackOp {
	return RollbackOp{Type: "RemoveColumn", Parameters: map[string]any{"name": name}}
}

func ReorderColumnsOp(finalOrder []string) RollbackOp {
	return RollbackOp{Type: "ReorderColumns", Parameters: map[string]any{"final_order": finalOrder}}
}

func ChangeTypeOp(name, newType string) RollbackOp {
	return RollbackOp{Type: "ChangeType", Parameters: map[string]any{"name": name, "new_type": newType}}
}

// ChangeSet is the full output of the Change Detector (spec.md §4.6).
type ChangeSet struct {
	SchemaChanges     SchemaChanges `json:"schema_changes"`
	RowChanges        RowChanges    `json:"row_changes"`
	RollbackOperations []RollbackOp `json:"rollback_operations"`
}

// IsEmpty reports whether baseline and current describe the same table
// (spec.md §8 invariant 6: detect(snapshot(T), T) is empty).
func (c ChangeSet) IsEmpty() bool {
	return c.SchemaChanges.IsEmpty() && c.RowChanges.IsEmpty()
}
