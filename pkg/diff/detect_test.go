package diff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-fm/tabdiff/pkg/tablesource"
	"github.com/peter-fm/tabdiff/pkg/workerpool"
)

func schemaOf(names ...string) tablesource.Schema {
	s := make(tablesource.Schema, len(names))
	for i, n := range names {
		s[i] = tablesource.Column{Name: n, Type: "string", Nullable: true}
	}
	return s
}

func rowOf(vals ...string) tablesource.Row {
	r := make(tablesource.Row, len(vals))
	for i, v := range vals {
		r[i] = tablesource.StrValue(v)
	}
	return r
}

// S1: a single cell edit.
func TestDetectCellEdit(t *testing.T) {
	baseline := Table{Schema: schemaOf("id", "rating"), Rows: []tablesource.Row{rowOf("1", "4.5"), rowOf("2", "3.8")}}
	current := Table{Schema: schemaOf("id", "rating"), Rows: []tablesource.Row{rowOf("1", "4.7"), rowOf("2", "3.8")}}

	cs, err := Detect(context.Background(), nil, baseline, current)
	require.NoError(t, err)

	require.Len(t, cs.RowChanges.Modified, 1)
	m := cs.RowChanges.Modified[0]
	assert.Equal(t, 0, m.BIndex)
	assert.Len(t, m.Changes, 1)
	assert.Equal(t, "4.5", m.Changes["rating"].Before.Str)
	assert.Equal(t, "4.7", m.Changes["rating"].After.Str)
	assert.Empty(t, cs.RowChanges.Added)
	assert.Empty(t, cs.RowChanges.Removed)

	require.Len(t, cs.RollbackOperations, 1)
	assert.Equal(t, "UpdateCell", cs.RollbackOperations[0].Type)
	assert.Equal(t, 0, cs.RollbackOperations[0].Parameters["row_index"])
	assert.Equal(t, "rating", cs.RollbackOperations[0].Parameters["column"])
}

// S2: row append.
func TestDetectRowAppend(t *testing.T) {
	baseline := Table{Schema: schemaOf("v"), Rows: []tablesource.Row{rowOf("a"), rowOf("b")}}
	current := Table{Schema: schemaOf("v"), Rows: []tablesource.Row{rowOf("a"), rowOf("b"), rowOf("c")}}

	cs, err := Detect(context.Background(), nil, baseline, current)
	require.NoError(t, err)

	require.Len(t, cs.RowChanges.Added, 1)
	assert.Equal(t, 2, cs.RowChanges.Added[0].CIndex)
	assert.Equal(t, "c", cs.RowChanges.Added[0].Data["v"].Str)

	require.Len(t, cs.RollbackOperations, 1)
	assert.Equal(t, "RemoveRow", cs.RollbackOperations[0].Type)
	assert.Equal(t, 2, cs.RollbackOperations[0].Parameters["row_index"])
}

// S3: row delete from the middle of distinct rows.
func TestDetectRowDelete(t *testing.T) {
	baseline := Table{Schema: schemaOf("v"), Rows: []tablesource.Row{rowOf("a"), rowOf("b"), rowOf("c")}}
	current := Table{Schema: schemaOf("v"), Rows: []tablesource.Row{rowOf("a"), rowOf("c")}}

	cs, err := Detect(context.Background(), nil, baseline, current)
	require.NoError(t, err)

	require.Len(t, cs.RowChanges.Removed, 1)
	assert.Equal(t, 1, cs.RowChanges.Removed[0].BIndex)
	assert.Equal(t, "b", cs.RowChanges.Removed[0].Data["v"].Str)

	require.Len(t, cs.RollbackOperations, 1)
	assert.Equal(t, "InsertRow", cs.RollbackOperations[0].Type)
	assert.Equal(t, 1, cs.RollbackOperations[0].Parameters["row_index"])
}

// S4: column rename with identical data.
func TestDetectColumnRename(t *testing.T) {
	baseline := Table{Schema: schemaOf("id", "score"), Rows: []tablesource.Row{rowOf("1", "9")}}
	current := Table{Schema: schemaOf("id", "rating"), Rows: []tablesource.Row{rowOf("1", "9")}}

	cs, err := Detect(context.Background(), nil, baseline, current)
	require.NoError(t, err)

	require.Len(t, cs.SchemaChanges.Renamed, 1)
	assert.Equal(t, "score", cs.SchemaChanges.Renamed[0].From)
	assert.Equal(t, "rating", cs.SchemaChanges.Renamed[0].To)
	assert.True(t, cs.RowChanges.IsEmpty())

	require.NotEmpty(t, cs.RollbackOperations)
	assert.Equal(t, "RenameColumn", cs.RollbackOperations[0].Type)
	assert.Equal(t, "rating", cs.RollbackOperations[0].Parameters["from"])
	assert.Equal(t, "score", cs.RollbackOperations[0].Parameters["to"])
}

// S6: duplicate rows, single column, so similarity pass can't reclassify.
func TestDetectDuplicateRows(t *testing.T) {
	baseline := Table{Schema: schemaOf("v"), Rows: []tablesource.Row{rowOf("x"), rowOf("x"), rowOf("y")}}
	current := Table{Schema: schemaOf("v"), Rows: []tablesource.Row{rowOf("x"), rowOf("y"), rowOf("y")}}

	cs, err := Detect(context.Background(), nil, baseline, current)
	require.NoError(t, err)

	assert.Empty(t, cs.RowChanges.Modified)
	require.Len(t, cs.RowChanges.Removed, 1)
	require.Len(t, cs.RowChanges.Added, 1)
	assert.Equal(t, 1, cs.RowChanges.Removed[0].BIndex)
	assert.Equal(t, 2, cs.RowChanges.Added[0].CIndex)
}

// Invariant 6: detect(snapshot(T), T) is empty.
func TestDetectIdempotent(t *testing.T) {
	table := Table{Schema: schemaOf("id", "val"), Rows: []tablesource.Row{rowOf("1", "a"), rowOf("2", "b")}}

	cs, err := Detect(context.Background(), workerpool.New(4), table, table)
	require.NoError(t, err)
	assert.True(t, cs.IsEmpty())
	assert.Empty(t, cs.RollbackOperations)
}

func TestDetectEmptyTables(t *testing.T) {
	table := Table{Schema: schemaOf("id"), Rows: nil}
	cs, err := Detect(context.Background(), nil, table, table)
	require.NoError(t, err)
	assert.True(t, cs.IsEmpty())
}

// A column removal's rollback must restore the column's actual historical
// value for every surviving (unchanged) row via an explicit UpdateCell op,
// not leave it at the AddColumn placeholder (spec.md §8 invariant 4:
// apply(T', ops) == T).
func TestDetectColumnRemovalRollbackRestoresValues(t *testing.T) {
	baseline := Table{
		Schema: schemaOf("id", "rating"),
		Rows:   []tablesource.Row{rowOf("1", "4.5"), rowOf("2", "3.8")},
	}
	current := Table{
		Schema: schemaOf("id"),
		Rows:   []tablesource.Row{rowOf("1"), rowOf("2")},
	}

	cs, err := Detect(context.Background(), nil, baseline, current)
	require.NoError(t, err)

	require.Len(t, cs.SchemaChanges.Removed, 1)
	assert.Equal(t, "rating", cs.SchemaChanges.Removed[0].Name)

	require.Len(t, cs.RollbackOperations, 3)
	add := cs.RollbackOperations[0]
	assert.Equal(t, "AddColumn", add.Type)
	assert.Equal(t, "rating", add.Parameters["name"])
	assert.Equal(t, tablesource.NullValue(), add.Parameters["default"])

	u0, u1 := cs.RollbackOperations[1], cs.RollbackOperations[2]
	assert.Equal(t, "UpdateCell", u0.Type)
	assert.Equal(t, 0, u0.Parameters["row_index"])
	assert.Equal(t, "rating", u0.Parameters["column"])
	assert.Equal(t, "4.5", u0.Parameters["value"].(tablesource.Value).Str)

	assert.Equal(t, "UpdateCell", u1.Type)
	assert.Equal(t, 1, u1.Parameters["row_index"])
	assert.Equal(t, "3.8", u1.Parameters["value"].(tablesource.Value).Str)
}

// A removed column on a row that also had an intersection-column edit must
// still get its removed-column value restored alongside the cell edit.
func TestDetectColumnRemovalWithModifiedRowRollback(t *testing.T) {
	baseline := Table{
		Schema: schemaOf("id", "val", "rating"),
		Rows:   []tablesource.Row{rowOf("1", "a", "4.5")},
	}
	current := Table{
		Schema: schemaOf("id", "val"),
		Rows:   []tablesource.Row{rowOf("1", "b")},
	}

	cs, err := Detect(context.Background(), nil, baseline, current)
	require.NoError(t, err)

	require.Len(t, cs.RowChanges.Modified, 1)
	require.Len(t, cs.SchemaChanges.Removed, 1)

	var updateOps []diffRollbackOpSummary
	for _, op := range cs.RollbackOperations {
		if op.Type != "UpdateCell" {
			continue
		}
		updateOps = append(updateOps, diffRollbackOpSummary{
			column: op.Parameters["column"].(string),
			value:  op.Parameters["value"].(tablesource.Value).Str,
		})
	}
	require.Len(t, updateOps, 2)
	byColumn := map[string]string{updateOps[0].column: updateOps[0].value, updateOps[1].column: updateOps[1].value}
	assert.Equal(t, "a", byColumn["val"])
	assert.Equal(t, "4.5", byColumn["rating"])
}

type diffRollbackOpSummary struct {
	column string
	value  string
}

func TestDetectNullVsEmptyDistinct(t *testing.T) {
	baseline := Table{Schema: schemaOf("v"), Rows: []tablesource.Row{{tablesource.NullValue()}}}
	current := Table{Schema: schemaOf("v"), Rows: []tablesource.Row{{tablesource.StrValue("")}}}

	cs, err := Detect(context.Background(), nil, baseline, current)
	require.NoError(t, err)
	assert.False(t, cs.IsEmpty())
}
