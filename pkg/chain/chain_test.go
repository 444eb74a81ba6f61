package chain

import (
	"context"
	"testing"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-fm/tabdiff/pkg/diff"
	"github.com/peter-fm/tabdiff/pkg/hashing"
	"github.com/peter-fm/tabdiff/pkg/snapshot"
	"github.com/peter-fm/tabdiff/pkg/store"
	"github.com/peter-fm/tabdiff/pkg/tablesource"
)

func col(names ...string) tablesource.Schema {
	s := make(tablesource.Schema, len(names))
	for i, n := range names {
		s[i] = tablesource.Column{Name: n, Type: "string", Nullable: true}
	}
	return s
}

func row(vals ...string) tablesource.Row {
	r := make(tablesource.Row, len(vals))
	for i, v := range vals {
		r[i] = tablesource.StrValue(v)
	}
	return r
}

// writeTestSnapshot hashes schema/rows, optionally diffs against parent to
// build a forward delta, and persists Summary+Archive via the real store
// and snapshot packages — the same path pkg/writer will drive in
// production, just assembled by hand here to exercise pkg/chain in
// isolation.
func writeTestSnapshot(t *testing.T, st *store.Store, name string, parent *snapshot.Summary, seq int, schema tablesource.Schema, rows []tablesource.Row, keepFull bool) *snapshot.Summary {
	t.Helper()

	h := hashing.New(schema, nil)
	require.NoError(t, h.WriteBatch(context.Background(), tablesource.RowBatch{Rows: rows}))

	columns := orderedmap.New[string, string]()
	colFps := h.ColumnFingerprints()
	for i, c := range schema {
		columns.Set(c.Name, colFps[i])
	}

	sum := &snapshot.Summary{
		FormatVersion: snapshot.FormatVersion,
		Name:          name,
		Created:       time.Now().UTC().Add(time.Duration(seq) * time.Second),
		Source:        "file",
		SourcePath:    "/data/t.csv",
		RowCount:      len(rows),
		ColumnCount:   len(schema),
		SchemaHash:    h.SchemaFingerprint(),
		Columns:       columns,
		HasFullData:   keepFull,
		SequenceNumber: seq,
	}

	a := snapshot.Archive{
		Metadata: snapshot.Metadata{Summary: *sum, ArchiveSchemaVersion: snapshot.ArchiveSchemaVersion},
		Schema:   snapshot.SchemaToWire(schema, colFps),
	}
	if keepFull {
		a.FullRows = rows
	}

	if parent != nil {
		sum.ParentSnapshot = parent.Name
		a.Metadata.ParentSnapshot = parent.Name

		parentArchive, err := st.LoadArchive(parent.Name)
		require.NoError(t, err)
		parentSchema := parentArchive.Schema.ToSchema()
		var parentRows []tablesource.Row
		if parentArchive.Metadata.HasFullData {
			parentRows = parentArchive.FullRows
		} else {
			mgr := New(st)
			parentSchema, parentRows, err = mgr.Reconstruct(parent.Name)
			require.NoError(t, err)
		}

		cs, err := diff.Detect(context.Background(), nil, diff.Table{Schema: parentSchema, Rows: parentRows}, diff.Table{Schema: schema, Rows: rows})
		require.NoError(t, err)

		addedValues := make(map[string][]tablesource.Value)
		for _, added := range cs.SchemaChanges.Added {
			idx := schema.IndexOf(added.Name)
			values := make([]tablesource.Value, len(rows))
			for i, r := range rows {
				if idx < len(r) {
					values[i] = r[idx]
				}
			}
			addedValues[added.Name] = values
		}

		delta := &snapshot.ForwardDelta{
			ParentName:        parent.Name,
			SchemaChanges:      cs.SchemaChanges,
			RowChanges:         cs.RowChanges,
			AddedColumnValues:  addedValues,
		}
		a.Delta = delta
		sum.DeltaFromParent = &snapshot.DeltaRef{ParentName: parent.Name}
		a.Metadata.DeltaFromParent = sum.DeltaFromParent
	}

	require.NoError(t, snapshot.WriteArchive(st.ArchivePath(name), a))
	require.NoError(t, st.WriteSummary(sum))
	return sum
}

func TestReconstructAfterCleanup(t *testing.T) {
	dir := t.TempDir()
	st := store.New(dir)

	schema := col("id", "v")
	rows0 := []tablesource.Row{row("1", "a"), row("2", "b")}
	rows1 := []tablesource.Row{row("1", "a"), row("2", "c")}
	rows2 := []tablesource.Row{row("1", "a"), row("2", "c"), row("3", "d")}

	v0 := writeTestSnapshot(t, st, "v0", nil, 0, schema, rows0, true)
	v1 := writeTestSnapshot(t, st, "v1", v0, 1, schema, rows1, true)
	_ = writeTestSnapshot(t, st, "v2", v1, 2, schema, rows2, true)

	mgr := New(st)

	candidates, err := mgr.Cleanup(1, false)
	require.NoError(t, err)
	var names []string
	for _, c := range candidates {
		names = append(names, c.Name)
	}
	assert.NotContains(t, names, "v2")
	assert.NotContains(t, names, "v0") // root never stripped

	_, rowsGot, err := mgr.Reconstruct("v0")
	require.NoError(t, err)
	assert.Equal(t, rows0, rowsGot)

	_, rowsGot, err = mgr.Reconstruct("v1")
	require.NoError(t, err)
	assert.Equal(t, rows1, rowsGot)

	_, rowsGot, err = mgr.Reconstruct("v2")
	require.NoError(t, err)
	assert.Equal(t, rows2, rowsGot)
}

func TestSelectParent(t *testing.T) {
	dir := t.TempDir()
	st := store.New(dir)
	schema := col("id")
	v0 := writeTestSnapshot(t, st, "v0", nil, 0, schema, []tablesource.Row{row("1")}, true)
	writeTestSnapshot(t, st, "v1", v0, 1, schema, []tablesource.Row{row("1"), row("2")}, true)

	mgr := New(st)
	parent, err := mgr.SelectParent("/data/t.csv")
	require.NoError(t, err)
	require.NotNil(t, parent)
	assert.Equal(t, "v1", parent.Name)

	none, err := mgr.SelectParent("/data/other.csv")
	require.NoError(t, err)
	assert.Nil(t, none)
}
