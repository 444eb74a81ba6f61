package hashing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-fm/tabdiff/pkg/tablesource"
	"github.com/peter-fm/tabdiff/pkg/workerpool"
)

func testSchema() tablesource.Schema {
	return tablesource.Schema{
		{Name: "id", Type: "string", Nullable: false},
		{Name: "name", Type: "string", Nullable: true},
	}
}

func TestSchemaFingerprint_StableAndSensitiveToOrder(t *testing.T) {
	a := testSchema()
	b := tablesource.Schema{a[1], a[0]}

	assert.Equal(t, SchemaFingerprint(a), SchemaFingerprint(a))
	assert.NotEqual(t, SchemaFingerprint(a), SchemaFingerprint(b), "column reorder must change the schema fingerprint")
}

func TestRowFingerprint_NullDistinctFromEmptyString(t *testing.T) {
	schema := testSchema()
	nullRow := tablesource.Row{tablesource.StrValue("1"), tablesource.NullValue()}
	emptyRow := tablesource.Row{tablesource.StrValue("1"), tablesource.StrValue("")}

	assert.NotEqual(t, RowFingerprint(schema, nullRow), RowFingerprint(schema, emptyRow))
}

func TestRowFingerprint_DuplicateRowsMatch(t *testing.T) {
	schema := testSchema()
	row1 := tablesource.Row{tablesource.StrValue("1"), tablesource.StrValue("alice")}
	row2 := tablesource.Row{tablesource.StrValue("1"), tablesource.StrValue("alice")}
	assert.Equal(t, RowFingerprint(schema, row1), RowFingerprint(schema, row2))
}

func TestHasher_WriteBatchPreservesOrderAndCounts(t *testing.T) {
	schema := testSchema()
	pool := workerpool.New(4)
	defer pool.Close()

	h := New(schema, pool)
	batch1 := tablesource.RowBatch{Rows: []tablesource.Row{
		{tablesource.StrValue("1"), tablesource.StrValue("a")},
		{tablesource.StrValue("2"), tablesource.StrValue("b")},
	}}
	batch2 := tablesource.RowBatch{Rows: []tablesource.Row{
		{tablesource.StrValue("3"), tablesource.StrValue("c")},
	}}

	require.NoError(t, h.WriteBatch(context.Background(), batch1))
	require.NoError(t, h.WriteBatch(context.Background(), batch2))

	assert.Equal(t, 3, h.RowCount())
	require.Len(t, h.RowFingerprints(), 3)
	assert.Equal(t, RowFingerprint(schema, batch1.Rows[0]), h.RowFingerprints()[0])
	assert.Equal(t, RowFingerprint(schema, batch1.Rows[1]), h.RowFingerprints()[1])
	assert.Equal(t, RowFingerprint(schema, batch2.Rows[0]), h.RowFingerprints()[2])
}

func TestHasher_ColumnFingerprintDependsOnAllRowsSeen(t *testing.T) {
	schema := testSchema()

	h1 := New(schema, nil)
	require.NoError(t, h1.WriteBatch(context.Background(), tablesource.RowBatch{Rows: []tablesource.Row{
		{tablesource.StrValue("1"), tablesource.StrValue("a")},
	}}))

	h2 := New(schema, nil)
	require.NoError(t, h2.WriteBatch(context.Background(), tablesource.RowBatch{Rows: []tablesource.Row{
		{tablesource.StrValue("1"), tablesource.StrValue("a")},
		{tablesource.StrValue("2"), tablesource.StrValue("b")},
	}}))

	assert.NotEqual(t, h1.ColumnFingerprints()[1], h2.ColumnFingerprints()[1])
}

func TestHasher_EmptyBatchIsNoop(t *testing.T) {
	h := New(testSchema(), nil)
	require.NoError(t, h.WriteBatch(context.Background(), tablesource.RowBatch{}))
	assert.Equal(t, 0, h.RowCount())
}
