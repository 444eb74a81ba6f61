package tablesource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONSource_DescribeAndScan(t *testing.T) {
	path := writeTempFile(t, "data.json", `[
		{"id": 1, "name": "alice", "active": true},
		{"id": 2, "name": null}
	]`)
	src := newJSONSource(path)

	schema, err := src.Describe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "active"}, schema.Names())

	stream, err := src.Scan(context.Background(), 10)
	require.NoError(t, err)
	defer stream.Close()

	batch, more, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, batch.Rows, 2)
	assert.Equal(t, "1", batch.Rows[0][0].Str)
	assert.Equal(t, "true", batch.Rows[0][2].Str)
	assert.True(t, batch.Rows[1][1].Null, "explicit null and missing key are both null")
	assert.True(t, batch.Rows[1][2].Null, "column missing from later row is null, not an error")
}

func TestJSONSource_EmptyArrayIsSchemaEmpty(t *testing.T) {
	path := writeTempFile(t, "empty.json", `[]`)
	src := newJSONSource(path)
	_, err := src.Describe(context.Background())
	require.Error(t, err)
}

func TestJSONSource_NestedValueIsCanonicalJSON(t *testing.T) {
	path := writeTempFile(t, "nested.json", `[{"id": 1, "tags": ["a","b"]}]`)
	src := newJSONSource(path)
	stream, err := src.Scan(context.Background(), 10)
	require.NoError(t, err)
	defer stream.Close()
	batch, _, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, batch.Rows[0][1].Str)
}
