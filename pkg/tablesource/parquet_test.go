package tablesource

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAndScanParquet_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.parquet")

	schema := Schema{
		{Name: "id", Type: "int64", Nullable: false},
		{Name: "name", Type: "string", Nullable: true},
	}
	rows := []Row{
		{StrValue("1"), StrValue("alice")},
		{StrValue("2"), NullValue()},
	}

	require.NoError(t, WriteParquet(path, schema, rows, "zstd"))

	src := newParquetSource(path)
	got, err := src.Describe(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name"}, got.Names())

	stream, err := src.Scan(context.Background(), 1)
	require.NoError(t, err)
	defer stream.Close()

	var all []Row
	for {
		batch, more, err := stream.Next(context.Background())
		require.NoError(t, err)
		all = append(all, batch.Rows...)
		if !more {
			break
		}
	}
	require.Len(t, all, 2)
	require.Equal(t, "1", all[0][0].Str)
	require.Equal(t, "alice", all[0][1].Str)
	require.True(t, all[1][1].Null)
}

func TestParquetSource_MissingFile(t *testing.T) {
	src := newParquetSource("/nonexistent/path.parquet")
	_, err := src.Describe(context.Background())
	require.Error(t, err)
}
