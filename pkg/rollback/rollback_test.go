package rollback

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peter-fm/tabdiff/pkg/chain"
	"github.com/peter-fm/tabdiff/pkg/store"
	"github.com/peter-fm/tabdiff/pkg/tablesource"
	"github.com/peter-fm/tabdiff/pkg/writer"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// setup creates a workspace (Store + Chain + Writer + Executor) and a data
// file at path, returning everything a test needs to snapshot, mutate, and
// roll back.
func setup(t *testing.T) (*store.Store, *chain.Manager, *writer.Writer, *Executor, string) {
	t.Helper()
	st := store.New(t.TempDir())
	mgr := chain.New(st)
	w := writer.New(st, mgr, nil)
	ex := New(st, mgr, nil)
	dataDir := t.TempDir()
	return st, mgr, w, ex, dataDir
}

func readCSV(t *testing.T, path string) (tablesource.Schema, []tablesource.Row) {
	t.Helper()
	src, err := tablesource.Open(path)
	require.NoError(t, err)
	schema, err := src.Describe(context.Background())
	require.NoError(t, err)
	stream, err := src.Scan(context.Background(), tablesource.DefaultBatchSize)
	require.NoError(t, err)
	defer stream.Close()
	var rows []tablesource.Row
	for {
		batch, more, err := stream.Next(context.Background())
		require.NoError(t, err)
		rows = append(rows, batch.Rows...)
		if !more {
			break
		}
	}
	return schema, rows
}

func TestRollbackCellEdit(t *testing.T) {
	_, _, w, ex, dataDir := setup(t)
	path := filepath.Join(dataDir, "t.csv")
	writeFile(t, path, "id,val\n1,a\n2,b\n")

	src, err := tablesource.Open(path)
	require.NoError(t, err)
	_, err = w.Create(context.Background(), src, "v0", writer.Options{FullData: true})
	require.NoError(t, err)

	writeFile(t, path, "id,val\n1,a\n2,c\n")

	src2, err := tablesource.Open(path)
	require.NoError(t, err)
	report, err := ex.Rollback(context.Background(), src2, "v0", Options{Backup: true})
	require.NoError(t, err)
	assert.True(t, report.Verified)
	assert.Equal(t, 1, report.OpsApplied)
	assert.FileExists(t, report.BackupPath)

	_, rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, "b", rows[1][1].Str)
}

func TestRollbackAddedRow(t *testing.T) {
	_, _, w, ex, dataDir := setup(t)
	path := filepath.Join(dataDir, "t.csv")
	writeFile(t, path, "id,val\n1,a\n")

	src, err := tablesource.Open(path)
	require.NoError(t, err)
	_, err = w.Create(context.Background(), src, "v0", writer.Options{FullData: true})
	require.NoError(t, err)

	writeFile(t, path, "id,val\n1,a\n2,b\n")

	src2, err := tablesource.Open(path)
	require.NoError(t, err)
	report, err := ex.Rollback(context.Background(), src2, "v0", Options{Backup: false})
	require.NoError(t, err)
	assert.True(t, report.Verified)

	_, rows := readCSV(t, path)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0][0].Str)
}

func TestRollbackRemovedRow(t *testing.T) {
	_, _, w, ex, dataDir := setup(t)
	path := filepath.Join(dataDir, "t.csv")
	writeFile(t, path, "id,val\n1,a\n2,b\n")

	src, err := tablesource.Open(path)
	require.NoError(t, err)
	_, err = w.Create(context.Background(), src, "v0", writer.Options{FullData: true})
	require.NoError(t, err)

	writeFile(t, path, "id,val\n1,a\n")

	src2, err := tablesource.Open(path)
	require.NoError(t, err)
	report, err := ex.Rollback(context.Background(), src2, "v0", Options{})
	require.NoError(t, err)
	assert.True(t, report.Verified)

	_, rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, "2", rows[1][0].Str)
	assert.Equal(t, "b", rows[1][1].Str)
}

func TestRollbackColumnRename(t *testing.T) {
	_, _, w, ex, dataDir := setup(t)
	path := filepath.Join(dataDir, "t.csv")
	writeFile(t, path, "id,val\n1,a\n")

	src, err := tablesource.Open(path)
	require.NoError(t, err)
	_, err = w.Create(context.Background(), src, "v0", writer.Options{FullData: true})
	require.NoError(t, err)

	writeFile(t, path, "id,value\n1,a\n")

	src2, err := tablesource.Open(path)
	require.NoError(t, err)
	report, err := ex.Rollback(context.Background(), src2, "v0", Options{})
	require.NoError(t, err)
	assert.True(t, report.Verified)

	schema, _ := readCSV(t, path)
	assert.Equal(t, []string{"id", "val"}, schema.Names())
}

// A column removed after the baseline snapshot must come back with its
// original per-row values on rollback, not nulls (spec.md §8 invariant 4).
func TestRollbackColumnRemovalRestoresValues(t *testing.T) {
	_, _, w, ex, dataDir := setup(t)
	path := filepath.Join(dataDir, "t.csv")
	writeFile(t, path, "id,rating\n1,4.5\n2,3.8\n")

	src, err := tablesource.Open(path)
	require.NoError(t, err)
	_, err = w.Create(context.Background(), src, "v0", writer.Options{FullData: true})
	require.NoError(t, err)

	writeFile(t, path, "id\n1\n2\n")

	src2, err := tablesource.Open(path)
	require.NoError(t, err)
	report, err := ex.Rollback(context.Background(), src2, "v0", Options{})
	require.NoError(t, err)
	assert.True(t, report.Verified)

	schema, rows := readCSV(t, path)
	assert.Equal(t, []string{"id", "rating"}, schema.Names())
	require.Len(t, rows, 2)
	assert.Equal(t, "4.5", rows[0][1].Str)
	assert.Equal(t, "3.8", rows[1][1].Str)
}

func TestRollbackDryRunLeavesFileUntouched(t *testing.T) {
	_, _, w, ex, dataDir := setup(t)
	path := filepath.Join(dataDir, "t.csv")
	writeFile(t, path, "id,val\n1,a\n")

	src, err := tablesource.Open(path)
	require.NoError(t, err)
	_, err = w.Create(context.Background(), src, "v0", writer.Options{FullData: true})
	require.NoError(t, err)

	writeFile(t, path, "id,val\n1,a\n2,b\n")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	src2, err := tablesource.Open(path)
	require.NoError(t, err)
	report, err := ex.Rollback(context.Background(), src2, "v0", Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.False(t, report.Verified)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRollbackRejectsSQLSource(t *testing.T) {
	_, _, _, ex, _ := setup(t)
	src, err := tablesource.OpenSQL("sqlite", ":memory:", "select 1")
	require.NoError(t, err)

	_, err = ex.Rollback(context.Background(), src, "v0", Options{})
	require.Error(t, err)
}

func TestRollbackBackupRefusesOverwriteWithoutForce(t *testing.T) {
	_, _, w, ex, dataDir := setup(t)
	path := filepath.Join(dataDir, "t.csv")
	writeFile(t, path, "id,val\n1,a\n")

	src, err := tablesource.Open(path)
	require.NoError(t, err)
	_, err = w.Create(context.Background(), src, "v0", writer.Options{FullData: true})
	require.NoError(t, err)

	writeFile(t, path+".backup", "stale backup")
	writeFile(t, path, "id,val\n1,a\n2,b\n")

	src2, err := tablesource.Open(path)
	require.NoError(t, err)
	_, err = ex.Rollback(context.Background(), src2, "v0", Options{Backup: true, Force: false})
	require.Error(t, err)
}
