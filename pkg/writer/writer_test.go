package writer

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
)

func writeCSV(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newWriter(t *testing.T) (*Writer, *store.Store, string) {
	t.Helper()
	tabdiffDir := t.TempDir()
	st := store.New(tabdiffDir)
	require.NoError(t, os.MkdirAll(tabdiffDir, 0755))
	mgr := chain.New(st)
	return New(st, mgr, nil), st, tabdiffDir
}

func TestCreateRootSnapshot(t *testing.T) {
	w, st, _ := newWriter(t)
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, "t.csv")
	writeCSV(t, path, "id,val\n1,a\n2,b\n")

	src, err := tablesource.Open(path)
	require.NoError(t, err)

	res, err := w.Create(context.Background(), src, "v0", Options{FullData: true})
	require.NoError(t, err)
	assert.Equal(t, "v0", res.Summary.Name)
	assert.Equal(t, 2, res.Summary.RowCount)
	assert.True(t, res.Summary.HasFullData)
	assert.Equal(t, 0, res.Summary.SequenceNumber)
	assert.Empty(t, res.Summary.ParentSnapshot)

	assert.True(t, st.Exists("v0"))
}

func TestCreateChildSnapshotBuildsDelta(t *testing.T) {
	w, st, _ := newWriter(t)
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, "t.csv")
	writeCSV(t, path, "id,val\n1,a\n2,b\n")

	src, err := tablesource.Open(path)
	require.NoError(t, err)
	_, err = w.Create(context.Background(), src, "v0", Options{FullData: true})
	require.NoError(t, err)

	writeCSV(t, path, "id,val\n1,a\n2,c\n")
	src2, err := tablesource.Open(path)
	require.NoError(t, err)
	res, err := w.Create(context.Background(), src2, "v1", Options{FullData: true})
	require.NoError(t, err)

	assert.Equal(t, "v0", res.Summary.ParentSnapshot)
	assert.Equal(t, 1, res.Summary.SequenceNumber)
	require.NotNil(t, res.Summary.DeltaFromParent)

	archive, err := st.LoadArchive("v1")
	require.NoError(t, err)
	require.NotNil(t, archive.Delta)
	assert.Len(t, archive.Delta.RowChanges.Modified, 1)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	w, _, _ := newWriter(t)
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, "t.csv")
	writeCSV(t, path, "id\n1\n")
	src, err := tablesource.Open(path)
	require.NoError(t, err)

	_, err = w.Create(context.Background(), src, "v0", Options{FullData: true})
	require.NoError(t, err)

	_, err = w.Create(context.Background(), src, "v0", Options{FullData: true})
	require.Error(t, err)
}

func TestCreateRejectsEmptySchema(t *testing.T) {
	w, _, _ := newWriter(t)
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, "empty.csv")
	writeCSV(t, path, "")
	src, err := tablesource.Open(path)
	require.NoError(t, err)

	_, err = w.Create(context.Background(), src, "v0", Options{FullData: true})
	require.Error(t, err)
}
