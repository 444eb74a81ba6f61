package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run builds a fresh root command and executes it with args, resetting the
// package-level flags struct first since cobra binds persistent flags to
// it once at construction time (mirrors calling the real binary once per
// invocation).
func run(t *testing.T, args ...string) error {
	t.Helper()
	flags = globalFlags{}
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	return cmd.Execute()
}

func writeCSV(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// TestLifecycle drives init -> snapshot -> status -> snapshot -> diff ->
// rollback through the actual cobra command tree, the same surface a real
// invocation of the tabdiff binary exercises.
func TestLifecycle(t *testing.T) {
	root := t.TempDir()
	dataPath := filepath.Join(root, "data.csv")
	writeCSV(t, dataPath, "id,rating\n1,4.5\n2,3.8\n")

	require.NoError(t, run(t, "--root", root, "init"))
	assert.DirExists(t, filepath.Join(root, ".tabdiff"))

	require.NoError(t, run(t, "--root", root, "snapshot", dataPath, "v0"))
	assert.FileExists(t, filepath.Join(root, ".tabdiff", "v0.json"))
	assert.FileExists(t, filepath.Join(root, ".tabdiff", "v0.tabdiff"))

	// No edits yet: status against the baseline should report no changes.
	require.NoError(t, run(t, "--root", root, "status", dataPath, "--baseline", "v0"))

	// Edit a cell, then take a second snapshot.
	writeCSV(t, dataPath, "id,rating\n1,4.7\n2,3.8\n")
	require.NoError(t, run(t, "--root", root, "snapshot", dataPath, "v1"))

	require.NoError(t, run(t, "--root", root, "diff", "v0", "v1", "--save"))
	assert.FileExists(t, filepath.Join(root, ".tabdiff", "diffs", "v0-v1.json"))

	require.NoError(t, run(t, "--root", root, "list"))

	// Roll back to v0 and confirm the file reverts.
	require.NoError(t, run(t, "--root", root, "rollback", dataPath, "v0", "--backup=false"))
	content, err := os.ReadFile(dataPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "4.5")
	assert.NotContains(t, string(content), "4.7")
}

func TestSnapshotRejectsDuplicateName(t *testing.T) {
	root := t.TempDir()
	dataPath := filepath.Join(root, "data.csv")
	writeCSV(t, dataPath, "id\n1\n2\n")

	require.NoError(t, run(t, "--root", root, "init"))
	require.NoError(t, run(t, "--root", root, "snapshot", dataPath, "v0"))

	err := run(t, "--root", root, "snapshot", dataPath, "v0")
	require.Error(t, err)
}

func TestCleanupDryRunReportsWithoutMutating(t *testing.T) {
	root := t.TempDir()
	dataPath := filepath.Join(root, "data.csv")

	require.NoError(t, run(t, "--root", root, "init"))
	for i, row := range []string{"1,a\n", "2,b\n", "3,c\n"} {
		writeCSV(t, dataPath, "id,val\n"+row)
		require.NoError(t, run(t, "--root", root, "snapshot", dataPath, snapName(i)))
	}

	require.NoError(t, run(t, "--root", root, "cleanup", "--keep-full", "1", "--dry-run"))

	// v1 is the only real cleanup candidate (v0 is the chain root and is
	// never stripped, v2 is the most-recently-created full snapshot kept
	// by keep-full=1); a dry run must leave it untouched.
	sum, err := os.ReadFile(filepath.Join(root, ".tabdiff", "v1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(sum), `"has_full_data": true`)

	require.NoError(t, run(t, "--root", root, "cleanup", "--keep-full", "1"))
	sum, err = os.ReadFile(filepath.Join(root, ".tabdiff", "v1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(sum), `"has_full_data": false`)
}

func snapName(i int) string {
	return "v" + string(rune('0'+i))
}

func TestListMissingWorkspaceFails(t *testing.T) {
	root := t.TempDir()
	require.Error(t, run(t, "--root", root, "list"))
}

// TestWatchCommandRegistered checks the watch subcommand is wired into the
// root command with its expected flags, without invoking RunE (which
// blocks on filesystem events until interrupted).
func TestWatchCommandRegistered(t *testing.T) {
	root := newRootCmd()
	watchCmd, _, err := root.Find([]string{"watch"})
	require.NoError(t, err)
	assert.Equal(t, "watch", watchCmd.Name())
	assert.NotNil(t, watchCmd.Flags().Lookup("sql-driver"))
	assert.NotNil(t, watchCmd.Flags().Lookup("baseline"))
}
