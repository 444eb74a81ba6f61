package workspace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peter-fm/tabdiff/pkg/errs"
)

// DirName is the workspace metadata directory's name, rooted wherever
// `tabdiff init` was run.
const DirName = ".tabdiff"

// diffsDirName holds persisted diff reports (spec.md §6 layout).
const diffsDirName = "diffs"

const configFileName = "config.json"

// gitignoreEntries are appended to the workspace root's .gitignore by
// Init: archives are content-addressed binary blobs, summaries are the
// version-controlled artifact (spec.md §6 layout comment).
var gitignoreEntries = []string{"*.tabdiff", diffsDirName + "/"}

// Workspace is an opened `.tabdiff/` directory: its root, its config, and
// the paths every other package needs.
type Workspace struct {
	Root   string
	Dir    string
	Config *Config
}

// StoreDir is where Summaries and Archives live — the Snapshot Store's
// root directory.
func (w *Workspace) StoreDir() string { return w.Dir }

// DiffsDir is where persisted diff reports (`diffs/<a>-<b>.json`) live.
func (w *Workspace) DiffsDir() string { return filepath.Join(w.Dir, diffsDirName) }

func configPath(dir string) string { return filepath.Join(dir, configFileName) }

// Init bootstraps a new workspace at root: creates `.tabdiff/` and
// `.tabdiff/diffs/`, writes a default config.json, and appends tabdiff's
// ignore entries to root's .gitignore (spec.md §6). Init is idempotent on
// the .gitignore step but fails if `.tabdiff/` already exists, mirroring
// the teacher's refusal to silently clobber existing state.
func Init(root string) (*Workspace, error) {
	dir := filepath.Join(root, DirName)
	if _, err := os.Stat(dir); err == nil {
		return nil, errs.New(errs.KindNameExists, dir)
	}
	if err := os.MkdirAll(filepath.Join(dir, diffsDirName), 0755); err != nil {
		return nil, errs.Wrap(errs.KindIOError, dir, err)
	}

	cfg := DefaultConfig()
	if err := writeConfig(dir, cfg); err != nil {
		return nil, err
	}
	if err := bootstrapGitignore(root); err != nil {
		return nil, err
	}

	return &Workspace{Root: root, Dir: dir, Config: cfg}, nil
}

// Open loads an existing workspace at root, failing with WorkspaceMissing
// if `.tabdiff/` isn't there and WorkspaceCorrupt if its config.json
// doesn't parse.
func Open(root string) (*Workspace, error) {
	dir := filepath.Join(root, DirName)
	if _, err := os.Stat(dir); err != nil {
		return nil, errs.Wrap(errs.KindWorkspaceMissing, dir, err)
	}
	cfg, err := LoadConfig(configPath(dir))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, diffsDirName), 0755); err != nil {
		return nil, errs.Wrap(errs.KindIOError, dir, err)
	}
	return &Workspace{Root: root, Dir: dir, Config: cfg}, nil
}

func writeConfig(dir string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal workspace config: %w", err)
	}
	path := configPath(dir)
	tmp, err := os.CreateTemp(dir, ".config_*.tmp")
	if err != nil {
		return errs.Wrap(errs.KindIOError, path, err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		return errs.Wrap(errs.KindIOError, path, err)
	}
	if err := tmp.Close(); err != nil {
		return errs.Wrap(errs.KindIOError, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errs.Wrap(errs.KindIOError, path, err)
	}
	success = true
	return nil
}

// bootstrapGitignore appends tabdiff's ignore entries to root's
// .gitignore, creating the file if absent and skipping entries already
// present so re-running `tabdiff init` after a manual edit never
// duplicates lines.
func bootstrapGitignore(root string) error {
	path := filepath.Join(root, ".gitignore")
	existing := map[string]bool{}
	if f, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			existing[strings.TrimSpace(scanner.Text())] = true
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return errs.Wrap(errs.KindIOError, path, err)
	}

	var missing []string
	for _, e := range gitignoreEntries {
		if !existing[e] {
			missing = append(missing, e)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errs.Wrap(errs.KindIOError, path, err)
	}
	defer f.Close()
	if len(existing) > 0 {
		if _, err := f.WriteString("\n"); err != nil {
			return errs.Wrap(errs.KindIOError, path, err)
		}
	}
	for _, e := range missing {
		if _, err := f.WriteString(e + "\n"); err != nil {
			return errs.Wrap(errs.KindIOError, path, err)
		}
	}
	return nil
}
