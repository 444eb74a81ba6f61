// Package store implements the Snapshot Store (spec.md §4.4): listing,
// name/alias resolution, and cheap/eager loading of Summaries and
// Archives from a workspace directory.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peter-fm/tabdiff/pkg/errs"
	"github.com/peter-fm/tabdiff/pkg/snapshot"
)

// latestAlias is the only name alias the store understands (spec.md §4.4).
const latestAlias = "latest"

// Store resolves snapshot names against the summaries/archives under one
// workspace directory (the `.tabdiff/` directory, not the workspace root).
type Store struct {
	Dir string
}

// New builds a Store rooted at dir (a workspace's `.tabdiff/` directory).
func New(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) summaryPath(name string) string {
	return filepath.Join(s.Dir, name+".json")
}

func (s *Store) archivePath(name string) string {
	return filepath.Join(s.Dir, name+".tabdiff")
}

// reservedNames excludes the workspace's own non-snapshot JSON files from
// listing.
var reservedNames = map[string]bool{"config": true}

// List returns every snapshot Summary in the workspace, in no particular
// order; callers needing a specific order should sort explicitly.
func (s *Store) List() ([]*snapshot.Summary, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.KindWorkspaceMissing, s.Dir, err)
		}
		return nil, errs.Wrap(errs.KindIOError, s.Dir, err)
	}

	var out []*snapshot.Summary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		if reservedNames[name] {
			continue
		}
		sum, err := s.LoadSummary(name)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// Exists reports whether a snapshot named name has a Summary on disk.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.summaryPath(name))
	return err == nil
}

// LoadSummary reads and parses one snapshot's Summary. Name resolution is
// case-sensitive (spec.md §4.4); "latest" is not a valid input here, use
// Resolve first.
func (s *Store) LoadSummary(name string) (*snapshot.Summary, error) {
	data, err := os.ReadFile(s.summaryPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.KindNameNotFound, name)
		}
		return nil, errs.Wrap(errs.KindIOError, name, err)
	}
	var sum snapshot.Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return nil, errs.Wrap(errs.KindWorkspaceCorrupt, name, err)
	}
	return &sum, nil
}

// LoadArchive reads and decompresses one snapshot's Archive.
func (s *Store) LoadArchive(name string) (*snapshot.Archive, error) {
	if !s.Exists(name) {
		return nil, errs.New(errs.KindNameNotFound, name)
	}
	a, err := snapshot.ReadArchive(s.archivePath(name))
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Resolve turns a name or the "latest" alias into a concrete snapshot
// name that exists on disk. "latest" resolves to the snapshot with the
// greatest sequence_number among every chain whose source canonicalizes to
// sourcePath, breaking ties by created_at (spec.md §4.4); sourcePath is
// ignored for a literal name.
func (s *Store) Resolve(name, sourcePath string) (string, error) {
	if name != latestAlias {
		if !s.Exists(name) {
			return "", errs.New(errs.KindNameNotFound, name)
		}
		return name, nil
	}

	all, err := s.List()
	if err != nil {
		return "", err
	}
	var candidates []*snapshot.Summary
	for _, sum := range all {
		if sum.SourcePath == sourcePath {
			candidates = append(candidates, sum)
		}
	}
	if len(candidates) == 0 {
		return "", errs.New(errs.KindNameNotFound, latestAlias).With("source_path", sourcePath)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].SequenceNumber != candidates[j].SequenceNumber {
			return candidates[i].SequenceNumber > candidates[j].SequenceNumber
		}
		return candidates[i].Created.After(candidates[j].Created)
	})
	return candidates[0].Name, nil
}

// WriteSummary persists a Summary's JSON alongside the archive. Summary
// write must happen after the archive write succeeds (spec.md §5).
func (s *Store) WriteSummary(sum *snapshot.Summary) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.summaryPath(sum.Name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errs.Wrap(errs.KindIOError, sum.Name, err)
	}
	if err := os.Rename(tmp, s.summaryPath(sum.Name)); err != nil {
		return errs.Wrap(errs.KindIOError, sum.Name, err)
	}
	return nil
}

// ArchivePath exposes the archive path for writer.Create to target
// directly with snapshot.WriteArchive.
func (s *Store) ArchivePath(name string) string {
	return s.archivePath(name)
}

// ChainForSource returns every Summary whose SourcePath equals sourcePath,
// sorted by SequenceNumber ascending (root first).
func (s *Store) ChainForSource(sourcePath string) ([]*snapshot.Summary, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var chain []*snapshot.Summary
	for _, sum := range all {
		if sum.SourcePath == sourcePath {
			chain = append(chain, sum)
		}
	}
	sort.Slice(chain, func(i, j int) bool { return chain[i].SequenceNumber < chain[j].SequenceNumber })
	return chain, nil
}
