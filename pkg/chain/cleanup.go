package chain

import (
	"sort"

	"github.com/peter-fm/tabdiff/pkg/snapshot"
)

// CleanupCandidate names one snapshot cleanup() decided is safe to strip
// full_rows from.
type CleanupCandidate struct {
	Name       string
	SourcePath string
}

// Cleanup identifies and, unless dryRun, strips full_rows from every
// cleanup candidate (spec.md §4.5 "Cleanup"): a snapshot qualifies when it
// is not among the keepFull most-recently-created full-data snapshots in
// its chain, and stripping it can't break reconstruction. Since non-root
// snapshots always carry a forward delta (spec.md §3 invariant 3), that
// second condition reduces to delta_present, and the chain root is always
// excluded since it has no parent to replay from. The operation is
// idempotent: re-running after a no-op cleanup reports the same set.
func (m *Manager) Cleanup(keepFull int, dryRun bool) ([]CleanupCandidate, error) {
	if keepFull < 1 {
		keepFull = 1
	}
	all, err := m.Store.List()
	if err != nil {
		return nil, err
	}

	bySource := make(map[string][]*snapshot.Summary)
	for _, s := range all {
		bySource[s.SourcePath] = append(bySource[s.SourcePath], s)
	}

	var candidates []CleanupCandidate
	for sourcePath, chain := range bySource {
		var full []*snapshot.Summary
		for _, s := range chain {
			if s.HasFullData {
				full = append(full, s)
			}
		}
		sort.Slice(full, func(i, j int) bool { return full[i].Created.After(full[j].Created) })

		keep := make(map[string]bool, keepFull)
		for i := 0; i < len(full) && i < keepFull; i++ {
			keep[full[i].Name] = true
		}

		for _, s := range full {
			if keep[s.Name] || s.SequenceNumber == 0 || !s.DeltaPresent() {
				continue
			}
			candidates = append(candidates, CleanupCandidate{Name: s.Name, SourcePath: sourcePath})
		}
	}

	if dryRun {
		return candidates, nil
	}
	for _, c := range candidates {
		if err := m.stripFullData(c.Name); err != nil {
			return nil, err
		}
	}
	return candidates, nil
}

// stripFullData rewrites name's archive without full_rows, preserving its
// delta and metadata, and updates its Summary to match. Re-running on an
// already-stripped snapshot is a harmless no-op.
func (m *Manager) stripFullData(name string) error {
	a, err := m.Store.LoadArchive(name)
	if err != nil {
		return err
	}
	if !a.Metadata.HasFullData {
		return nil
	}
	a.FullRows = nil
	a.Metadata.HasFullData = false

	if err := snapshot.WriteArchive(m.Store.ArchivePath(name), *a); err != nil {
		return err
	}
	sum := a.Metadata.Summary
	sum.HasFullData = false
	return m.Store.WriteSummary(&sum)
}
