package main

import (
	"github.com/peter-fm/tabdiff/pkg/diff"
	"github.com/peter-fm/tabdiff/pkg/errs"
)

// loadSnapshotTable resolves name (accepting the "latest" alias against
// sourcePath) to a diff.Table, reconstructing through the chain if the
// snapshot itself is hash-only (spec.md §4.4, §4.5).
func (a *app) loadSnapshotTable(name, sourcePath string) (diff.Table, string, error) {
	resolved, err := a.store.Resolve(name, sourcePath)
	if err != nil {
		return diff.Table{}, "", err
	}
	archive, err := a.store.LoadArchive(resolved)
	if err != nil {
		return diff.Table{}, "", err
	}
	if archive.Metadata.HasFullData {
		return diff.Table{Schema: archive.Schema.ToSchema(), Rows: archive.FullRows}, resolved, nil
	}
	schema, rows, err := a.chain.Reconstruct(resolved)
	if err != nil {
		return diff.Table{}, "", errs.Wrap(errs.KindBaselineMissingFullData, resolved, err)
	}
	return diff.Table{Schema: schema, Rows: rows}, resolved, nil
}
