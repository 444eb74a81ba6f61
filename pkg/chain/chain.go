// Package chain implements the Chain Manager (spec.md §4.5): parent
// selection for new snapshots, reconstruction of a snapshot's full rows by
// replaying forward deltas, and space-reclaiming cleanup that preserves
// reconstructability.
package chain

import (
	"github.com/peter-fm/tabdiff/pkg/errs"
	"github.com/peter-fm/tabdiff/pkg/hashing"
	"github.com/peter-fm/tabdiff/pkg/snapshot"
	"github.com/peter-fm/tabdiff/pkg/store"
	"github.com/peter-fm/tabdiff/pkg/tablesource"
)

// Manager operates a chain manager over one workspace's Store.
type Manager struct {
	Store *store.Store
}

// New builds a Manager over st.
func New(st *store.Store) *Manager {
	return &Manager{Store: st}
}

// SelectParent returns the snapshot with the greatest sequence_number whose
// source_path canonicalizes to sourcePath, or nil if sourcePath has no
// existing chain (spec.md §4.5 "Parent selection").
func (m *Manager) SelectParent(sourcePath string) (*snapshot.Summary, error) {
	chain, err := m.Store.ChainForSource(sourcePath)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1], nil
}

// Reconstruct walks ancestry from name toward the root until it finds the
// nearest ancestor (including name itself) with full data, then replays
// every intermediate snapshot's forward delta up to name (spec.md §4.5
// "Reconstruction").
func (m *Manager) Reconstruct(name string) (tablesource.Schema, []tablesource.Row, error) {
	archives := make(map[string]*snapshot.Archive)
	load := func(n string) (*snapshot.Archive, error) {
		if a, ok := archives[n]; ok {
			return a, nil
		}
		a, err := m.Store.LoadArchive(n)
		if err != nil {
			return nil, errs.Wrap(errs.KindChainBroken, n, err)
		}
		archives[n] = a
		return a, nil
	}

	var path []string // target -> ... -> nearest full-data ancestor
	cur := name
	for {
		a, err := load(cur)
		if err != nil {
			return nil, nil, err
		}
		path = append(path, cur)
		if a.Metadata.HasFullData {
			break
		}
		if a.Metadata.ParentSnapshot == "" {
			return nil, nil, errs.New(errs.KindChainBroken, cur).With("reason", "no full data and no parent")
		}
		cur = a.Metadata.ParentSnapshot
	}

	// path is target..ancestor; reverse to ancestor..target for replay.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	base, err := load(path[0])
	if err != nil {
		return nil, nil, err
	}
	schema := base.Schema.ToSchema()
	rows := base.FullRows

	for _, n := range path[1:] {
		a, err := load(n)
		if err != nil {
			return nil, nil, err
		}
		if a.Delta == nil {
			return nil, nil, errs.New(errs.KindChainBroken, n).With("reason", "missing forward delta")
		}
		schema, rows, err = applyForwardDelta(schema, rows, *a.Delta)
		if err != nil {
			return nil, nil, errs.Wrap(errs.KindChainBroken, n, err)
		}
		if err := verifyReplay(n, schema, rows, a.Metadata.Summary); err != nil {
			return nil, nil, err
		}
	}

	return schema, rows, nil
}

// verifyReplay checks the post-condition from spec.md §4.5 step 3: the
// replayed rows' recomputed fingerprints and counts must equal those
// recorded in the target Summary.
func verifyReplay(name string, schema tablesource.Schema, rows []tablesource.Row, want snapshot.Summary) error {
	if len(rows) != want.RowCount {
		return errs.New(errs.KindChainBroken, name).
			With("reason", "row count mismatch after replay")
	}
	if got := hashing.SchemaFingerprint(schema); got != want.SchemaHash {
		return errs.New(errs.KindChainBroken, name).
			With("reason", "schema fingerprint mismatch after replay")
	}
	for pair := want.Columns.Oldest(); pair != nil; pair = pair.Next() {
		idx := schema.IndexOf(pair.Key)
		if idx < 0 {
			return errs.New(errs.KindChainBroken, name).With("reason", "column missing after replay: "+pair.Key)
		}
		values := make([]tablesource.Value, len(rows))
		for i, row := range rows {
			if idx < len(row) {
				values[i] = row[idx]
			} else {
				values[i] = tablesource.NullValue()
			}
		}
		if got := hashing.ColumnFingerprint(values); got != pair.Value {
			return errs.New(errs.KindChainBroken, name).With("reason", "column fingerprint mismatch after replay: "+pair.Key)
		}
	}
	return nil
}
