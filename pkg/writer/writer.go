// Package writer implements the Snapshot Writer (spec.md §4.3): scans a
// Table Source, drives the Hasher, optionally captures full rows, asks the
// Chain Manager for a parent, computes a forward delta against it, and
// persists the resulting Archive and Summary.
package writer

import (
	"context"
	"fmt"
	"os"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/peter-fm/tabdiff/pkg/chain"
	"github.com/peter-fm/tabdiff/pkg/diff"
	"github.com/peter-fm/tabdiff/pkg/errs"
	"github.com/peter-fm/tabdiff/pkg/hashing"
	"github.com/peter-fm/tabdiff/pkg/snapshot"
	"github.com/peter-fm/tabdiff/pkg/store"
	"github.com/peter-fm/tabdiff/pkg/tablesource"
	"github.com/peter-fm/tabdiff/pkg/workerpool"
)

// sizeAdvisoryInfo and sizeAdvisoryWarning are the file-size thresholds
// spec.md §4.3 names: an informational note past 100MB, a warning urging
// hash-only mode past 1GB.
const (
	sizeAdvisoryInfo    = 100 * 1024 * 1024
	sizeAdvisoryWarning = 1024 * 1024 * 1024
)

// Options controls how Create builds a new snapshot.
type Options struct {
	FullData  bool
	BatchSize int
}

// Advisory is a non-fatal note Create wants surfaced to the user (spec.md
// §4.3 step 2).
type Advisory struct {
	Level   string // "info" | "warning"
	Message string
}

// Writer creates snapshots into one workspace's Store.
type Writer struct {
	Store *store.Store
	Chain *chain.Manager
	Pool  *workerpool.Pool
}

// New builds a Writer over st, using mgr as its Chain Manager.
func New(st *store.Store, mgr *chain.Manager, pool *workerpool.Pool) *Writer {
	return &Writer{Store: st, Chain: mgr, Pool: pool}
}

// Result is everything Create produces: the written Summary and any
// advisories raised along the way.
type Result struct {
	Summary    *snapshot.Summary
	Advisories []Advisory
}

// Create builds and persists a new snapshot named name over src (spec.md
// §4.3).
func (w *Writer) Create(ctx context.Context, src tablesource.Source, name string, opts Options) (*Result, error) {
	if name == "" {
		return nil, errs.New(errs.KindNameNotFound, "snapshot name must not be empty")
	}
	if w.Store.Exists(name) {
		return nil, errs.New(errs.KindNameExists, name)
	}

	var advisories []Advisory
	sourcePath := src.Path()
	if src.Kind() == tablesource.KindFile {
		if info, err := os.Stat(sourcePath); err == nil {
			if info.Size() >= sizeAdvisoryWarning {
				advisories = append(advisories, Advisory{Level: "warning", Message: fmt.Sprintf("%s is over 1GB; consider hash-only mode (full_data: false)", sourcePath)})
			} else if info.Size() >= sizeAdvisoryInfo {
				advisories = append(advisories, Advisory{Level: "info", Message: fmt.Sprintf("%s is over 100MB", sourcePath)})
			}
		}
	}

	schema, err := src.Describe(ctx)
	if err != nil {
		return nil, err
	}
	if len(schema) == 0 {
		return nil, errs.New(errs.KindSchemaEmpty, sourcePath)
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = tablesource.DefaultBatchSize
	}

	parent, err := w.Chain.SelectParent(sourcePath)
	if err != nil {
		return nil, err
	}

	// A chain root can never be reconstructed from a delta, so it must
	// always carry full data regardless of what the caller asked for.
	keepFull := opts.FullData || parent == nil

	h := hashing.New(schema, w.Pool)
	stream, err := src.Scan(ctx, batchSize)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var rows []tablesource.Row
	for {
		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.KindCancelled, "snapshot scan", ctx.Err())
		default:
		}
		batch, more, err := stream.Next(ctx)
		if err != nil {
			return nil, err
		}
		if err := h.WriteBatch(ctx, batch); err != nil {
			return nil, err
		}
		if keepFull {
			rows = append(rows, batch.Rows...)
		}
		if !more {
			break
		}
	}

	columnFps := h.ColumnFingerprints()
	columns := orderedmap.New[string, string]()
	for i, c := range schema {
		columns.Set(c.Name, columnFps[i])
	}

	seq := 0
	if parent != nil {
		seq = parent.SequenceNumber + 1
	}

	sum := &snapshot.Summary{
		FormatVersion:  snapshot.FormatVersion,
		Name:           name,
		Created:        time.Now().UTC(),
		Source:         string(src.Kind()),
		SourcePath:     sourcePath,
		RowCount:       h.RowCount(),
		ColumnCount:    len(schema),
		SchemaHash:     h.SchemaFingerprint(),
		Columns:        columns,
		Sampling:       snapshot.SamplingInfo{Strategy: "full", RowsHashed: h.RowCount()},
		HasFullData:    keepFull,
		SequenceNumber: seq,
	}

	archive := snapshot.Archive{
		Metadata: snapshot.Metadata{Summary: *sum, ArchiveSchemaVersion: snapshot.ArchiveSchemaVersion},
		Schema:   snapshot.SchemaToWire(schema, columnFps),
	}
	if keepFull {
		archive.FullRows = rows
	}

	if parent != nil && keepFull {
		parentSchema, parentRows, err := w.loadParentTable(parent)
		if err != nil {
			return nil, err
		}
		if parentRows == nil {
			// Parent is hash-only and unreconstructable: no cell-level
			// delta can be computed, but the chain link is still valid.
			sum.ParentSnapshot = parent.Name
			archive.Metadata.ParentSnapshot = parent.Name
		} else {
			cs, err := diff.Detect(ctx, w.Pool, diff.Table{Schema: parentSchema, Rows: parentRows}, diff.Table{Schema: schema, Rows: rows})
			if err != nil {
				return nil, err
			}
			delta := &snapshot.ForwardDelta{
				ParentName:    parent.Name,
				SchemaChanges: cs.SchemaChanges,
				RowChanges:    cs.RowChanges,
			}
			if len(cs.SchemaChanges.Added) > 0 {
				delta.AddedColumnValues = addedColumnValues(schema, rows, cs.SchemaChanges.Added)
			}
			sum.ParentSnapshot = parent.Name
			sum.DeltaFromParent = &snapshot.DeltaRef{ParentName: parent.Name}
			archive.Delta = delta
			archive.Metadata.ParentSnapshot = parent.Name
			archive.Metadata.DeltaFromParent = sum.DeltaFromParent
		}
	} else if parent != nil {
		sum.ParentSnapshot = parent.Name
		archive.Metadata.ParentSnapshot = parent.Name
	}

	sum.CanReconstructParent = parent != nil && sum.DeltaFromParent != nil
	archive.Metadata.Summary = *sum

	if err := snapshot.WriteArchive(w.Store.ArchivePath(name), archive); err != nil {
		return nil, err
	}
	if err := w.Store.WriteSummary(sum); err != nil {
		return nil, err
	}

	return &Result{Summary: sum, Advisories: advisories}, nil
}

func (w *Writer) loadParentTable(parent *snapshot.Summary) (tablesource.Schema, []tablesource.Row, error) {
	archive, err := w.Store.LoadArchive(parent.Name)
	if err != nil {
		return nil, nil, err
	}
	if archive.Metadata.HasFullData {
		return archive.Schema.ToSchema(), archive.FullRows, nil
	}
	schema, rows, err := w.Chain.Reconstruct(parent.Name)
	if err != nil {
		// A broken chain shouldn't stop the new snapshot from being
		// recorded hash-only; the caller will see ChainBroken only if it
		// later tries to diff/reconstruct.
		return archive.Schema.ToSchema(), nil, nil
	}
	return schema, rows, nil
}

func addedColumnValues(schema tablesource.Schema, rows []tablesource.Row, added []diff.ColumnAdd) map[string][]tablesource.Value {
	out := make(map[string][]tablesource.Value, len(added))
	for _, a := range added {
		idx := schema.IndexOf(a.Name)
		values := make([]tablesource.Value, len(rows))
		for i, r := range rows {
			if idx >= 0 && idx < len(r) {
				values[i] = r[idx]
			} else {
				values[i] = tablesource.NullValue()
			}
		}
		out[a.Name] = values
	}
	return out
}
