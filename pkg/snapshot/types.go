// Package snapshot defines the data model of spec.md §3 (Snapshot, Summary,
// Archive, forward delta) and the archive container that stores them
// on disk (spec.md §6).
package snapshot

import (
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/peter-fm/tabdiff/pkg/diff"
	"github.com/peter-fm/tabdiff/pkg/tablesource"
)

// FormatVersion is bumped whenever the Summary/Archive on-disk shape
// changes incompatibly.
const FormatVersion = 1

// ArchiveSchemaVersion versions the archive container layout independently
// of the Summary format, since the two evolve at different rates (spec.md
// §6: "metadata.json — Summary plus archive_schema_version").
const ArchiveSchemaVersion = 1

// SamplingInfo records how a snapshot's fingerprints were computed. Full
// hashing of every row is the only strategy tabdiff implements today; the
// field exists because the Summary JSON schema is stable and names it
// (spec.md §6).
type SamplingInfo struct {
	Strategy   string `json:"strategy"`
	RowsHashed int    `json:"rows_hashed"`
}

// DeltaRef is the Summary's pointer to the forward delta stored in the
// companion Archive, without the delta's content.
type DeltaRef struct {
	ParentName     string `json:"parent_name"`
	CompressedSize int64  `json:"compressed_size"`
}

// Summary is the lightweight, version-controllable descriptor of a
// snapshot (spec.md §3, §6). Field names and JSON tags match the stable
// Summary JSON schema bit-exactly.
type Summary struct {
	FormatVersion        int                                 `json:"format_version"`
	Name                 string                              `json:"name"`
	Created              time.Time                           `json:"created"`
	Source               string                              `json:"source"`
	SourcePath           string                              `json:"source_path"`
	RowCount             int                                 `json:"row_count"`
	ColumnCount          int                                 `json:"column_count"`
	SchemaHash           string                              `json:"schema_hash"`
	Columns              *orderedmap.OrderedMap[string, string] `json:"columns"`
	Sampling             SamplingInfo                        `json:"sampling"`
	HasFullData          bool                                `json:"has_full_data"`
	ParentSnapshot       string                              `json:"parent_snapshot,omitempty"`
	SequenceNumber       int                                 `json:"sequence_number"`
	CanReconstructParent bool                                `json:"can_reconstruct_parent"`
	DeltaFromParent      *DeltaRef                           `json:"delta_from_parent,omitempty"`
}

// DeltaPresent reports whether this snapshot stores a forward delta from
// its parent (spec.md §3 invariant 3: non-root snapshots must have one).
func (s *Summary) DeltaPresent() bool {
	return s.DeltaFromParent != nil
}

// SchemaWire is the schema.json archive member (spec.md §6).
type SchemaWire struct {
	Columns      []ColumnWire      `json:"columns"`
	ColumnHashes map[string]string `json:"column_hashes"`
}

// ColumnWire is one column entry in schema.json.
type ColumnWire struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// ToSchema converts the wire form back to a tablesource.Schema.
func (w SchemaWire) ToSchema() tablesource.Schema {
	schema := make(tablesource.Schema, len(w.Columns))
	for i, c := range w.Columns {
		schema[i] = tablesource.Column{Name: c.Name, Type: c.Type, Nullable: c.Nullable}
	}
	return schema
}

// SchemaToWire converts a tablesource.Schema and its per-column
// fingerprints into the archive's schema.json shape.
func SchemaToWire(schema tablesource.Schema, columnFingerprints []string) SchemaWire {
	w := SchemaWire{
		Columns:      make([]ColumnWire, len(schema)),
		ColumnHashes: make(map[string]string, len(schema)),
	}
	for i, c := range schema {
		w.Columns[i] = ColumnWire{Name: c.Name, Type: c.Type, Nullable: c.Nullable}
		if i < len(columnFingerprints) {
			w.ColumnHashes[c.Name] = columnFingerprints[i]
		}
	}
	return w
}

// ForwardDelta is the stored transformation baseline(parent)->this snapshot
// (spec.md §3 "Forward delta"). SchemaChanges/RowChanges are exactly the
// structure the Change Detector produces. AddedColumnValues is an
// implementation addition (spec.md §9 leaves delta encoding open so long as
// replay is bit-exact): schema_changes/row_changes alone cannot recover a
// newly-added column's values for rows that were neither added nor
// modified, since column additions aren't captured by the intersection-
// schema row comparison (spec.md §4.6.2 step 1). AddedColumnValues records,
// for each column named in SchemaChanges.Added, its full column of values
// in child row order, making replay exact.
type ForwardDelta struct {
	ParentName        string                         `json:"parent_name"`
	SchemaChanges      diff.SchemaChanges            `json:"schema_changes"`
	RowChanges         diff.RowChanges               `json:"row_changes"`
	AddedColumnValues  map[string][]tablesource.Value `json:"added_column_values,omitempty"`
}

// Metadata is the metadata.json archive member: the Summary plus the
// archive-only schema version field.
type Metadata struct {
	Summary
	ArchiveSchemaVersion int `json:"archive_schema_version"`
}
