// Package hashing computes the Blake3 fingerprints (schema, per-column,
// per-row) that every downstream comparison in tabdiff is built on
// (spec.md §3, §4.2).
package hashing

import (
	"encoding/binary"
	"encoding/hex"

	"lukechampine.com/blake3"

	"github.com/peter-fm/tabdiff/pkg/tablesource"
)

// nullMarker is written in place of a length-prefixed value for a null
// cell. A present-but-empty string instead writes a zero length prefix
// (four 0x00 bytes) followed by zero value bytes, which is byte-distinct
// from this single marker byte.
const nullMarker = 0xFF

func appendLenPrefixed(buf []byte, b []byte) []byte {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(b)))
	buf = append(buf, lenBytes[:]...)
	buf = append(buf, b...)
	return buf
}

func appendCell(buf []byte, v tablesource.Value) []byte {
	if v.Null {
		return append(buf, nullMarker)
	}
	return appendLenPrefixed(buf, []byte(v.Str))
}

func hexSum(buf []byte) string {
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// SchemaFingerprint hashes `len(name)‖name‖len(type)‖type‖nullable_byte`
// for every column in schema order (spec.md §3).
func SchemaFingerprint(schema tablesource.Schema) string {
	var buf []byte
	for _, col := range schema {
		buf = appendLenPrefixed(buf, []byte(col.Name))
		buf = appendLenPrefixed(buf, []byte(col.Type))
		if col.Nullable {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	return hexSum(buf)
}

// ColumnFingerprint hashes the concatenation of per-cell encodings of one
// column's values, in row order (spec.md §3). Unlike Hasher, which
// accumulates this incrementally across a streamed scan, this is a
// one-shot helper for callers that already hold a column's values in
// memory — used by the Change Detector's rename heuristic (spec.md
// §4.6.1), which needs a column's fingerprint independent of the rest of
// the row.
func ColumnFingerprint(values []tablesource.Value) string {
	var buf []byte
	for _, v := range values {
		buf = appendCell(buf, v)
	}
	return hexSum(buf)
}

// RowFingerprint hashes `len(col)‖col‖len(val)‖val` for every column in
// schema order, using only the columns named in schema (the caller passes
// an intersection schema when pairing rows across a schema change).
func RowFingerprint(schema tablesource.Schema, row tablesource.Row) string {
	var buf []byte
	for i, col := range schema {
		buf = appendLenPrefixed(buf, []byte(col.Name))
		if i < len(row) {
			buf = appendCell(buf, row[i])
		} else {
			buf = appendCell(buf, tablesource.NullValue())
		}
	}
	return hexSum(buf)
}
