package snapshot

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/peter-fm/tabdiff/pkg/errs"
	"github.com/peter-fm/tabdiff/pkg/tablesource"
)

// Archive member names inside the tar+zstd container (spec.md §6). The
// spec calls the delta member "delta.parquet"; this implementation stores
// it as JSON instead (see ForwardDelta's doc comment and DESIGN.md) since
// schema_changes/row_changes is a nested, non-columnar record that doesn't
// map cleanly onto parquet's flat row model, and spec.md §9 leaves the
// encoding to the implementer so long as replay is bit-exact.
const (
	memberMetadata = "metadata.json"
	memberSchema   = "schema.json"
	memberData     = "data.parquet"
	memberDelta    = "delta.json"
)

// Archive is the in-memory form of a snapshot's heavy companion file
// (spec.md §3 "Archive").
type Archive struct {
	Metadata Metadata
	Schema   SchemaWire
	FullRows []tablesource.Row // nil unless Metadata.HasFullData
	Delta    *ForwardDelta     // nil unless Metadata.ParentSnapshot != ""
}

// WriteArchive serializes a to path, staging to a temp file in the same
// directory and atomically renaming into place (spec.md §5 "Snapshot
// writes are staged to a temporary file and atomically renamed"), mirroring
// WriteParquet/WriteDelimited's discipline.
func WriteArchive(path string, a Archive) error {
	dir := filepath.Dir(path)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".tabdiff_archive_%s.tmp", uuid.NewString()))
	f, err := os.Create(tmpPath)
	if err != nil {
		return errs.Wrap(errs.KindIOError, "create temp archive", err)
	}
	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return errs.Wrap(errs.KindIOError, "create zstd writer", err)
	}
	tw := tar.NewWriter(zw)

	metaBytes, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := writeTarMember(tw, memberMetadata, metaBytes); err != nil {
		return err
	}

	schemaBytes, err := json.Marshal(a.Schema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	if err := writeTarMember(tw, memberSchema, schemaBytes); err != nil {
		return err
	}

	if a.Metadata.HasFullData {
		dataPath := filepath.Join(dir, fmt.Sprintf(".tabdiff_data_%s.parquet", uuid.NewString()))
		if err := tablesource.WriteParquet(dataPath, a.Schema.ToSchema(), a.FullRows, "zstd"); err != nil {
			return fmt.Errorf("encode full rows: %w", err)
		}
		dataBytes, err := os.ReadFile(dataPath)
		os.Remove(dataPath)
		if err != nil {
			return fmt.Errorf("read encoded full rows: %w", err)
		}
		if err := writeTarMember(tw, memberData, dataBytes); err != nil {
			return err
		}
	}

	if a.Delta != nil {
		deltaBytes, err := json.Marshal(a.Delta)
		if err != nil {
			return fmt.Errorf("marshal delta: %w", err)
		}
		if err := writeTarMember(tw, memberDelta, deltaBytes); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return errs.Wrap(errs.KindIOError, "close tar writer", err)
	}
	if err := zw.Close(); err != nil {
		return errs.Wrap(errs.KindIOError, "close zstd writer", err)
	}
	if err := f.Close(); err != nil {
		return errs.Wrap(errs.KindIOError, "close temp archive", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errs.Wrap(errs.KindIOError, "rename temp archive", err)
	}
	success = true
	return nil
}

func writeTarMember(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header %s: %w", name, err)
	}
	if _, err := tw.Write(content); err != nil {
		return fmt.Errorf("write tar member %s: %w", name, err)
	}
	return nil
}

// ReadArchive loads and decompresses the archive at path.
func ReadArchive(path string) (Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Archive{}, errs.Wrap(errs.KindNameNotFound, path, err)
		}
		return Archive{}, errs.Wrap(errs.KindIOError, path, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return Archive{}, errs.Wrap(errs.KindArchiveCorrupt, path, err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	var a Archive
	var dataBytes []byte
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Archive{}, errs.Wrap(errs.KindArchiveCorrupt, path, err)
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return Archive{}, errs.Wrap(errs.KindArchiveCorrupt, path, err)
		}
		switch hdr.Name {
		case memberMetadata:
			if err := json.Unmarshal(content, &a.Metadata); err != nil {
				return Archive{}, errs.Wrap(errs.KindArchiveCorrupt, "metadata.json", err)
			}
		case memberSchema:
			if err := json.Unmarshal(content, &a.Schema); err != nil {
				return Archive{}, errs.Wrap(errs.KindArchiveCorrupt, "schema.json", err)
			}
		case memberData:
			dataBytes = content
		case memberDelta:
			var d ForwardDelta
			if err := json.Unmarshal(content, &d); err != nil {
				return Archive{}, errs.Wrap(errs.KindArchiveCorrupt, "delta.json", err)
			}
			a.Delta = &d
		}
	}

	if a.Metadata.HasFullData {
		if dataBytes == nil {
			return Archive{}, errs.New(errs.KindArchiveCorrupt, path+": missing data.parquet for has_full_data snapshot")
		}
		rows, err := readParquetBytes(dataBytes, a.Schema.ToSchema())
		if err != nil {
			return Archive{}, errs.Wrap(errs.KindArchiveCorrupt, "data.parquet", err)
		}
		a.FullRows = rows
	}

	return a, nil
}

func readParquetBytes(data []byte, schema tablesource.Schema) ([]tablesource.Row, error) {
	tmp, err := os.CreateTemp("", ".tabdiff_read_*.parquet")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	return tablesource.ReadParquetFile(tmpPath, schema)
}
