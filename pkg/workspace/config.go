// Package workspace manages the on-disk `.tabdiff/` layout (spec.md §6):
// bootstrapping, workspace configuration, and the advisory lock that
// keeps two tabdiff processes from mutating the same workspace at once.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/peter-fm/tabdiff/pkg/errs"
)

// FormatVersion is the workspace config's own schema version, independent
// of snapshot.FormatVersion.
const FormatVersion = 1

// Config is workspace-wide configuration, persisted as `.tabdiff/config.json`.
// Layout mirrors the teacher's nested Config/DefaultConfig/Load/validate
// shape (pkg/config/config.go), generalized from server tuning knobs to
// tabdiff's snapshot/hashing/rollback knobs.
type Config struct {
	FormatVersion int             `json:"format_version"`
	CreatedAt     time.Time       `json:"created_at"`
	Hashing       HashingConfig   `json:"hashing"`
	Snapshot      SnapshotConfig  `json:"snapshot"`
	Rollback      RollbackConfig  `json:"rollback"`
	Log           LogConfig       `json:"log"`
}

// HashingConfig names the fingerprint algorithm (spec.md §4.2 commits to
// Blake3; the field exists so a future algorithm change is visible in a
// persisted workspace rather than silently reinterpreted).
type HashingConfig struct {
	Algorithm string `json:"algorithm"`
}

// SnapshotConfig controls Snapshot Writer defaults (spec.md §4.3) absent
// an explicit CLI flag.
type SnapshotConfig struct {
	DefaultFullData bool `json:"default_full_data"`
	BatchSize       int  `json:"batch_size"`
	KeepFull        int  `json:"keep_full"`
}

// RollbackConfig controls Rollback Executor defaults (spec.md §4.7).
type RollbackConfig struct {
	Backup bool `json:"backup"`
}

// LogConfig selects the zap logger construction (spec.md's ambient
// logging stack), grounded on the teacher's own Log{Level,Format}.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "json" or "console"
}

// DefaultConfig returns the configuration `tabdiff init` writes absent
// overrides.
func DefaultConfig() *Config {
	return &Config{
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UTC(),
		Hashing: HashingConfig{
			Algorithm: "blake3",
		},
		Snapshot: SnapshotConfig{
			DefaultFullData: true,
			BatchSize:       10000,
			KeepFull:        5,
		},
		Rollback: RollbackConfig{
			Backup: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig reads and validates a workspace config file. A missing file
// is not an error here — callers distinguish "no workspace" earlier, in
// Open — so LoadConfig always expects path to exist.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.KindWorkspaceMissing, path, err)
		}
		return nil, errs.Wrap(errs.KindWorkspaceCorrupt, path, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errs.Wrap(errs.KindWorkspaceCorrupt, path, err)
	}
	if err := validateConfig(cfg); err != nil {
		return nil, errs.Wrap(errs.KindWorkspaceCorrupt, path, err)
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Snapshot.BatchSize < 1 {
		return fmt.Errorf("snapshot.batch_size must be positive, got %d", cfg.Snapshot.BatchSize)
	}
	if cfg.Snapshot.KeepFull < 1 {
		return fmt.Errorf("snapshot.keep_full must be at least 1, got %d", cfg.Snapshot.KeepFull)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log.format %q", cfg.Log.Format)
	}
	return nil
}
