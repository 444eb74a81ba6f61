package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peter-fm/tabdiff/pkg/chain"
	"github.com/peter-fm/tabdiff/pkg/errs"
	"github.com/peter-fm/tabdiff/pkg/rollback"
	"github.com/peter-fm/tabdiff/pkg/store"
	"github.com/peter-fm/tabdiff/pkg/tabdiff/logging"
	"github.com/peter-fm/tabdiff/pkg/workerpool"
	"github.com/peter-fm/tabdiff/pkg/workspace"
	"github.com/peter-fm/tabdiff/pkg/writer"
)

// globalFlags are the persistent flags every subcommand shares, the
// cobra equivalent of the teacher's single process-wide Config.
type globalFlags struct {
	root     string
	jsonOut  bool
	logLevel string
	poolSize int
}

var flags globalFlags

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tabdiff",
		Short:         "Snapshot-based structured-data diff and rollback engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.root, "root", ".", "workspace root directory")
	root.PersistentFlags().BoolVar(&flags.jsonOut, "json", false, "emit machine-readable JSON instead of text")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override workspace log level (debug|info|warn|error)")
	root.PersistentFlags().IntVar(&flags.poolSize, "workers", 0, "worker pool size (0 = GOMAXPROCS)")

	root.AddCommand(
		newInitCmd(),
		newSnapshotCmd(),
		newStatusCmd(),
		newDiffCmd(),
		newRollbackCmd(),
		newCleanupCmd(),
		newListCmd(),
		newWatchCmd(),
	)
	return root
}

// app bundles every collaborator a command needs, built fresh per
// invocation from the workspace at flags.root.
type app struct {
	ws     *workspace.Workspace
	lock   *workspace.Lock
	store  *store.Store
	chain  *chain.Manager
	writer *writer.Writer
	roll   *rollback.Executor
	pool   *workerpool.Pool
	log    *zap.Logger
}

// openApp opens the workspace at flags.root, acquires its advisory lock,
// and wires up every component a command needs. Callers must call
// close() on all return paths.
func openApp() (*app, error) {
	ws, err := workspace.Open(flags.root)
	if err != nil {
		return nil, err
	}
	lock, err := workspace.Acquire(ws)
	if err != nil {
		return nil, err
	}

	level := ws.Config.Log.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	log := logging.Must(ws.Config.Log.Format, level)

	size := flags.poolSize
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	pool := workerpool.New(size)

	st := store.New(ws.StoreDir())
	mgr := chain.New(st)
	w := writer.New(st, mgr, pool)
	rb := rollback.New(st, mgr, pool)

	return &app{ws: ws, lock: lock, store: st, chain: mgr, writer: w, roll: rb, pool: pool, log: log}, nil
}

func (a *app) close() {
	a.pool.Close()
	_ = a.log.Sync()
	if a.lock != nil {
		_ = a.lock.Release()
	}
}

// formatCLIError renders err for the command boundary (spec.md §7): a
// one-line message in text mode, or a structured {"error": {...}} object
// in JSON mode.
func formatCLIError(err error) string {
	if !flags.jsonOut {
		return "error: " + err.Error()
	}
	var payload struct {
		Error struct {
			Kind    string            `json:"kind"`
			Message string            `json:"message"`
			Context map[string]string `json:"context,omitempty"`
		} `json:"error"`
	}
	var e *errs.Error
	if errors.As(err, &e) {
		payload.Error.Kind = string(e.Kind)
		payload.Error.Message = e.Message
		payload.Error.Context = e.Context
	} else {
		payload.Error.Kind = "IOError"
		payload.Error.Message = err.Error()
	}
	data, _ := json.MarshalIndent(payload, "", "  ")
	return string(data)
}

// printJSON marshals v to stdout with indentation, used by every
// subcommand's --json path.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
