package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peter-fm/tabdiff/pkg/diff"
)

func newDiffCmd() *cobra.Command {
	var save bool
	cmd := &cobra.Command{
		Use:   "diff <snapshot-a> <snapshot-b>",
		Short: "Compare two snapshots of the same source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			sumA, err := a.store.LoadSummary(args[0])
			if err != nil {
				return err
			}

			baselineTable, nameA, err := a.loadSnapshotTable(args[0], sumA.SourcePath)
			if err != nil {
				return err
			}
			currentTable, nameB, err := a.loadSnapshotTable(args[1], sumA.SourcePath)
			if err != nil {
				return err
			}

			cs, err := diff.Detect(context.Background(), a.pool, baselineTable, currentTable)
			if err != nil {
				a.log.Error("diff failed", zap.String("a", nameA), zap.String("b", nameB), zap.Error(err))
				return err
			}
			a.log.Info("diff computed", zap.String("a", nameA), zap.String("b", nameB), zap.Int("rollback_ops", len(cs.RollbackOperations)))

			if save {
				if err := persistDiffReport(a, nameA, nameB, cs); err != nil {
					a.log.Error("diff report persist failed", zap.Error(err))
					return err
				}
				a.log.Debug("diff report saved", zap.String("a", nameA), zap.String("b", nameB))
			}

			if flags.jsonOut {
				return printJSON(cs)
			}
			printChangeSetSummary(nameA+" -> "+nameB, cs)
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "persist the report to diffs/<a>-<b>.json")
	return cmd
}

// persistDiffReport writes cs to .tabdiff/diffs/<a>-<b>.json (spec.md §6
// layout), atomically via stage-then-rename.
func persistDiffReport(a *app, nameA, nameB string, cs diff.ChangeSet) error {
	data, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(a.ws.DiffsDir(), nameA+"-"+nameB+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
