package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peter-fm/tabdiff/pkg/diff"
)

func newStatusCmd() *cobra.Command {
	var sql sqlFlags
	var baseline string
	var batchSize int
	cmd := &cobra.Command{
		Use:   "status <source>",
		Short: "Show how a source's current on-disk state differs from its baseline snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			src, err := resolveSource(args[0], sql)
			if err != nil {
				return err
			}

			bs := batchSize
			if bs <= 0 {
				bs = a.ws.Config.Snapshot.BatchSize
			}
			current, err := diff.FromScan(context.Background(), src, bs)
			if err != nil {
				a.log.Error("status scan failed", zap.String("source", args[0]), zap.Error(err))
				return err
			}

			baselineTable, resolvedName, err := a.loadSnapshotTable(baseline, src.Path())
			if err != nil {
				a.log.Error("status baseline load failed", zap.String("baseline", baseline), zap.Error(err))
				return err
			}

			cs, err := diff.Detect(context.Background(), a.pool, baselineTable, current)
			if err != nil {
				a.log.Error("status detect failed", zap.Error(err))
				return err
			}
			a.log.Info("status computed",
				zap.String("baseline", resolvedName),
				zap.Bool("empty", cs.IsEmpty()),
				zap.Int("rollback_ops", len(cs.RollbackOperations)))

			if flags.jsonOut {
				return printJSON(cs)
			}
			printChangeSetSummary(resolvedName, cs)
			return nil
		},
	}
	addSQLFlags(cmd, &sql)
	cmd.Flags().StringVar(&baseline, "baseline", "latest", "baseline snapshot name, or \"latest\"")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "row batch size (0 = workspace default)")
	return cmd
}

// printChangeSetSummary renders a ChangeSet as the one-line-per-change
// text report spec.md §7 calls for in non-JSON mode.
func printChangeSetSummary(baseline string, cs diff.ChangeSet) {
	fmt.Printf("baseline: %s\n", baseline)
	if cs.IsEmpty() {
		fmt.Println("no changes")
		return
	}
	sc := cs.SchemaChanges
	for _, c := range sc.Added {
		fmt.Printf("+ column %s (%s)\n", c.Name, c.Type)
	}
	for _, c := range sc.Removed {
		fmt.Printf("- column %s (%s)\n", c.Name, c.Type)
	}
	for _, c := range sc.Renamed {
		fmt.Printf("~ column %s -> %s\n", c.From, c.To)
	}
	for _, c := range sc.TypeChanges {
		fmt.Printf("~ column %s type %s -> %s\n", c.Name, c.Before, c.After)
	}
	if sc.Reordered {
		fmt.Println("~ column order changed")
	}
	for _, r := range cs.RowChanges.Added {
		fmt.Printf("+ row %d\n", r.CIndex)
	}
	for _, r := range cs.RowChanges.Removed {
		fmt.Printf("- row %d\n", r.BIndex)
	}
	for _, m := range cs.RowChanges.Modified {
		fmt.Printf("~ row %d (%d cell change(s))\n", m.CIndex, len(m.Changes))
	}
	fmt.Printf("%d rollback operation(s) available\n", len(cs.RollbackOperations))
}
