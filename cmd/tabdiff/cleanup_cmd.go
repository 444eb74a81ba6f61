package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCleanupCmd() *cobra.Command {
	var keepFull int
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Strip full row data from older, still-reconstructable snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			n := keepFull
			if n <= 0 {
				n = a.ws.Config.Snapshot.KeepFull
			}
			candidates, err := a.chain.Cleanup(n, dryRun)
			if err != nil {
				a.log.Error("cleanup failed", zap.Int("keep_full", n), zap.Error(err))
				return err
			}
			a.log.Info("cleanup evaluated", zap.Int("keep_full", n), zap.Bool("dry_run", dryRun), zap.Int("candidates", len(candidates)))

			if flags.jsonOut {
				return printJSON(map[string]any{"dry_run": dryRun, "candidates": candidates})
			}
			if len(candidates) == 0 {
				fmt.Println("nothing to clean up")
				return nil
			}
			verb := "stripped full data from"
			if dryRun {
				verb = "would strip full data from"
			}
			for _, c := range candidates {
				fmt.Printf("%s %q (source %s)\n", verb, c.Name, c.SourcePath)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&keepFull, "keep-full", 0, "full-data snapshots to retain per chain (0 = workspace default)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report candidates without mutating")
	return cmd
}
