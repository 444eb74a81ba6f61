package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peter-fm/tabdiff/pkg/rollback"
)

func newRollbackCmd() *cobra.Command {
	var sql sqlFlags
	var opts rollback.Options
	cmd := &cobra.Command{
		Use:   "rollback <source> <baseline-snapshot>",
		Short: "Restore a source file to an earlier snapshot's recorded state",
		Args:  cobra.ExactArgs(2),
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

			if !cmd.Flags().Changed("backup") {
				opts.Backup = a.ws.Config.Rollback.Backup
			}
			if opts.BatchSize <= 0 {
				opts.BatchSize = a.ws.Config.Snapshot.BatchSize
			}

			a.log.Debug("rollback requested", zap.String("source", args[0]), zap.String("baseline", args[1]), zap.Bool("dry_run", opts.DryRun))
			report, err := a.roll.Rollback(context.Background(), src, args[1], opts)
			if err != nil {
				a.log.Error("rollback failed", zap.String("baseline", args[1]), zap.Error(err))
				return err
			}
			a.log.Info("rollback applied",
				zap.String("baseline", report.BaselineName),
				zap.Int("ops", report.OpsApplied),
				zap.Bool("dry_run", report.DryRun),
				zap.Bool("verified", report.Verified))

			if flags.jsonOut {
				return printJSON(report)
			}
			if report.DryRun {
				fmt.Printf("dry run: %d operation(s) would be applied against baseline %q\n", report.OpsApplied, report.BaselineName)
				return nil
			}
			fmt.Printf("rolled back to %q: %d operation(s) applied, verified=%v\n", report.BaselineName, report.OpsApplied, report.Verified)
			if report.BackupPath != "" {
				fmt.Printf("backup written to %s\n", report.BackupPath)
			}
			return nil
		},
	}
	addSQLFlags(cmd, &sql)
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report what would change without writing")
	cmd.Flags().BoolVar(&opts.Backup, "backup", true, "write a .backup copy of the source before rewriting it")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing .backup file")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "row batch size (0 = workspace default)")
	return cmd
}
