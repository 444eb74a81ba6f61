package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peter-fm/tabdiff/pkg/writer"
)

func newSnapshotCmd() *cobra.Command {
	var sql sqlFlags
	var opts writer.Options
	cmd := &cobra.Command{
		Use:   "snapshot <source> <name>",
		Short: "Record a new snapshot of a table source",
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

			if !cmd.Flags().Changed("full-data") {
				opts.FullData = a.ws.Config.Snapshot.DefaultFullData
			}
			if opts.BatchSize <= 0 {
				opts.BatchSize = a.ws.Config.Snapshot.BatchSize
			}

			a.log.Debug("snapshot requested", zap.String("source", args[0]), zap.String("name", args[1]))
			result, err := a.writer.Create(context.Background(), src, args[1], opts)
			if err != nil {
				a.log.Error("snapshot failed", zap.String("name", args[1]), zap.Error(err))
				return err
			}
			a.log.Info("snapshot created",
				zap.String("name", result.Summary.Name),
				zap.Int("rows", result.Summary.RowCount),
				zap.Int("columns", result.Summary.ColumnCount),
				zap.Int("sequence", result.Summary.SequenceNumber))

			if flags.jsonOut {
				return printJSON(result)
			}
			for _, adv := range result.Advisories {
				fmt.Printf("%s: %s\n", adv.Level, adv.Message)
			}
			fmt.Printf("snapshot %q created (%d rows, %d columns, sequence %d)\n",
				result.Summary.Name, result.Summary.RowCount, result.Summary.ColumnCount, result.Summary.SequenceNumber)
			return nil
		},
	}
	addSQLFlags(cmd, &sql)
	cmd.Flags().BoolVar(&opts.FullData, "full-data", true, "store full rows alongside fingerprints (disable for hash-only snapshots of very large sources)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "row batch size (0 = workspace default)")
	return cmd
}
