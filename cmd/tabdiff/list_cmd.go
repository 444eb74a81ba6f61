package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every snapshot in the workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.close()

			summaries, err := a.store.List()
			if err != nil {
				a.log.Error("list failed", zap.Error(err))
				return err
			}
			a.log.Debug("snapshots listed", zap.Int("count", len(summaries)))
			sort.Slice(summaries, func(i, j int) bool {
				if summaries[i].SourcePath != summaries[j].SourcePath {
					return summaries[i].SourcePath < summaries[j].SourcePath
				}
				return summaries[i].SequenceNumber < summaries[j].SequenceNumber
			})

			if flags.jsonOut {
				return printJSON(summaries)
			}
			for _, s := range summaries {
				full := "hash-only"
				if s.HasFullData {
					full = "full"
				}
				fmt.Printf("%-20s seq=%-4d source=%-40s rows=%-8d %s\n", s.Name, s.SequenceNumber, s.SourcePath, s.RowCount, full)
			}
			return nil
		},
	}
	return cmd
}
