package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peter-fm/tabdiff/pkg/tabdiff/logging"
	"github.com/peter-fm/tabdiff/pkg/workspace"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Bootstrap a .tabdiff/ workspace in the current directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := workspace.Init(flags.root)
			if err != nil {
				log := logging.Must("console", "info")
				log.Error("workspace init failed", zap.String("root", flags.root), zap.Error(err))
				_ = log.Sync()
				return err
			}
			log := logging.Must(ws.Config.Log.Format, ws.Config.Log.Level)
			log.Info("workspace initialized", zap.String("dir", ws.Dir))
			_ = log.Sync()

			if flags.jsonOut {
				return printJSON(map[string]any{"workspace": ws.Dir})
			}
			fmt.Printf("initialized tabdiff workspace at %s\n", ws.Dir)
			return nil
		},
	}
}
