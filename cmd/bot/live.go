package main

import (
	"github.com/spf13/cobra"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Run one live trading session now",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, decisions, err := newLiveEngine(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeDecisions(decisions)

		eng.RunSession(cmd.Context())
		return nil
	},
}

func init() {
	liveCmd.Flags().Bool("dry-run", false, "run every guard but submit no orders")
}
