package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"macross/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the live session every weekday at the configured time",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, decisions, err := newLiveEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeDecisions(decisions)

		s, err := scheduler.New(cfg.Schedule.At, cfg.ScheduleLocation(), func(ctx context.Context) {
			eng.RunSession(ctx)
		})
		if err != nil {
			return err
		}
		s.Run(ctx)
		return nil
	},
}

func init() {
	flags := scheduleCmd.Flags()
	flags.Bool("dry-run", false, "run every guard but submit no orders")
	flags.String("at", "23:15", "daily trigger time, HH:MM in the schedule timezone")
}
