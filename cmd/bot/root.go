package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"macross/internal/config"
)

var (
	configPath string
	cfg        config.Config
	logCloser  io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "macross",
	Short:         "Daily moving-average crossover trader",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded
		closer, err := setupLogging(cfg.Log)
		if err != nil {
			return err
		}
		logCloser = closer
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to a YAML config file")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("symbol", "SPY", "ticker to trade")
	flags.Int("short", 50, "short SMA window")
	flags.Int("long", 200, "long SMA window")
	flags.String("source", "alpaca", "price history source: alpaca, yahoo or csv")
	flags.String("csv", "", "CSV price history for the csv source")

	rootCmd.AddCommand(backtestCmd, liveCmd, scheduleCmd, accountCmd)
}

// setupLogging sends slog output to stdout and, when a log file is
// configured, to that file too.
func setupLogging(lc config.LogConfig) (io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", lc.Level, err)
	}

	var out io.Writer = os.Stdout
	var closer io.Closer
	if lc.File != "" {
		if err := os.MkdirAll(filepath.Dir(lc.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(lc.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})))
	return closer, nil
}
