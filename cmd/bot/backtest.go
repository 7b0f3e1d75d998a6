package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"macross/internal/backtest"
	"macross/internal/config"
	"macross/internal/id"
	"macross/internal/journal"
	"macross/internal/strategy"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay the crossover over historical closes",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := runBacktest(cmd.Context(), cfg)
		return err
	},
}

func init() {
	flags := backtestCmd.Flags()
	flags.String("start", "2007-01-01", "first date, YYYY-MM-DD")
	flags.String("end", "2011-12-31", "last date, YYYY-MM-DD")
	flags.Float64("capital", 10000, "initial capital")
	flags.Float64("fee", 0.001, "fee as a fraction of traded notional")
	flags.String("journal", "backtest.sqlite", "SQLite journal of runs")
	flags.String("ledger", "", "write the ledger to this CSV file")
	flags.String("report", "", "write a YAML run report to this file")
}

func runBacktest(ctx context.Context, c config.Config) (journal.Run, error) {
	strat, err := strategy.NewCrossover(c.Strategy.ShortWindow, c.Strategy.LongWindow)
	if err != nil {
		return journal.Run{}, err
	}
	source, err := newSource(c)
	if err != nil {
		return journal.Run{}, err
	}
	start, end, err := c.Backtest.Range()
	if err != nil {
		return journal.Run{}, err
	}

	bars, err := source.Fetch(ctx, c.Strategy.Symbol, start, end)
	if err != nil {
		return journal.Run{}, err
	}
	records, err := strat.Generate(bars)
	if err != nil {
		return journal.Run{}, err
	}
	ready := strategy.Ready(records)
	if len(ready) == 0 {
		return journal.Run{}, fmt.Errorf("no defined signals: %d bars for a %d bar window", len(bars), c.Strategy.LongWindow)
	}

	result, err := backtest.Run(ready, backtest.Options{
		InitialCapital: c.Backtest.InitialCapital,
		FeePct:         c.Backtest.FeePct,
	})
	if err != nil {
		return journal.Run{}, err
	}
	slog.Info("final portfolio value", "value", fmt.Sprintf("$%.2f", result.Summary.FinalValue))
	slog.Info("total return", "pct", fmt.Sprintf("%.2f%%", result.Summary.ReturnPct),
		"trades", result.Summary.Trades, "fees", result.Summary.FeesPaid, "max_drawdown_pct", result.Summary.MaxDrawdownPct)

	run := journal.Run{
		ID:          id.New(),
		Created:     time.Now().UTC(),
		Symbol:      c.Strategy.Symbol,
		ShortWindow: strat.ShortWindow(),
		LongWindow:  strat.LongWindow(),
		FeePct:      c.Backtest.FeePct,
		Summary:     result.Summary,
	}

	if c.Backtest.JournalPath != "" {
		store, err := journal.Open(c.Backtest.JournalPath)
		if err != nil {
			return run, err
		}
		defer store.Close()
		if err := store.RecordRun(ctx, run, result.Ledger); err != nil {
			return run, err
		}
		slog.Info("backtest journaled", "run_id", run.ID, "path", c.Backtest.JournalPath)
	}
	if c.Backtest.LedgerCSV != "" {
		if err := journal.SaveLedgerCSV(c.Backtest.LedgerCSV, result.Ledger); err != nil {
			return run, err
		}
	}
	if c.Backtest.ReportPath != "" {
		if err := journal.SaveReport(c.Backtest.ReportPath, run); err != nil {
			return run, err
		}
	}
	return run, nil
}
