package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"macross/internal/backtest"
	"macross/internal/strategy"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordRun writes the run and its ledger in one transaction.
func (s *Store) RecordRun(ctx context.Context, run Run, ledger []backtest.LedgerEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	sum := run.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT INTO backtest_runs
		(run_id, created, symbol, short_window, long_window, start_date, end_date, bars,
		 initial_capital, fee_pct, final_value, return_pct, trades, fees_paid, max_drawdown_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Created.UTC().Format(time.RFC3339Nano), run.Symbol, run.ShortWindow, run.LongWindow,
		sum.Start.Format(time.DateOnly), sum.End.Format(time.DateOnly), sum.Bars,
		sum.InitialCapital, run.FeePct, sum.FinalValue, sum.ReturnPct, sum.Trades, sum.FeesPaid, sum.MaxDrawdownPct,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger
		(run_id, seq, date, close, target, cash, shares, total, fee, traded, action)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, e := range ledger {
		if _, err := stmt.ExecContext(ctx, run.ID, i, e.Date.Format(time.DateOnly), e.Close, e.Target.String(),
			e.Cash, e.Shares, e.Total, e.Fee, e.Traded, string(e.Action)); err != nil {
			return fmt.Errorf("insert ledger row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	var (
		run              Run
		created          string
		startDate, endDt string
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, created, symbol, short_window, long_window, start_date, end_date, bars,
		       initial_capital, fee_pct, final_value, return_pct, trades, fees_paid, max_drawdown_pct
		FROM backtest_runs WHERE run_id = ?`, runID)
	err := row.Scan(&run.ID, &created, &run.Symbol, &run.ShortWindow, &run.LongWindow, &startDate, &endDt,
		&run.Summary.Bars, &run.Summary.InitialCapital, &run.FeePct, &run.Summary.FinalValue,
		&run.Summary.ReturnPct, &run.Summary.Trades, &run.Summary.FeesPaid, &run.Summary.MaxDrawdownPct)
	if err != nil {
		return Run{}, err
	}
	if run.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Run{}, err
	}
	if run.Summary.Start, err = time.Parse(time.DateOnly, startDate); err != nil {
		return Run{}, err
	}
	if run.Summary.End, err = time.Parse(time.DateOnly, endDt); err != nil {
		return Run{}, err
	}
	return run, nil
}

func (s *Store) ListLedger(ctx context.Context, runID string) ([]backtest.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, close, target, cash, shares, total, fee, traded, action
		FROM ledger WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []backtest.LedgerEntry
	for rows.Next() {
		var (
			e      backtest.LedgerEntry
			date   string
			target string
			action string
		)
		if err := rows.Scan(&date, &e.Close, &target, &e.Cash, &e.Shares, &e.Total, &e.Fee, &e.Traded, &action); err != nil {
			return nil, err
		}
		if e.Date, err = time.Parse(time.DateOnly, date); err != nil {
			return nil, err
		}
		e.Target = parseSignal(target)
		e.Action = strategy.Action(action)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func parseSignal(v string) strategy.Signal {
	switch v {
	case strategy.Long.String():
		return strategy.Long
	case strategy.Flat.String():
		return strategy.Flat
	default:
		return strategy.Undefined
	}
}
