package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"macross/internal/backtest"
)

var ledgerHeader = []string{"date", "close", "target", "cash", "shares", "total", "fee", "traded", "action"}

// WriteLedgerCSV writes the ledger with a header row.
func WriteLedgerCSV(w io.Writer, ledger []backtest.LedgerEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ledgerHeader); err != nil {
		return err
	}
	for _, e := range ledger {
		err := cw.Write([]string{
			e.Date.Format(time.DateOnly),
			f(e.Close),
			e.Target.String(),
			f(e.Cash),
			f(e.Shares),
			f(e.Total),
			f(e.Fee),
			strconv.FormatBool(e.Traded),
			string(e.Action),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveLedgerCSV writes the ledger to path.
func SaveLedgerCSV(path string, ledger []backtest.LedgerEntry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create ledger csv: %w", err)
	}
	if err := WriteLedgerCSV(file, ledger); err != nil {
		_ = file.Close()
		return fmt.Errorf("write ledger csv: %w", err)
	}
	return file.Close()
}

// SaveReport writes the run summary as YAML.
func SaveReport(path string, run Run) error {
	data, err := yaml.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
