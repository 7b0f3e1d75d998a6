// Package journal stores backtest runs and their ledgers.
package journal

import (
	"time"

	"macross/internal/backtest"
)

// Run identifies a backtest and carries its result summary.
type Run struct {
	ID          string           `yaml:"run_id"`
	Created     time.Time        `yaml:"created"`
	Symbol      string           `yaml:"symbol"`
	ShortWindow int              `yaml:"short_window"`
	LongWindow  int              `yaml:"long_window"`
	FeePct      float64          `yaml:"fee_pct"`
	Summary     backtest.Summary `yaml:"summary"`
}
