package backtest

import "time"

// Summary is the performance of one backtest run.
type Summary struct {
	Start          time.Time `yaml:"start"`
	End            time.Time `yaml:"end"`
	Bars           int       `yaml:"bars"`
	InitialCapital float64   `yaml:"initial_capital"`
	FinalValue     float64   `yaml:"final_value"`
	ReturnPct      float64   `yaml:"return_pct"`
	Trades         int       `yaml:"trades"`
	FeesPaid       float64   `yaml:"fees_paid"`
	MaxDrawdownPct float64   `yaml:"max_drawdown_pct"`
}

func Summarize(ledger []LedgerEntry, initialCapital float64) Summary {
	s := Summary{InitialCapital: initialCapital, Bars: len(ledger), FinalValue: initialCapital}
	if len(ledger) == 0 {
		return s
	}
	s.Start = ledger[0].Date
	s.End = ledger[len(ledger)-1].Date
	s.FinalValue = ledger[len(ledger)-1].Total
	s.ReturnPct = (s.FinalValue - initialCapital) / initialCapital * 100

	peak := initialCapital
	for _, e := range ledger {
		if e.Traded {
			s.Trades++
			s.FeesPaid += e.Fee
		}
		if e.Total > peak {
			peak = e.Total
		}
		if dd := (peak - e.Total) / peak * 100; dd > s.MaxDrawdownPct {
			s.MaxDrawdownPct = dd
		}
	}
	return s
}
