// Package backtest replays a crossover signal against a simulated cash/share
// account.
package backtest

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"macross/internal/errs"
	"macross/internal/strategy"
)

// DefaultFeePct is the flat fee charged on each buy or sell notional.
const DefaultFeePct = 0.001

// PortfolioState is the account between bars. Outside the initial state
// exactly one of Cash and Shares is non-zero.
type PortfolioState struct {
	Cash   float64
	Shares float64
}

func (s PortfolioState) Value(price float64) float64 {
	return s.Cash + s.Shares*price
}

// LedgerEntry is the account after the transition applied on one bar.
type LedgerEntry struct {
	Date   time.Time
	Close  float64
	Target strategy.Signal
	Cash   float64
	Shares float64
	Total  float64
	Fee    float64
	Traded bool
	// Action is the crossover event on this bar's own signal, not the
	// transition applied here.
	Action strategy.Action
}

type Options struct {
	InitialCapital float64
	FeePct         float64
}

func (o Options) validate() error {
	if !(o.InitialCapital > 0) {
		return fmt.Errorf("%w: initial capital must be positive, got %v", errs.ErrConfiguration, o.InitialCapital)
	}
	if o.FeePct < 0 || o.FeePct >= 1 || math.IsNaN(o.FeePct) {
		return fmt.Errorf("%w: fee pct must be in [0,1), got %v", errs.ErrConfiguration, o.FeePct)
	}
	return nil
}

type Result struct {
	Ledger  []LedgerEntry
	Final   PortfolioState
	Summary Summary
}

// Step syncs state to target at price. A flat account going long spends all
// cash in one fill after the fee; a long account going flat sells every share
// and pays the fee on the proceeds. Any other combination is already in sync.
func Step(state PortfolioState, target strategy.Signal, price, feePct float64) (next PortfolioState, fee float64, traded bool) {
	switch {
	case target == strategy.Long && state.Shares == 0:
		fee = state.Cash * feePct
		return PortfolioState{Cash: 0, Shares: (state.Cash - fee) / price}, fee, true
	case target == strategy.Flat && state.Shares > 0:
		gross := state.Shares * price
		fee = gross * feePct
		return PortfolioState{Cash: gross - fee, Shares: 0}, fee, true
	default:
		return state, 0, false
	}
}

// Run folds the records into a ledger. The target applied on bar i is the
// signal of bar i-1; bar 0 is held flat. Every record must carry a close and
// every record but the last a defined signal.
func Run(records []strategy.SignalRecord, opts Options) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	if len(records) == 0 {
		return Result{}, errs.Missing("close", 0, "empty signal series")
	}

	slog.Info("running portfolio simulation", "bars", len(records), "capital", opts.InitialCapital, "fee_pct", opts.FeePct)

	state := PortfolioState{Cash: opts.InitialCapital}
	ledger := make([]LedgerEntry, 0, len(records))
	for i, rec := range records {
		if math.IsNaN(rec.Close) || rec.Close <= 0 {
			return Result{}, errs.Missing("close", i, "price must be positive")
		}

		target := strategy.Flat
		if i > 0 {
			target = records[i-1].Signal
			if target == strategy.Undefined {
				return Result{}, errs.Missing("signal", i-1, "undefined signal consumed as target")
			}
		}

		next, fee, traded := Step(state, target, rec.Close, opts.FeePct)
		state = next
		ledger = append(ledger, LedgerEntry{
			Date:   rec.Date,
			Close:  rec.Close,
			Target: target,
			Cash:   state.Cash,
			Shares: state.Shares,
			Total:  state.Value(rec.Close),
			Fee:    fee,
			Traded: traded,
			Action: rec.Action(),
		})
	}

	summary := Summarize(ledger, opts.InitialCapital)
	slog.Info("backtest complete", "ending_value", summary.FinalValue, "return_pct", summary.ReturnPct, "trades", summary.Trades)
	return Result{Ledger: ledger, Final: state, Summary: summary}, nil
}
