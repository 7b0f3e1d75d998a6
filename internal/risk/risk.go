package risk

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"macross/internal/errs"
)

// Freshness classifies how old the last bar is relative to today.
type Freshness string

const (
	Fresh      Freshness = "fresh"
	HolidayGap Freshness = "holiday_gap"
	Stale      Freshness = "stale"
)

// Gate holds the live session's safety limits.
type Gate struct {
	// StaleAfterDays is the largest calendar-day gap still traded on.
	StaleAfterDays int
	// MaxDailyLossPct is the kill switch threshold, a negative percentage.
	MaxDailyLossPct float64
	// CashBuffer is the fraction of buying power deployed on a buy.
	CashBuffer float64
}

// DayGap counts calendar days from last to today, each read in its own
// location.
func DayGap(today, last time.Time) int {
	ty, tm, td := today.Date()
	ly, lm, ld := last.Date()
	t := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	l := time.Date(ly, lm, ld, 0, 0, 0, 0, time.UTC)
	return int(t.Sub(l).Hours() / 24)
}

// Freshness checks the gap between today and the last bar's date. Up to one
// day is normal, up to StaleAfterDays is a weekend or holiday, beyond that the
// feed is treated as stale.
func (g Gate) Freshness(today, last time.Time) (int, Freshness) {
	gap := DayGap(today, last)
	switch {
	case gap > g.StaleAfterDays:
		slog.Error("risk rejected", "reason", "stale_data", "last_date", last.Format(time.DateOnly), "gap_days", gap)
		return gap, Stale
	case gap > 1:
		slog.Warn("possible holiday gap", "last_date", last.Format(time.DateOnly), "gap_days", gap)
		return gap, HolidayGap
	default:
		return gap, Fresh
	}
}

// DailyLossPct is the change in account value since the previous close, in
// percent.
func DailyLossPct(portfolioValue, initialEquity float64) (float64, error) {
	if initialEquity <= 0 {
		return 0, fmt.Errorf("%w: initial equity must be positive, got %v", errs.ErrValidation, initialEquity)
	}
	return (portfolioValue - initialEquity) * 100 / initialEquity, nil
}

// Halt reports whether the kill switch trips. The comparison is strict: a loss
// of exactly MaxDailyLossPct keeps trading.
func (g Gate) Halt(lossPct float64) bool {
	if lossPct < g.MaxDailyLossPct {
		slog.Error("risk rejected", "reason", "kill_switch", "daily_loss_pct", lossPct, "max", g.MaxDailyLossPct)
		return true
	}
	return false
}

// BuyQty is the whole number of shares affordable with CashBuffer of
// buyingPower at price.
func (g Gate) BuyQty(buyingPower, price float64) int64 {
	if price <= 0 || buyingPower <= 0 {
		return 0
	}
	investable := decimal.NewFromFloat(buyingPower).Mul(decimal.NewFromFloat(g.CashBuffer))
	qty := investable.Div(decimal.NewFromFloat(price)).Floor().IntPart()
	slog.Info("risk sizing", "buying_power", buyingPower, "cash_buffer", g.CashBuffer, "price", price, "qty", qty)
	return qty
}
