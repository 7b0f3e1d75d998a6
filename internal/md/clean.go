package md

import (
	"fmt"
	"log/slog"
	"time"

	"macross/internal/errs"
)

// CleanOptions bounds what Clean tolerates.
type CleanOptions struct {
	// MaxFill is the longest run of missing closes that is forward-filled.
	MaxFill int
	// MinBars is the shortest history accepted after cleaning.
	MinBars int
}

// Clean runs the sanity checks every source applies before handing bars to the
// strategy: missing closes are forward-filled up to MaxFill consecutive days,
// then any remaining gap, non-positive close, out of order date or short
// history is rejected with errs.ErrData.
func Clean(symbol string, bars []Bar, opts CleanOptions) ([]Bar, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no data found for %s", errs.ErrData, symbol)
	}

	out := make([]Bar, len(bars))
	copy(out, bars)

	run := 0
	filled := 0
	for i := range out {
		if i > 0 && !out[i].Date.After(out[i-1].Date) {
			return nil, fmt.Errorf("%w: %s dates not strictly increasing at %s", errs.ErrData, symbol, out[i].Date.Format(time.DateOnly))
		}
		if !out[i].Missing() {
			run = 0
			continue
		}
		run++
		if i == 0 || run > opts.MaxFill {
			return nil, fmt.Errorf("%w: %s contains unfillable gaps after forward-fill at %s", errs.ErrData, symbol, out[i].Date.Format(time.DateOnly))
		}
		out[i].Close = out[i-1].Close
		filled++
	}

	for _, bar := range out {
		if bar.Close <= 0 {
			return nil, fmt.Errorf("%w: %s contains zero or negative prices (%s close=%.4f)", errs.ErrData, symbol, bar.Date.Format(time.DateOnly), bar.Close)
		}
	}

	if len(out) < opts.MinBars {
		return nil, fmt.Errorf("%w: only %d days of data fetched for %s, need at least %d", errs.ErrData, len(out), symbol, opts.MinBars)
	}

	slog.Info("data passed integrity checks", "symbol", symbol, "bars", len(out), "filled", filled,
		"first", out[0].Date.Format(time.DateOnly), "last", out[len(out)-1].Date.Format(time.DateOnly))
	return out, nil
}
