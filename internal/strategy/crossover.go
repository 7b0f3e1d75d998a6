package strategy

import (
	"fmt"
	"log/slog"
	"math"

	"macross/internal/errs"
	"macross/internal/md"
)

// Crossover is a moving-average crossover: long while the short SMA is above
// the long SMA, flat otherwise.
type Crossover struct {
	short int
	long  int
}

func NewCrossover(short, long int) (*Crossover, error) {
	if short < 1 {
		return nil, fmt.Errorf("%w: short_window (%d) must be positive", errs.ErrConfiguration, short)
	}
	if short >= long {
		return nil, fmt.Errorf("%w: short_window (%d) must be less than long_window (%d)", errs.ErrConfiguration, short, long)
	}
	return &Crossover{short: short, long: long}, nil
}

func (c *Crossover) ShortWindow() int { return c.short }

func (c *Crossover) LongWindow() int { return c.long }

// Generate returns one record per bar. Records before the long window fills
// have an Undefined signal; callers that trade on the output must hand in at
// least LongWindow bars and read only defined records.
func (c *Crossover) Generate(bars []md.Bar) ([]SignalRecord, error) {
	slog.Debug("calculating moving averages", "short", c.short, "long", c.long, "bars", len(bars))

	shortWin := md.NewWindow(c.short)
	longWin := md.NewWindow(c.long)
	records := make([]SignalRecord, len(bars))
	for i, bar := range bars {
		if math.IsNaN(bar.Close) {
			return nil, errs.Missing("close", i, bar.Date.Format("2006-01-02"))
		}
		shortWin.Add(bar.Close)
		longWin.Add(bar.Close)

		rec := undefinedRecord(bar.Date, bar.Close)
		if mean, ok := shortWin.Mean(); ok {
			rec.SMAShort = mean
		}
		if mean, ok := longWin.Mean(); ok {
			rec.SMALong = mean
			rec.Signal = Flat
			if rec.SMAShort > rec.SMALong {
				rec.Signal = Long
			}
		}
		if i > 0 && rec.Defined() && records[i-1].Defined() {
			rec.Delta = rec.Signal.Value() - records[i-1].Signal.Value()
			rec.DeltaDefined = true
		}
		records[i] = rec
	}
	return records, nil
}
