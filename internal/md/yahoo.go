package md

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"

	"macross/internal/errs"
)

// YahooSource reads daily closes from the Yahoo Finance chart endpoint.
type YahooSource struct {
	loc  *time.Location
	opts CleanOptions
	// get is swapped in tests.
	get func(params *chart.Params) ([]Bar, error)
}

func NewYahooSource(loc *time.Location, opts CleanOptions) *YahooSource {
	s := &YahooSource{loc: loc, opts: opts}
	s.get = s.chartBars
	return s
}

func (s *YahooSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slog.Info("fetching historical data", "source", "yahoo", "symbol", symbol,
		"start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))

	bars, err := s.get(&chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch chart for %s: %v", errs.ErrExternalService, symbol, err)
	}
	return Clean(symbol, bars, s.opts)
}

func (s *YahooSource) chartBars(params *chart.Params) ([]Bar, error) {
	iter := chart.Get(params)
	var bars []Bar
	for iter.Next() {
		if bar, ok := chartBar(iter.Bar(), s.loc); ok {
			bars = append(bars, bar)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return bars, nil
}

// chartBar converts one chart row. Yahoo reports nulls as zero: a row with
// no prices at all is dropped, a lone missing close becomes NaN for Clean to
// fill.
func chartBar(b *finance.ChartBar, loc *time.Location) (Bar, bool) {
	if b.Open.IsZero() && b.High.IsZero() && b.Low.IsZero() && b.Close.IsZero() {
		return Bar{}, false
	}
	price, _ := b.Close.Float64()
	if b.Close.IsZero() {
		price = math.NaN()
	}
	ts := time.Unix(int64(b.Timestamp), 0)
	return Bar{Date: SessionDate(ts, loc), Close: price}, true
}
