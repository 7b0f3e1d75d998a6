package md

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"macross/internal/errs"
)

type barsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaSource reads split and dividend adjusted daily bars from the Alpaca
// market data API.
type AlpacaSource struct {
	client barsClient
	feed   marketdata.Feed
	loc    *time.Location
	opts   CleanOptions
}

func NewAlpacaSource(apiKey, apiSecret, feed string, loc *time.Location, opts CleanOptions) *AlpacaSource {
	client := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})
	return &AlpacaSource{client: client, feed: parseFeed(feed), loc: loc, opts: opts}
}

func (s *AlpacaSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slog.Info("fetching historical data", "source", "alpaca", "symbol", symbol,
		"start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))

	raw, err := s.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.All,
		Start:      start,
		End:        end,
		Feed:       s.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: fetch bars for %s: %v", errs.ErrExternalService, symbol, err)
	}

	bars := make([]Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, Bar{Date: SessionDate(b.Timestamp, s.loc), Close: b.Close})
	}
	return Clean(symbol, bars, s.opts)
}

func parseFeed(feed string) marketdata.Feed {
	switch feed {
	case "iex":
		return marketdata.IEX
	case "sip":
		return marketdata.SIP
	default:
		return marketdata.IEX
	}
}
