package main

import (
	"context"
	"fmt"
	"log/slog"

	"macross/internal/broker"
	"macross/internal/config"
	"macross/internal/engine"
	"macross/internal/md"
	"macross/internal/notify"
	"macross/internal/risk"
	"macross/internal/strategy"
)

func newSource(c config.Config) (md.Source, error) {
	opts := md.CleanOptions{MaxFill: c.Data.MaxFill, MinBars: c.MinBars()}
	loc := c.LiveLocation()
	switch c.Data.Source {
	case config.SourceAlpaca:
		if err := c.RequireAlpaca(); err != nil {
			return nil, err
		}
		return md.NewAlpacaSource(c.Alpaca.APIKey, c.Alpaca.APISecret, c.Data.Feed, loc, opts), nil
	case config.SourceYahoo:
		return md.NewYahooSource(loc, opts), nil
	case config.SourceCSV:
		return md.NewCSVSource(c.Data.CSVPath, opts), nil
	default:
		return nil, fmt.Errorf("unknown data source %q", c.Data.Source)
	}
}

func newBroker(c config.Config) (*broker.Client, error) {
	if err := c.RequireAlpaca(); err != nil {
		return nil, err
	}
	return broker.New(broker.Options{
		APIKey:            c.Alpaca.APIKey,
		APISecret:         c.Alpaca.APISecret,
		BaseURL:           c.Alpaca.BaseURL,
		Feed:              c.Data.Feed,
		RequestsPerMinute: c.Live.RequestsPerMinute,
		Confirm: broker.ConfirmPolicy{
			Delay:    c.Live.ConfirmDelay,
			Attempts: c.Live.ConfirmAttempts,
			Backoff:  c.Live.ConfirmBackoff,
		},
	}), nil
}

func newNotifier(c config.Config) *notify.Notifier {
	sinks := []notify.Sink{notify.Log{}}
	email := notify.NewEmail(notify.EmailConfig{
		User:     c.Email.User,
		Password: c.Email.Password,
		Host:     c.Email.Host,
		Port:     c.Email.Port,
	})
	if email != nil {
		sinks = append(sinks, email)
	}
	return notify.New(sinks...)
}

// newLiveEngine wires the engine and validates the API keys. The returned
// decision logger must be closed by the caller.
func newLiveEngine(ctx context.Context, c config.Config) (*engine.Engine, *engine.DecisionLogger, error) {
	strat, err := strategy.NewCrossover(c.Strategy.ShortWindow, c.Strategy.LongWindow)
	if err != nil {
		return nil, nil, err
	}
	source, err := newSource(c)
	if err != nil {
		return nil, nil, err
	}
	client, err := newBroker(c)
	if err != nil {
		return nil, nil, err
	}
	if _, err := client.Validate(ctx); err != nil {
		return nil, nil, err
	}
	decisions, err := engine.NewDecisionLogger(c.Live.DecisionsPath)
	if err != nil {
		return nil, nil, fmt.Errorf("decision logger: %w", err)
	}

	eng := engine.New(engine.Options{
		Symbol: c.Strategy.Symbol,
		Gate: risk.Gate{
			StaleAfterDays:  c.Live.StaleAfterDays,
			MaxDailyLossPct: c.Live.MaxDailyLossPct,
			CashBuffer:      c.Live.CashBuffer,
		},
		Location: c.LiveLocation(),
		Lookback: c.Lookback(),
		DryRun:   c.Live.DryRun,
	}, source, strat, client, newNotifier(c), decisions)
	return eng, decisions, nil
}

func closeDecisions(d *engine.DecisionLogger) {
	if err := d.Close(); err != nil {
		slog.Error("failed to close decision logger", "error", err)
	}
}
