package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"macross/internal/broker"
	"macross/internal/errs"
	"macross/internal/id"
	"macross/internal/md"
	"macross/internal/risk"
	"macross/internal/strategy"
)

// Broker is the brokerage account the engine trades against. Position returns
// 0 when nothing is held.
type Broker interface {
	LastPrice(ctx context.Context, symbol string) (float64, error)
	Position(ctx context.Context, symbol string) (float64, error)
	BuyingPower(ctx context.Context) (float64, error)
	MarketOpen(ctx context.Context) (bool, error)
	HasOpenOrder(ctx context.Context, symbol string) (bool, error)
	PortfolioValue(ctx context.Context) (float64, error)
	InitialEquity(ctx context.Context) (float64, error)
	SubmitOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderRef, error)
	ConfirmOrder(ctx context.Context, orderID string) (broker.OrderStatus, error)
}

type Notifier interface {
	Alert(ctx context.Context, text string)
}

// Outcome is the terminal state of one session.
type Outcome string

const (
	StaleAbort        Outcome = "stale_abort"
	MarketOpenSkip    Outcome = "market_open_skip"
	KillSwitchHalt    Outcome = "kill_switch_halt"
	DuplicateSkip     Outcome = "duplicate_skip"
	Bought            Outcome = "buy"
	Sold              Outcome = "sell"
	Synced            Outcome = "synced"
	InsufficientFunds Outcome = "insufficient_funds"
	OrderFailed       Outcome = "order_failed"
)

type Options struct {
	Symbol string
	Gate   risk.Gate
	// Location is the calendar today is read in for the staleness check.
	Location *time.Location
	// Lookback is how much history is fetched per session.
	Lookback time.Duration
	DryRun   bool
}

type Engine struct {
	opts      Options
	source    md.Source
	strategy  *strategy.Crossover
	broker    Broker
	notifier  Notifier
	decisions *DecisionLogger
	now       func() time.Time
}

func New(opts Options, source md.Source, strat *strategy.Crossover, b Broker, notifier Notifier, decisions *DecisionLogger) *Engine {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Engine{
		opts:      opts,
		source:    source,
		strategy:  strat,
		broker:    b,
		notifier:  notifier,
		decisions: decisions,
		now:       time.Now,
	}
}

// RunSession is the scheduled entrypoint. It never returns an error and never
// panics: whatever goes wrong is logged and the next trigger starts fresh.
func (e *Engine) RunSession(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("live session panicked", "symbol", e.opts.Symbol, "panic", r)
		}
	}()

	slog.Info("waking up live bot", "symbol", e.opts.Symbol, "dry_run", e.opts.DryRun)
	decision, err := e.RunOnce(ctx)
	if err != nil {
		slog.Error("live session failed", "symbol", e.opts.Symbol, "outcome", decision.Outcome, "error", err)
		return
	}
	slog.Info("bot going back to sleep", "symbol", e.opts.Symbol, "outcome", decision.Outcome)
}

// RunOnce fetches history, computes the signal and runs one guarded decision.
func (e *Engine) RunOnce(ctx context.Context) (Decision, error) {
	now := e.now().In(e.opts.Location)
	start := now.Add(-e.opts.Lookback)

	bars, err := e.source.Fetch(ctx, e.opts.Symbol, start, now)
	if err != nil {
		return Decision{}, fmt.Errorf("fetch history: %w", err)
	}
	records, err := e.strategy.Generate(bars)
	if err != nil {
		return Decision{}, fmt.Errorf("generate signals: %w", err)
	}
	return e.Decide(ctx, records)
}

// Decide runs the guards in order against fresh broker state: staleness,
// market hours, kill switch, then syncs the position to the last confirmed
// signal. The decision is journaled whatever the outcome.
func (e *Engine) Decide(ctx context.Context, records []strategy.SignalRecord) (Decision, error) {
	d := Decision{
		RunID:     id.New(),
		Timestamp: e.now().UTC(),
		Symbol:    e.opts.Symbol,
		DryRun:    e.opts.DryRun,
	}
	err := e.decide(ctx, records, &d)
	if err != nil && d.Outcome == "" {
		d.Reason = err.Error()
	}
	if e.decisions != nil {
		e.decisions.Append(d)
	}
	return d, err
}

func (e *Engine) decide(ctx context.Context, records []strategy.SignalRecord, d *Decision) error {
	n := len(records)
	if n < 2 {
		return errs.Missing("signal", n-2, "need at least two signal records")
	}

	last := records[n-1]
	d.SignalDate = last.Date
	gap, freshness := e.opts.Gate.Freshness(e.now().In(e.opts.Location), last.Date)
	d.GapDays = gap
	if freshness == risk.Stale {
		d.Outcome = StaleAbort
		d.Reason = fmt.Sprintf("last data date %s is %d days old", last.Date.Format(time.DateOnly), gap)
		e.alert(ctx, fmt.Sprintf("Data for %s appears stale: %s. No trading this session.", e.opts.Symbol, d.Reason))
		return fmt.Errorf("%w: %s", errs.ErrDataFreshness, d.Reason)
	}

	// The last record can be today's unfinished session; act on the one before.
	confirmed := records[n-2]
	if !confirmed.Defined() {
		return errs.Missing("signal", n-2, "confirmed signal undefined, history shorter than long window")
	}
	target := confirmed.Signal
	d.Target = target.String()
	d.Crossover = confirmed.Action()

	var err error
	if d.Snapshot.LastPrice, err = e.broker.LastPrice(ctx, e.opts.Symbol); err != nil {
		return err
	}
	if d.Snapshot.PositionQty, err = e.broker.Position(ctx, e.opts.Symbol); err != nil {
		return err
	}
	slog.Info("session state", "symbol", e.opts.Symbol, "price", d.Snapshot.LastPrice, "target", target, "crossover", d.Crossover, "position", d.Snapshot.PositionQty, "gap_days", gap)

	if d.Snapshot.MarketOpen, err = e.broker.MarketOpen(ctx); err != nil {
		return err
	}
	if d.Snapshot.MarketOpen {
		slog.Warn("market is currently open, skipping to avoid live execution", "symbol", e.opts.Symbol)
		d.Outcome = MarketOpenSkip
		return nil
	}

	if d.Snapshot.PortfolioValue, err = e.broker.PortfolioValue(ctx); err != nil {
		return err
	}
	if d.Snapshot.InitialEquity, err = e.broker.InitialEquity(ctx); err != nil {
		return err
	}
	if d.DailyLossPct, err = risk.DailyLossPct(d.Snapshot.PortfolioValue, d.Snapshot.InitialEquity); err != nil {
		return err
	}
	if e.opts.Gate.Halt(d.DailyLossPct) {
		d.Outcome = KillSwitchHalt
		d.Reason = fmt.Sprintf("daily loss %.2f%% beyond %.2f%%", d.DailyLossPct, e.opts.Gate.MaxDailyLossPct)
		e.alert(ctx, fmt.Sprintf("EMERGENCY EXIT TRIGGERED for %s: %s. Bot halting.", e.opts.Symbol, d.Reason))
		return nil
	}

	switch {
	case target == strategy.Long && d.Snapshot.PositionQty == 0:
		return e.enter(ctx, d)
	case target == strategy.Flat && d.Snapshot.PositionQty > 0:
		return e.exit(ctx, d)
	default:
		slog.Info("state is synced, no action required", "symbol", e.opts.Symbol, "target", target, "position", d.Snapshot.PositionQty)
		d.Outcome = Synced
		return nil
	}
}

func (e *Engine) enter(ctx context.Context, d *Decision) error {
	var err error
	if d.Snapshot.HasOpenOrder, err = e.broker.HasOpenOrder(ctx, e.opts.Symbol); err != nil {
		return err
	}
	if d.Snapshot.HasOpenOrder {
		slog.Info("open order already exists, skipping to avoid duplicate buy", "symbol", e.opts.Symbol)
		d.Outcome = DuplicateSkip
		return nil
	}

	slog.Info("mismatch: strategy wants in, position is flat", "symbol", e.opts.Symbol)
	if d.Snapshot.BuyingPower, err = e.broker.BuyingPower(ctx); err != nil {
		return err
	}
	qty := e.opts.Gate.BuyQty(d.Snapshot.BuyingPower, d.Snapshot.LastPrice)
	if qty <= 0 {
		slog.Warn("insufficient funds to buy one share", "symbol", e.opts.Symbol, "buying_power", d.Snapshot.BuyingPower, "price", d.Snapshot.LastPrice)
		d.Outcome = InsufficientFunds
		return nil
	}
	return e.execute(ctx, d, alpaca.Buy, decimal.NewFromInt(qty))
}

func (e *Engine) exit(ctx context.Context, d *Decision) error {
	slog.Info("mismatch: strategy wants out, liquidating", "symbol", e.opts.Symbol, "position", d.Snapshot.PositionQty)
	return e.execute(ctx, d, alpaca.Sell, decimal.NewFromFloat(d.Snapshot.PositionQty))
}

// execute submits one market order and follows it. A failed submission means
// no order was placed and ends the session normally.
func (e *Engine) execute(ctx context.Context, d *Decision, side alpaca.Side, qty decimal.Decimal) error {
	outcome := Bought
	if side == alpaca.Sell {
		outcome = Sold
	}
	d.Qty, _ = qty.Float64()

	if e.opts.DryRun {
		slog.Info("dry run, order not submitted", "symbol", e.opts.Symbol, "side", side, "qty", qty.String())
		d.Outcome = outcome
		return nil
	}

	ref, err := e.broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:        e.opts.Symbol,
		Qty:           qty,
		Side:          side,
		ClientOrderID: d.RunID,
	})
	if err != nil {
		d.Outcome = OrderFailed
		d.Reason = err.Error()
		e.alert(ctx, fmt.Sprintf("%s order for %s %s failed: %v", side, qty.String(), e.opts.Symbol, err))
		return nil
	}
	d.Outcome = outcome
	d.OrderID = ref.ID
	d.ClientOrderID = ref.ClientOrderID
	d.OrderStatus = ref.Status

	status, err := e.broker.ConfirmOrder(ctx, ref.ID)
	switch {
	case err != nil:
		slog.Warn("order confirmation failed", "order_id", ref.ID, "error", err)
	case status.Pending:
		d.OrderStatus = status.Status
		d.Pending = true
		slog.Warn("order still pending after confirmation window", "order_id", ref.ID, "status", status.Status, "attempts", status.Attempts)
	case !status.Accepted():
		d.OrderStatus = status.Status
		slog.Warn("order has unexpected status", "order_id", ref.ID, "status", status.Status)
	default:
		d.OrderStatus = status.Status
	}

	e.alert(ctx, fmt.Sprintf("%s %s %s at ~$%.2f. Order %s status: %s.",
		side, qty.String(), e.opts.Symbol, d.Snapshot.LastPrice, ref.ID, d.OrderStatus))
	return nil
}

func (e *Engine) alert(ctx context.Context, text string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Alert(ctx, text)
}
