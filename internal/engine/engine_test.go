package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macross/internal/broker"
	"macross/internal/errs"
	"macross/internal/md"
	"macross/internal/risk"
	"macross/internal/strategy"
)

type fakeBroker struct {
	price          float64
	position       float64
	buyingPower    float64
	marketOpen     bool
	openOrder      bool
	portfolioValue float64
	initialEquity  float64
	submitErr      error
	confirm        broker.OrderStatus
	priceErr       error
	submitted      []broker.OrderRequest
}

func (f *fakeBroker) LastPrice(context.Context, string) (float64, error) { return f.price, f.priceErr }
func (f *fakeBroker) Position(context.Context, string) (float64, error)  { return f.position, nil }
func (f *fakeBroker) BuyingPower(context.Context) (float64, error)       { return f.buyingPower, nil }
func (f *fakeBroker) MarketOpen(context.Context) (bool, error)           { return f.marketOpen, nil }
func (f *fakeBroker) HasOpenOrder(context.Context, string) (bool, error) { return f.openOrder, nil }
func (f *fakeBroker) PortfolioValue(context.Context) (float64, error)    { return f.portfolioValue, nil }
func (f *fakeBroker) InitialEquity(context.Context) (float64, error)     { return f.initialEquity, nil }

func (f *fakeBroker) SubmitOrder(_ context.Context, req broker.OrderRequest) (broker.OrderRef, error) {
	if f.submitErr != nil {
		return broker.OrderRef{}, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	// A submitted order stays open until the next session.
	f.openOrder = true
	return broker.OrderRef{ID: "order-1", ClientOrderID: req.ClientOrderID, Status: "accepted"}, nil
}

func (f *fakeBroker) ConfirmOrder(_ context.Context, orderID string) (broker.OrderStatus, error) {
	status := f.confirm
	status.OrderID = orderID
	if status.Status == "" {
		status.Status = "filled"
		status.Attempts = 1
	}
	return status, nil
}

type recordingNotifier struct {
	alerts []string
}

func (r *recordingNotifier) Alert(_ context.Context, text string) {
	r.alerts = append(r.alerts, text)
}

var (
	today = time.Date(2024, 3, 15, 22, 45, 0, 0, time.UTC)
	gate  = risk.Gate{StaleAfterDays: 5, MaxDailyLossPct: -5.0, CashBuffer: 0.95}
)

func healthyBroker() *fakeBroker {
	return &fakeBroker{
		price:          100,
		buyingPower:    1000,
		portfolioValue: 10000,
		initialEquity:  10000,
	}
}

func newTestEngine(b Broker, n Notifier, opts Options) *Engine {
	opts.Symbol = "SPY"
	opts.Gate = gate
	opts.Location = time.UTC
	e := New(opts, nil, nil, b, n, nil)
	e.now = func() time.Time { return today }
	return e
}

// records builds a defined history whose last record is dated last and whose
// confirmed (second to last) signal is target.
func records(last time.Time, target strategy.Signal) []strategy.SignalRecord {
	return []strategy.SignalRecord{
		{Date: last.AddDate(0, 0, -2), Close: 100, Signal: strategy.Flat},
		{Date: last.AddDate(0, 0, -1), Close: 100, Signal: target},
		{Date: last, Close: 100, Signal: target},
	}
}

func session() time.Time {
	return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
}

func TestBuyWhenLongAndFlat(t *testing.T) {
	b := healthyBroker()
	n := &recordingNotifier{}
	recs := records(session(), strategy.Long)
	recs[1].Delta, recs[1].DeltaDefined = 1, true

	d, err := newTestEngine(b, n, Options{}).Decide(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, Bought, d.Outcome)
	assert.Equal(t, strategy.Buy, d.Crossover)
	require.Len(t, b.submitted, 1)
	assert.Equal(t, alpaca.Buy, b.submitted[0].Side)
	assert.Equal(t, "9", b.submitted[0].Qty.String())
	assert.Equal(t, d.RunID, b.submitted[0].ClientOrderID)
	assert.Equal(t, "filled", d.OrderStatus)
	assert.Len(t, n.alerts, 1)
}

func TestSellWholePositionWhenFlat(t *testing.T) {
	b := healthyBroker()
	b.position = 15
	// A pending buy does not block an exit.
	b.openOrder = true
	n := &recordingNotifier{}

	d, err := newTestEngine(b, n, Options{}).Decide(context.Background(), records(session(), strategy.Flat))
	require.NoError(t, err)
	assert.Equal(t, Sold, d.Outcome)
	require.Len(t, b.submitted, 1)
	assert.Equal(t, alpaca.Sell, b.submitted[0].Side)
	assert.Equal(t, "15", b.submitted[0].Qty.String())
	assert.Len(t, n.alerts, 1)
}

func TestSyncedStates(t *testing.T) {
	tests := []struct {
		name     string
		target   strategy.Signal
		position float64
	}{
		{name: "long and holding", target: strategy.Long, position: 15},
		{name: "flat and flat", target: strategy.Flat, position: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := healthyBroker()
			b.position = tt.position
			n := &recordingNotifier{}

			d, err := newTestEngine(b, n, Options{}).Decide(context.Background(), records(session(), tt.target))
			require.NoError(t, err)
			assert.Equal(t, Synced, d.Outcome)
			assert.Empty(t, b.submitted)
			assert.Empty(t, n.alerts)
		})
	}
}

func TestKillSwitch(t *testing.T) {
	tests := []struct {
		name       string
		value      float64
		want       Outcome
		wantAlerts int
		wantOrders int
	}{
		{name: "six percent down halts", value: 9400, want: KillSwitchHalt, wantAlerts: 1},
		{name: "three percent down trades", value: 9700, want: Bought, wantAlerts: 1, wantOrders: 1},
		{name: "exactly at limit trades", value: 9500, want: Bought, wantAlerts: 1, wantOrders: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := healthyBroker()
			b.portfolioValue = tt.value
			n := &recordingNotifier{}

			d, err := newTestEngine(b, n, Options{}).Decide(context.Background(), records(session(), strategy.Long))
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Outcome)
			assert.Len(t, n.alerts, tt.wantAlerts)
			assert.Len(t, b.submitted, tt.wantOrders)
		})
	}
}

func TestStaleDataAborts(t *testing.T) {
	b := healthyBroker()
	n := &recordingNotifier{}

	d, err := newTestEngine(b, n, Options{}).Decide(context.Background(), records(session().AddDate(0, 0, -10), strategy.Long))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrDataFreshness))
	assert.Equal(t, StaleAbort, d.Outcome)
	assert.Equal(t, 10, d.GapDays)
	assert.Empty(t, b.submitted)
	assert.Len(t, n.alerts, 1)
}

func TestHolidayGapStillTrades(t *testing.T) {
	b := healthyBroker()

	d, err := newTestEngine(b, &recordingNotifier{}, Options{}).Decide(context.Background(), records(session().AddDate(0, 0, -4), strategy.Long))
	require.NoError(t, err)
	assert.Equal(t, 4, d.GapDays)
	assert.Equal(t, Bought, d.Outcome)
}

func TestMarketOpenSkipsQuietly(t *testing.T) {
	b := healthyBroker()
	b.marketOpen = true
	// Loss beyond the limit is never looked at while the market is open.
	b.portfolioValue = 9000
	n := &recordingNotifier{}

	d, err := newTestEngine(b, n, Options{}).Decide(context.Background(), records(session(), strategy.Long))
	require.NoError(t, err)
	assert.Equal(t, MarketOpenSkip, d.Outcome)
	assert.Empty(t, b.submitted)
	assert.Empty(t, n.alerts)
}

func TestDuplicateGuardAndIdempotence(t *testing.T) {
	b := healthyBroker()
	e := newTestEngine(b, &recordingNotifier{}, Options{})
	recs := records(session(), strategy.Long)

	first, err := e.Decide(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, Bought, first.Outcome)

	second, err := e.Decide(context.Background(), recs)
	require.NoError(t, err)
	assert.Equal(t, DuplicateSkip, second.Outcome)
	assert.Len(t, b.submitted, 1)
}

func TestInsufficientFunds(t *testing.T) {
	b := healthyBroker()
	b.buyingPower = 50

	d, err := newTestEngine(b, &recordingNotifier{}, Options{}).Decide(context.Background(), records(session(), strategy.Long))
	require.NoError(t, err)
	assert.Equal(t, InsufficientFunds, d.Outcome)
	assert.Empty(t, b.submitted)
}

func TestSubmitFailureEndsSessionNormally(t *testing.T) {
	b := healthyBroker()
	b.submitErr = errors.New("insufficient buying power")
	n := &recordingNotifier{}

	d, err := newTestEngine(b, n, Options{}).Decide(context.Background(), records(session(), strategy.Long))
	require.NoError(t, err)
	assert.Equal(t, OrderFailed, d.Outcome)
	assert.Contains(t, d.Reason, "insufficient buying power")
	assert.Len(t, n.alerts, 1)
}

func TestPendingConfirmationIsNotAnError(t *testing.T) {
	b := healthyBroker()
	b.confirm = broker.OrderStatus{Status: "accepted", Attempts: 3, Pending: true}

	d, err := newTestEngine(b, &recordingNotifier{}, Options{}).Decide(context.Background(), records(session(), strategy.Long))
	require.NoError(t, err)
	assert.Equal(t, Bought, d.Outcome)
	assert.True(t, d.Pending)
	assert.Equal(t, "accepted", d.OrderStatus)
}

func TestDryRunSubmitsNothing(t *testing.T) {
	b := healthyBroker()
	n := &recordingNotifier{}

	d, err := newTestEngine(b, n, Options{DryRun: true}).Decide(context.Background(), records(session(), strategy.Long))
	require.NoError(t, err)
	assert.Equal(t, Bought, d.Outcome)
	assert.Equal(t, 9.0, d.Qty)
	assert.True(t, d.DryRun)
	assert.Empty(t, b.submitted)
	assert.Empty(t, n.alerts)
}

func TestUndefinedConfirmedSignal(t *testing.T) {
	recs := records(session(), strategy.Long)
	recs[1].Signal = strategy.Undefined

	_, err := newTestEngine(healthyBroker(), nil, Options{}).Decide(context.Background(), recs)
	var fieldErr *errs.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "signal", fieldErr.Field)
}

func TestTooFewRecords(t *testing.T) {
	_, err := newTestEngine(healthyBroker(), nil, Options{}).Decide(context.Background(), records(session(), strategy.Long)[:1])
	assert.True(t, errors.Is(err, errs.ErrValidation))
}

func TestDecisionsAreJournaled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.ndjson")
	logger, err := NewDecisionLogger(path)
	require.NoError(t, err)

	e := newTestEngine(healthyBroker(), &recordingNotifier{}, Options{})
	e.decisions = logger
	_, err = e.Decide(context.Background(), records(session(), strategy.Long))
	require.NoError(t, err)
	_, err = e.Decide(context.Background(), records(session(), strategy.Long))
	require.NoError(t, err)
	require.NoError(t, logger.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var outcomes []Outcome
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var d Decision
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &d))
		assert.Equal(t, "SPY", d.Symbol)
		assert.Equal(t, "LONG", d.Target)
		assert.Equal(t, strategy.Hold, d.Crossover)
		outcomes = append(outcomes, d.Outcome)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []Outcome{Bought, DuplicateSkip}, outcomes)
}

type fakeSource struct {
	bars []md.Bar
	err  error
}

func (f fakeSource) Fetch(context.Context, string, time.Time, time.Time) ([]md.Bar, error) {
	return f.bars, f.err
}

func risingBars(n int, last time.Time) []md.Bar {
	bars := make([]md.Bar, n)
	for i := range bars {
		bars[i] = md.Bar{Date: last.AddDate(0, 0, i-n+1), Close: float64(100 + i)}
	}
	return bars
}

func TestRunOnceBuysOnGoldenCross(t *testing.T) {
	strat, err := strategy.NewCrossover(2, 4)
	require.NoError(t, err)
	b := healthyBroker()

	e := New(Options{Symbol: "SPY", Gate: gate, Location: time.UTC, Lookback: 30 * 24 * time.Hour},
		fakeSource{bars: risingBars(8, session())}, strat, b, &recordingNotifier{}, nil)
	e.now = func() time.Time { return today }

	d, err := e.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Bought, d.Outcome)
	assert.Len(t, b.submitted, 1)
}

func TestRunSessionSwallowsFailures(t *testing.T) {
	strat, err := strategy.NewCrossover(2, 4)
	require.NoError(t, err)

	t.Run("fetch error", func(t *testing.T) {
		e := New(Options{Symbol: "SPY", Gate: gate}, fakeSource{err: errs.ErrExternalService}, strat, healthyBroker(), nil, nil)
		assert.NotPanics(t, func() { e.RunSession(context.Background()) })
	})

	t.Run("panic", func(t *testing.T) {
		b := healthyBroker()
		e := New(Options{Symbol: "SPY", Gate: gate, Location: time.UTC},
			fakeSource{bars: risingBars(8, session())}, strat, b, nil, nil)
		e.now = func() time.Time { panic("clock broke") }
		assert.NotPanics(t, func() { e.RunSession(context.Background()) })
		assert.Empty(t, b.submitted)
	})
}
