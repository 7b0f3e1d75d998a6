package md

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macross/internal/errs"
)

func linearBars(n int, from, to float64) []Bar {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]Bar, n)
	step := 0.0
	if n > 1 {
		step = (to - from) / float64(n-1)
	}
	for i := range bars {
		bars[i] = Bar{Date: start.AddDate(0, 0, i), Close: from + step*float64(i)}
	}
	return bars
}

func TestCleanRejectsNonPositivePrices(t *testing.T) {
	bars := linearBars(250, 100, -10)

	_, err := Clean("SPY", bars, CleanOptions{MaxFill: 3, MinBars: 200})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrData))
	assert.Contains(t, err.Error(), "zero or negative prices")
}

func TestCleanRejectsShortHistory(t *testing.T) {
	bars := linearBars(50, 100, 110)

	_, err := Clean("SPY", bars, CleanOptions{MaxFill: 3, MinBars: 200})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrData))
	assert.Contains(t, err.Error(), "need at least 200")
}

func TestCleanRejectsEmpty(t *testing.T) {
	_, err := Clean("SPY", nil, CleanOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data found")
}

func TestCleanForwardFill(t *testing.T) {
	tests := []struct {
		name    string
		missing []int
		wantErr bool
	}{
		{name: "single gap", missing: []int{5}},
		{name: "three consecutive", missing: []int{5, 6, 7}},
		{name: "four consecutive", missing: []int{5, 6, 7, 8}, wantErr: true},
		{name: "leading gap", missing: []int{0}, wantErr: true},
		{name: "separate runs", missing: []int{2, 3, 4, 8, 9, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bars := linearBars(20, 100, 120)
			for _, i := range tt.missing {
				bars[i].Close = math.NaN()
			}

			out, err := Clean("SPY", bars, CleanOptions{MaxFill: 3, MinBars: 10})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errs.ErrData))
				assert.Contains(t, err.Error(), "unfillable gaps")
				return
			}
			require.NoError(t, err)
			for _, i := range tt.missing {
				assert.Equal(t, out[i-1].Close, out[i].Close)
			}
			// The input is left untouched.
			assert.True(t, bars[tt.missing[0]].Missing())
		})
	}
}

func TestCleanRejectsUnorderedDates(t *testing.T) {
	bars := linearBars(10, 100, 110)
	bars[4].Date = bars[3].Date

	_, err := Clean("SPY", bars, CleanOptions{MaxFill: 3, MinBars: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not strictly increasing")
}

func TestSessionDateUsesExchangeCalendar(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// Alpaca stamps daily bars at midnight New York time.
	ts := time.Date(2024, 3, 8, 5, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), SessionDate(ts, ny))

	late := time.Date(2024, 3, 9, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), SessionDate(late, ny))
}
