// Package md fetches and cleans daily price history.
package md

import (
	"context"
	"math"
	"time"
)

// Bar is one trading day. Date is the session's calendar date stored as
// midnight UTC. A NaN Close marks a day whose price is missing.
type Bar struct {
	Date  time.Time
	Close float64
}

// Source is the data handler the strategy reads from. Implementations return
// cleaned bars in ascending date order or an error wrapping errs.ErrData or
// errs.ErrExternalService.
type Source interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
}

// SessionDate converts an exchange timestamp to the calendar date it falls
// on in loc.
func SessionDate(ts time.Time, loc *time.Location) time.Time {
	if loc != nil {
		ts = ts.In(loc)
	}
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Missing reports whether the bar has no usable close.
func (b Bar) Missing() bool {
	return math.IsNaN(b.Close)
}
