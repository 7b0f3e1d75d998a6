// Package strategy turns a daily price history into a long/flat target.
package strategy

import (
	"math"
	"time"
)

// Signal is the target position for the bar after the one it was computed on.
// The zero value is Undefined so an unset record never reads as flat.
type Signal int8

const (
	Undefined Signal = iota
	Flat
	Long
)

func (s Signal) String() string {
	switch s {
	case Flat:
		return "FLAT"
	case Long:
		return "LONG"
	default:
		return "UNDEFINED"
	}
}

// Value is the numeric target, 0 for flat and 1 for long. It panics on
// Undefined: reading a signal before both averages exist is a caller bug.
func (s Signal) Value() int {
	switch s {
	case Flat:
		return 0
	case Long:
		return 1
	default:
		panic("strategy: value of undefined signal")
	}
}

type Action string

const (
	Hold Action = "HOLD"
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

// SignalRecord is the strategy's view of one bar. SMAShort and SMALong are NaN
// until their windows fill. Delta is the change in target from the previous
// bar and is only meaningful when DeltaDefined is set.
type SignalRecord struct {
	Date         time.Time
	Close        float64
	SMAShort     float64
	SMALong      float64
	Signal       Signal
	Delta        int
	DeltaDefined bool
}

func (r SignalRecord) Defined() bool {
	return r.Signal != Undefined
}

// Action is the crossover event on this bar: BUY when the target turned long,
// SELL when it turned flat, HOLD otherwise.
func (r SignalRecord) Action() Action {
	if !r.DeltaDefined {
		return Hold
	}
	switch {
	case r.Delta > 0:
		return Buy
	case r.Delta < 0:
		return Sell
	default:
		return Hold
	}
}

// Ready drops the warm-up records whose signal is still undefined.
func Ready(records []SignalRecord) []SignalRecord {
	for i, r := range records {
		if r.Defined() {
			return records[i:]
		}
	}
	return nil
}

func undefinedRecord(date time.Time, price float64) SignalRecord {
	return SignalRecord{
		Date:     date,
		Close:    price,
		SMAShort: math.NaN(),
		SMALong:  math.NaN(),
	}
}
