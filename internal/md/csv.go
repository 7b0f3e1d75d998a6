package md

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"macross/internal/errs"
)

// CSVSource reads a daily history file with a date column and a close column:
//
//	Date,Open,High,Low,Close,Volume
//	2020-01-02,...
//
// A header row is optional; without one the first two columns are taken as
// date,close. Rows outside [start, end] are skipped, fully empty rows are
// dropped and an empty close cell is treated as missing.
type CSVSource struct {
	path string
	opts CleanOptions
}

func NewCSVSource(path string, opts CleanOptions) *CSVSource {
	return &CSVSource{path: path, opts: opts}
}

func (s *CSVSource) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", errs.ErrData, s.path, err)
	}
	defer f.Close()

	bars, err := ReadCSV(f, start, end)
	if err != nil {
		return nil, err
	}
	return Clean(symbol, bars, s.opts)
}

// ReadCSV parses rows into bars without cleaning them.
func ReadCSV(r io.Reader, start, end time.Time) ([]Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	dateCol, closeCol := 0, 1
	first := true
	var bars []Bar
	for line := 1; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read line %d: %v", errs.ErrData, line, err)
		}
		if emptyRow(row) {
			continue
		}

		if first {
			first = false
			if _, err := parseDate(row[0]); err != nil {
				dateCol, closeCol = headerColumns(row)
				if closeCol < 0 {
					return nil, errs.Missing("close", 0, "no close column in header")
				}
				if dateCol < 0 {
					return nil, errs.Missing("date", 0, "no date column in header")
				}
				continue
			}
		}

		bar, err := parseRow(row, dateCol, closeCol)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", errs.ErrData, line, err)
		}
		if !start.IsZero() && bar.Date.Before(start) {
			continue
		}
		if !end.IsZero() && bar.Date.After(end) {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func headerColumns(header []string) (dateCol, closeCol int) {
	dateCol, closeCol = -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date", "time", "timestamp":
			if dateCol < 0 {
				dateCol = i
			}
		case "close":
			closeCol = i
		}
	}
	return dateCol, closeCol
}

func parseRow(row []string, dateCol, closeCol int) (Bar, error) {
	if dateCol >= len(row) {
		return Bar{}, fmt.Errorf("missing date cell")
	}
	date, err := parseDate(row[dateCol])
	if err != nil {
		return Bar{}, err
	}
	price := math.NaN()
	if closeCol < len(row) {
		if cell := strings.TrimSpace(row[closeCol]); cell != "" {
			price, err = strconv.ParseFloat(cell, 64)
			if err != nil {
				return Bar{}, fmt.Errorf("bad close %q: %w", cell, err)
			}
		}
	}
	return Bar{Date: date, Close: price}, nil
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.DateOnly, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", value, err)
	}
	return SessionDate(t, t.Location()), nil
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
