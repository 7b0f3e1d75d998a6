package engine

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"macross/internal/broker"
	"macross/internal/strategy"
)

// Decision is one line of the decision journal. The journal is an audit trail
// and is never read back by the engine.
type Decision struct {
	RunID         string                 `json:"run_id"`
	Timestamp     time.Time              `json:"timestamp"`
	Symbol        string                 `json:"symbol"`
	SignalDate    time.Time              `json:"signal_date"`
	GapDays       int                    `json:"gap_days"`
	Target        string                 `json:"target,omitempty"`
	Crossover     strategy.Action        `json:"crossover,omitempty"`
	Outcome       Outcome                `json:"outcome,omitempty"`
	Snapshot      broker.AccountSnapshot `json:"snapshot"`
	DailyLossPct  float64                `json:"daily_loss_pct"`
	Qty           float64                `json:"qty,omitempty"`
	OrderID       string                 `json:"order_id,omitempty"`
	ClientOrderID string                 `json:"client_order_id,omitempty"`
	OrderStatus   string                 `json:"order_status,omitempty"`
	Pending       bool                   `json:"pending,omitempty"`
	DryRun        bool                   `json:"dry_run,omitempty"`
	Reason        string                 `json:"reason,omitempty"`
}

type DecisionLogger struct {
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func NewDecisionLogger(path string) (*DecisionLogger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLogger{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (d *DecisionLogger) Append(decision Decision) {
	d.mu.Lock()
	defer d.mu.Unlock()
	payload, err := json.Marshal(decision)
	if err != nil {
		slog.Error("failed to marshal decision", "error", err)
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		slog.Error("failed to write decision", "error", err)
		return
	}
	if err := d.writer.Flush(); err != nil {
		slog.Error("failed to flush decision log", "error", err)
	}
}

func (d *DecisionLogger) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
