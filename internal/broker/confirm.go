package broker

import (
	"context"
	"log/slog"
	"time"
)

// ConfirmPolicy bounds how long ConfirmOrder follows an order.
type ConfirmPolicy struct {
	// Delay before the first status check.
	Delay time.Duration
	// Attempts is the number of status checks.
	Attempts int
	// Backoff multiplies the delay after each in-flight check.
	Backoff float64
}

func (p ConfirmPolicy) withDefaults() ConfirmPolicy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Backoff < 1 {
		p.Backoff = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// OrderStatus is where an order stood when ConfirmOrder stopped watching it.
type OrderStatus struct {
	OrderID  string
	Status   string
	Attempts int
	// Pending is set when the order was still in flight after the last check.
	Pending bool
}

var (
	filledStatuses   = map[string]bool{"filled": true}
	inFlightStatuses = map[string]bool{
		"new":              true,
		"accepted":         true,
		"pending_new":      true,
		"partially_filled": true,
	}
)

// Accepted reports whether the order is filled or still working normally.
func (s OrderStatus) Accepted() bool {
	return filledStatuses[s.Status] || inFlightStatuses[s.Status]
}

func (s OrderStatus) Filled() bool {
	return filledStatuses[s.Status]
}

// ConfirmOrder polls the order until it fills, leaves the accepted states or the
// policy runs out of attempts. Running out is not an error: the returned status
// has Pending set.
func (c *Client) ConfirmOrder(ctx context.Context, orderID string) (OrderStatus, error) {
	delay := c.confirm.Delay
	status := OrderStatus{OrderID: orderID}
	for attempt := 1; attempt <= c.confirm.Attempts; attempt++ {
		if err := WaitForContext(ctx, delay); err != nil {
			return status, err
		}
		if err := c.wait(ctx); err != nil {
			return status, err
		}
		order, err := c.trading.GetOrder(orderID)
		if err != nil {
			slog.Warn("order status check failed", "order_id", orderID, "attempt", attempt, "error", err)
			return status, external("get order", err)
		}
		status.Status = string(order.Status)
		status.Attempts = attempt
		slog.Info("order confirmation", "order_id", orderID, "status", status.Status, "attempt", attempt)

		if status.Filled() || !status.Accepted() {
			return status, nil
		}
		delay = time.Duration(float64(delay) * c.confirm.Backoff)
	}
	status.Pending = true
	return status, nil
}
