// Package notify delivers operator alerts. Delivery is best effort: failures
// are logged and never returned to the trading path.
package notify

import (
	"context"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// Subject is the subject line of every alert email.
const Subject = "!! ALGO TRADING ALERT !!"

// Sink delivers one alert message.
type Sink interface {
	Send(message string) error
}

// Notifier fans an alert out to its sinks.
type Notifier struct {
	sinks []Sink
}

func New(sinks ...Sink) *Notifier {
	return &Notifier{sinks: sinks}
}

func (n *Notifier) Alert(ctx context.Context, text string) {
	for _, sink := range n.sinks {
		if ctx.Err() != nil {
			slog.Warn("alert dropped", "reason", ctx.Err())
			return
		}
		if err := sink.Send(text); err != nil {
			slog.Error("failed to send alert", "sink", sinkName(sink), "error", err)
		}
	}
}

func sinkName(s Sink) string {
	switch s.(type) {
	case *Email:
		return "email"
	case Log:
		return "log"
	default:
		return "custom"
	}
}

// Log writes alerts to the process log.
type Log struct{}

func (Log) Send(message string) error {
	slog.Warn("ALERT", "message", message)
	return nil
}

type EmailConfig struct {
	User     string
	Password string
	Host     string
	Port     int
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Email sends each alert from the account to itself over SMTP.
type Email struct {
	user   string
	dialer dialer
}

// NewEmail returns nil and logs a warning when credentials are missing, so
// callers can skip the sink.
func NewEmail(cfg EmailConfig) *Email {
	if cfg.User == "" || cfg.Password == "" {
		slog.Warn("email credentials missing, email alerts disabled")
		return nil
	}
	return &Email{
		user:   cfg.User,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
	}
}

func (e *Email) Send(message string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", e.user)
	m.SetHeader("To", e.user)
	m.SetHeader("Subject", Subject)
	m.SetBody("text/plain", message)
	if err := e.dialer.DialAndSend(m); err != nil {
		return err
	}
	slog.Info("email alert sent")
	return nil
}
