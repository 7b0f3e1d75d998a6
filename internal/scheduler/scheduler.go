// Package scheduler triggers the live session once per weekday at a fixed
// wall-clock time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled run. It must handle its own errors.
type Job func(ctx context.Context)

type Scheduler struct {
	cron *cron.Cron
	at   string
	loc  *time.Location
}

// ParseClock parses an "HH:MM" wall-clock time.
func ParseClock(at string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid schedule time %q: %w", at, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Spec is the cron expression for hour:minute Monday to Friday.
func Spec(hour, minute int) string {
	return fmt.Sprintf("%d %d * * 1-5", minute, hour)
}

// UTCRunTime converts at in loc on day to UTC. The result moves with daylight
// saving in loc.
func UTCRunTime(at string, loc *time.Location, day time.Time) (string, error) {
	hour, minute, err := ParseClock(at)
	if err != nil {
		return "", err
	}
	y, m, d := day.In(loc).Date()
	return time.Date(y, m, d, hour, minute, 0, 0, loc).UTC().Format("15:04"), nil
}

func New(at string, loc *time.Location, job Job) (*Scheduler, error) {
	hour, minute, err := ParseClock(at)
	if err != nil {
		return nil, err
	}
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	s := &Scheduler{cron: c, at: at, loc: loc}

	// The job gets a fresh context per run; cancelling Run stops new triggers
	// and waits for a running job.
	if _, err := c.AddFunc(Spec(hour, minute), func() { job(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule job: %w", err)
	}
	return s, nil
}

// Next is the next trigger time, zero before Run starts the scheduler.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Run blocks until ctx is cancelled, then waits for a running job to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	utc, _ := UTCRunTime(s.at, s.loc, time.Now())
	slog.Info("scheduler started", "at", s.at, "timezone", s.loc.String(), "utc", utc, "next_run", s.Next())

	<-ctx.Done()
	slog.Info("scheduler stopping", "reason", ctx.Err())
	<-s.cron.Stop().Done()
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
