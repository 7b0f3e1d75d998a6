package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"macross/internal/config"
)

func TestParseClock(t *testing.T) {
	hour, minute, err := ParseClock("22:45")
	require.NoError(t, err)
	assert.Equal(t, 22, hour)
	assert.Equal(t, 45, minute)

	for _, bad := range []string{"", "25:00", "22h45", "7"} {
		_, _, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestSpecRunsWeekdaysOnly(t *testing.T) {
	athens, err := time.LoadLocation("Europe/Athens")
	require.NoError(t, err)

	sched, err := cron.ParseStandard(Spec(22, 45))
	require.NoError(t, err)

	// Friday 2024-03-15 after the trigger: next run is Monday.
	from := time.Date(2024, 3, 15, 23, 0, 0, 0, athens)
	next := sched.Next(from)
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 22, next.Hour())
	assert.Equal(t, 45, next.Minute())

	// Wednesday before the trigger: same day.
	from = time.Date(2024, 3, 13, 9, 0, 0, 0, athens)
	assert.Equal(t, 13, sched.Next(from).Day())
}

func TestUTCRunTimeFollowsDaylightSaving(t *testing.T) {
	athens, err := time.LoadLocation("Europe/Athens")
	require.NoError(t, err)

	winter, err := UTCRunTime("22:45", athens, time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "20:45", winter)

	summer, err := UTCRunTime("22:45", athens, time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "19:45", summer)
}

func TestNewRejectsBadTime(t *testing.T) {
	_, err := New("noon", time.UTC, func(context.Context) {})
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := New("22:45", time.UTC, func(context.Context) {})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestDefaultTriggerIsAfterNewYorkClose(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	hour, minute, err := ParseClock(cfg.Schedule.At)
	require.NoError(t, err)
	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	loc := cfg.ScheduleLocation()

	days := []time.Time{
		time.Date(2024, 1, 17, 0, 0, 0, 0, loc),
		time.Date(2024, 7, 17, 0, 0, 0, 0, loc),
		// US on daylight time while Europe is not.
		time.Date(2024, 3, 13, 0, 0, 0, 0, loc),
		time.Date(2024, 10, 30, 0, 0, 0, 0, loc),
	}
	for _, day := range days {
		trigger := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc).In(newYork)
		assert.Equal(t, day.Day(), trigger.Day(), day.Format(time.DateOnly))
		assert.Greater(t, trigger.Hour()*60+trigger.Minute(), 16*60, "%s fires at %s New York", day.Format(time.DateOnly), trigger.Format("15:04"))
	}
}
