package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugrahalabib/moltbot/internal/model"
)

// 2026-10-14 is a Wednesday.
func day(d, h, m, s int) time.Time {
	return time.Date(2026, 10, d, h, m, s, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestIsDue_WindowBoundaries(t *testing.T) {
	now := day(14, 7, 0, 0)
	tests := []struct {
		name   string
		target time.Time
		want   bool
	}{
		{"exactly now", now, true},
		{"60s ago", now.Add(-60 * time.Second), true},
		{"61s ago", now.Add(-61 * time.Second), false},
		{"1s ahead", now.Add(time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &model.Schedule{Time: "07:00", Target: ptr(tt.target), Repeat: model.RepeatOnce, Enabled: true}
			got, err := IsDue(s, now, DefaultWindows())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsDue_Suppression(t *testing.T) {
	now := day(14, 7, 0, 30)
	s := &model.Schedule{Time: "07:00", Target: ptr(day(14, 7, 0, 0)), Repeat: model.RepeatDaily, Enabled: true}

	s.LastTriggeredAt = ptr(now.Add(-119 * time.Second))
	due, err := IsDue(s, now, DefaultWindows())
	require.NoError(t, err)
	assert.False(t, due, "fired 119s ago must be suppressed")

	s.LastTriggeredAt = ptr(now.Add(-121 * time.Second))
	due, err = IsDue(s, now, DefaultWindows())
	require.NoError(t, err)
	assert.True(t, due, "fired 121s ago must not be suppressed")
}

func TestIsDue_CustomWindows(t *testing.T) {
	now := day(14, 7, 1, 30)
	s := &model.Schedule{Target: ptr(day(14, 7, 0, 0)), Repeat: model.RepeatOnce}

	due, err := IsDue(s, now, Windows{Due: 2 * time.Minute})
	require.NoError(t, err)
	assert.True(t, due)

	due, err = IsDue(s, now, Windows{})
	require.NoError(t, err)
	assert.False(t, due, "zero windows fall back to defaults")
}

func TestIsDue_Unevaluable(t *testing.T) {
	_, err := IsDue(&model.Schedule{Enabled: true}, day(14, 7, 0, 0), DefaultWindows())
	assert.True(t, errors.Is(err, ErrUnevaluable))

	_, err = IsDue(&model.Schedule{Time: "25:99"}, day(14, 7, 0, 0), DefaultWindows())
	assert.True(t, errors.Is(err, ErrUnevaluable))

	_, err = IsDue(&model.Schedule{Time: "07:00", Date: "14-10-2026"}, day(14, 7, 0, 0), DefaultWindows())
	assert.True(t, errors.Is(err, ErrUnevaluable))
}

func TestResolveTarget_DerivedFromTime(t *testing.T) {
	s := &model.Schedule{Time: "07:00", Repeat: model.RepeatDaily}

	got, err := ResolveTarget(s, day(14, 6, 0, 0), DefaultWindows())
	require.NoError(t, err)
	assert.Equal(t, day(14, 7, 0, 0), got, "not yet passed: today")

	got, err = ResolveTarget(s, day(14, 7, 0, 30), DefaultWindows())
	require.NoError(t, err)
	assert.Equal(t, day(14, 7, 0, 0), got, "inside the due window: still today")

	got, err = ResolveTarget(s, day(14, 7, 2, 0), DefaultWindows())
	require.NoError(t, err)
	assert.Equal(t, day(15, 7, 0, 0), got, "passed: tomorrow")
}

func TestResolveTarget_AcrossMidnight(t *testing.T) {
	s := &model.Schedule{Time: "00:00", Repeat: model.RepeatDaily}
	got, err := ResolveTarget(s, day(15, 0, 0, 30), DefaultWindows())
	require.NoError(t, err)
	assert.Equal(t, day(15, 0, 0, 0), got)
}

func TestResolveTarget_ExplicitDateAndTarget(t *testing.T) {
	s := &model.Schedule{Time: "07:00", Date: "2026-10-20"}
	got, err := ResolveTarget(s, day(14, 8, 0, 0), DefaultWindows())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 20, 7, 0, 0, 0, time.UTC), got)

	target := day(16, 9, 30, 0)
	s.Target = &target
	got, err = ResolveTarget(s, day(14, 8, 0, 0), DefaultWindows())
	require.NoError(t, err)
	assert.Equal(t, target, got, "target is authoritative over time and date")
}

func TestResolveTarget_WeekdaySet(t *testing.T) {
	s := &model.Schedule{Time: "07:00", Repeat: "mon,fri"}
	got, err := ResolveTarget(s, day(14, 8, 0, 0), DefaultWindows())
	require.NoError(t, err)
	assert.Equal(t, day(16, 7, 0, 0), got, "wednesday resolves to friday")
}

func TestNextOccurrence_CreatedAfterTimePassed(t *testing.T) {
	s := &model.Schedule{Time: "07:00", Repeat: model.RepeatOnce, Enabled: true}
	created := day(14, 7, 5, 0)

	next, err := NextOccurrence(s, created)
	require.NoError(t, err)
	assert.Equal(t, day(15, 7, 0, 0), next)

	s.Target = &next
	tick := day(15, 7, 0, 30)
	due, err := IsDue(s, tick, DefaultWindows())
	require.NoError(t, err)
	require.True(t, due)

	s.LastTriggeredAt = &tick
	require.NoError(t, Rollover(s, next, time.UTC))
	assert.False(t, s.Enabled)

	due, err = IsDue(s, tick.Add(30*time.Second), DefaultWindows())
	require.NoError(t, err)
	assert.False(t, due, "second tick must not re-fire")
}

func TestNextOccurrence(t *testing.T) {
	now := day(14, 8, 0, 0)
	tests := []struct {
		name  string
		sched model.Schedule
		want  time.Time
		err   error
	}{
		{"later today", model.Schedule{Time: "21:00"}, day(14, 21, 0, 0), nil},
		{"exactly now rolls to tomorrow", model.Schedule{Time: "08:00"}, day(15, 8, 0, 0), nil},
		{"future target", model.Schedule{Time: "07:00", Target: ptr(day(20, 7, 0, 0))}, day(20, 7, 0, 0), nil},
		{"future date", model.Schedule{Time: "06:00", Date: "2026-10-18"}, day(18, 6, 0, 0), nil},
		{"past date once", model.Schedule{Time: "06:00", Date: "2026-10-01"}, time.Time{}, ErrNoOccurrence},
		{"past target once", model.Schedule{Time: "06:00", Target: ptr(day(13, 6, 0, 0))}, time.Time{}, ErrNoOccurrence},
		{"past target daily", model.Schedule{Time: "06:00", Target: ptr(day(10, 6, 0, 0)), Repeat: model.RepeatDaily}, day(15, 6, 0, 0), nil},
		{"weekday set", model.Schedule{Time: "07:00", Repeat: "mon"}, day(19, 7, 0, 0), nil},
		{"future date not in set", model.Schedule{Time: "07:00", Date: "2026-10-17", Repeat: "mon,fri"}, day(19, 7, 0, 0), nil},
		{"no time", model.Schedule{}, time.Time{}, ErrUnevaluable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.sched
			got, err := NextOccurrence(&s, now)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRollover_Daily(t *testing.T) {
	fired := day(14, 7, 0, 0)
	s := &model.Schedule{Time: "07:00", Target: ptr(fired), Repeat: model.RepeatDaily, Enabled: true}

	require.NoError(t, Rollover(s, fired, time.UTC))
	require.NotNil(t, s.Target)
	assert.Equal(t, fired.Add(24*time.Hour), *s.Target)
	assert.True(t, s.Enabled)
}

func TestRollover_DailyKeepsWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	fired := time.Date(2026, 10, 31, 7, 0, 0, 0, loc)
	s := &model.Schedule{Time: "07:00", Target: &fired, Repeat: model.RepeatDaily, Enabled: true}

	require.NoError(t, Rollover(s, fired, loc))
	next := s.Target.In(loc)
	assert.Equal(t, 7, next.Hour())
	assert.Equal(t, 1, next.Day())
	assert.Equal(t, 25*time.Hour, next.Sub(fired))
}

func TestRollover_WeekdaySet(t *testing.T) {
	fired := day(16, 7, 0, 0) // friday
	s := &model.Schedule{Time: "07:00", Target: ptr(fired), Repeat: "mon,fri", Enabled: true}

	require.NoError(t, Rollover(s, fired, time.UTC))
	assert.Equal(t, day(19, 7, 0, 0), *s.Target)
	assert.Equal(t, time.Monday, s.Target.Weekday())
}

func TestRollover_Once(t *testing.T) {
	fired := day(14, 7, 0, 0)
	s := &model.Schedule{Time: "07:00", Target: ptr(fired), Repeat: model.RepeatOnce, Enabled: true}
	require.NoError(t, Rollover(s, fired, time.UTC))
	assert.False(t, s.Enabled)
	assert.Equal(t, fired, *s.Target)
}

func TestMissed(t *testing.T) {
	now := day(14, 7, 5, 0)
	assert.True(t, Missed(&model.Schedule{Target: ptr(day(14, 7, 0, 0))}, now, DefaultWindows()))
	assert.False(t, Missed(&model.Schedule{Target: ptr(day(14, 7, 4, 30))}, now, DefaultWindows()))
	assert.False(t, Missed(&model.Schedule{Time: "07:00"}, now, DefaultWindows()))
}
