package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepeatWeekdays(t *testing.T) {
	set, err := Repeat("mon, Wed,friday").Weekdays()
	require.NoError(t, err)
	assert.True(t, set.Has(time.Monday))
	assert.True(t, set.Has(time.Wednesday))
	assert.True(t, set.Has(time.Friday))
	assert.False(t, set.Has(time.Tuesday))
	assert.False(t, set.Has(time.Sunday))

	set, err = Repeat("weekends").Weekdays()
	require.NoError(t, err)
	assert.True(t, set.Has(time.Saturday))
	assert.True(t, set.Has(time.Sunday))
	assert.False(t, set.Has(time.Monday))

	_, err = Repeat("mon,funday").Weekdays()
	assert.Error(t, err)
}

func TestRepeatNormalize(t *testing.T) {
	tests := []struct {
		in   Repeat
		want Repeat
	}{
		{"", RepeatOnce},
		{"once", RepeatOnce},
		{"daily", RepeatDaily},
		{"fri,mon", "mon,fri"},
		{"weekdays", "mon,tue,wed,thu,fri"},
		{"weekdays,weekends", RepeatDaily},
	}
	for _, tt := range tests {
		got, err := tt.in.Normalize()
		require.NoError(t, err, "Normalize(%q)", tt.in)
		assert.Equal(t, tt.want, got, "Normalize(%q)", tt.in)
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("07:05")
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 5, m)

	h, m, err = ParseClock("7:05")
	require.NoError(t, err)
	assert.Equal(t, 7, h)
	assert.Equal(t, 5, m)

	for _, bad := range []string{"24:00", "07:60", "", "0705", "7:5", "007:05"} {
		_, _, err := ParseClock(bad)
		assert.Error(t, err, "ParseClock(%q)", bad)
	}

	norm, err := NormalizeClock("7:00")
	require.NoError(t, err)
	assert.Equal(t, "07:00", norm)
}

func TestAlarmValidate(t *testing.T) {
	a := Alarm{
		Schedule: Schedule{Time: "07:00", Repeat: RepeatDaily, Enabled: true},
		Mode:     ModeNormal,
		Actions:  []Action{{Kind: ActionVoice, Text: "bangun"}, {Kind: ActionEscalate, IntervalSec: 15}},
	}
	require.NoError(t, a.Validate())

	bad := Alarm{
		Schedule: Schedule{Time: "7am", Repeat: "someday"},
		Mode:     "loud",
		Devices:  []DeviceSetting{{Name: "", Brightness: 120}},
		Actions:  []Action{{Kind: ActionVoice}, {Kind: "dance"}},
	}
	err := bad.Validate()
	require.Error(t, err)
	var ve *ValidationErrors
	require.ErrorAs(t, err, &ve)

	fields := make(map[string]bool)
	for _, e := range ve.Errors {
		fields[e.FieldPath] = true
	}
	for _, f := range []string{"time", "repeat", "mode", "devices[0].name", "devices[0].brightness", "actions[0]", "actions[1]"} {
		assert.True(t, fields[f], "missing validation error for %s", f)
	}
}

func TestAlarmEscalation(t *testing.T) {
	a := Alarm{Actions: []Action{{Kind: ActionVoice, Text: "x"}, {Kind: ActionEscalate, Text: "bangun!", IntervalSec: 5}}}
	act, ok := a.Escalation()
	require.True(t, ok)
	assert.Equal(t, "bangun!", act.Text)

	_, ok = (&Alarm{}).Escalation()
	assert.False(t, ok)
}

func TestReminderValidate(t *testing.T) {
	r := Reminder{Message: "minum obat", Schedule: Schedule{Time: "21:00"}, Priority: PriorityHigh}
	require.NoError(t, r.Validate())

	r = Reminder{Schedule: Schedule{Time: "21:00", Date: "2026-13-01"}, Priority: "urgent"}
	assert.Error(t, r.Validate())
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60*time.Second, cfg.Scheduler.DueWindow())
	assert.Equal(t, 120*time.Second, cfg.Scheduler.SuppressWindow())
	assert.Equal(t, "alarm.wav", cfg.Wake.SoundFor(ModeNormal))
}

func TestConfigValidate_LoopPausesPositive(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*WakeConfig)
	}{
		{"wake.sound_pause_ms", func(w *WakeConfig) { w.SoundPauseMs = 0 }},
		{"wake.watchdog_grace_sec", func(w *WakeConfig) { w.WatchdogGraceSec = -1 }},
		{"wake.watchdog_interval_sec", func(w *WakeConfig) { w.WatchdogIntervalSec = 0 }},
		{"wake.escalation_interval_sec", func(w *WakeConfig) { w.EscalationIntervalSec = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg.Wake)
			err := cfg.Validate()
			require.Error(t, err)
			var ve *ValidationErrors
			require.ErrorAs(t, err, &ve)
			require.Len(t, ve.Errors, 1)
			assert.Equal(t, tt.field, ve.Errors[0].FieldPath)
		})
	}
}

func TestConfigValidate_IntervalExceedsWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scheduler.AlarmIntervalSec = 90
	cfg.Wake.SnoozeMinutes = 7
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheduler.alarm_interval_sec")
	assert.Contains(t, err.Error(), "wake.snooze_minutes")
}
