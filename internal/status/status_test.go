package status

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugrahalabib/moltbot/internal/active"
	"github.com/nugrahalabib/moltbot/internal/control"
	"github.com/nugrahalabib/moltbot/internal/lock"
	"github.com/nugrahalabib/moltbot/internal/model"
	"github.com/nugrahalabib/moltbot/internal/store"
)

var jakarta = time.FixedZone("WIB", 7*3600)

func TestCollect_OfflineReadsFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 14, 6, 0, 0, 0, jakarta)
	s := store.New(dir, store.WithClock(func() time.Time { return now }))
	_, err := s.AddAlarm(model.Alarm{Label: "subuh", Schedule: model.Schedule{Time: "07:00"}})
	require.NoError(t, err)
	_, err = s.AddReminder(model.Reminder{Message: "minum obat", Schedule: model.Schedule{Time: "12:00"}})
	require.NoError(t, err)

	rep, err := Collect(dir, now)
	require.NoError(t, err)
	assert.False(t, rep.Running)
	assert.Zero(t, rep.PID)
	assert.Equal(t, 1, rep.Alarms)
	assert.Equal(t, 1, rep.EnabledAlarms)
	assert.Equal(t, 1, rep.Reminders)
	require.NotNil(t, rep.NextAlarm)
	assert.Equal(t, time.Hour, rep.NextAlarm.In)
}

func TestCollect_ReportsStaleLockHolder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "locks"), 0755))
	l := lock.NewPIDLock(LockPath(dir))
	require.NoError(t, l.TryLock())
	defer l.Unlock()

	rep, err := Collect(dir, time.Now())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), rep.PID)
	assert.Nil(t, rep.NextAlarm)
}

func TestPrint(t *testing.T) {
	at := time.Date(2026, 10, 15, 7, 0, 0, 0, jakarta)
	resume := at.Add(10 * time.Minute)

	tests := []struct {
		name string
		rep  control.Report
		want []string
	}{
		{
			name: "stopped",
			rep:  control.Report{},
			want: []string{"Daemon: stopped", "Next alarm: none"},
		},
		{
			name: "ringing",
			rep: control.Report{
				Running: true, PID: 42, Uptime: "1h0m0s",
				NextAlarm: &store.NextAlarm{Alarm: model.Alarm{Label: "kerja"}, At: at, In: 90 * time.Minute},
				Active:    active.Status{Active: true, State: active.StateRinging, Label: "subuh", Question: "3 + 4 = ?"},
			},
			want: []string{"running (pid 42", "kerja at Thu 2026-10-15 07:00 (in 1h30m0s)", "RINGING: subuh", "3 + 4 = ?"},
		},
		{
			name: "snoozed",
			rep: control.Report{
				Running: true,
				Active:  active.Status{State: active.StateSnoozed, Label: "subuh", ResumeAt: &resume},
			},
			want: []string{"Snoozed: subuh, rings again at 07:10"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			Print(&buf, tt.rep)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}
