package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nugrahalabib/moltbot/internal/events"
	"github.com/nugrahalabib/moltbot/internal/model"
)

var jakarta = time.FixedZone("WIB", 7*3600)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.EventType
}

func (p *recordingPublisher) Publish(t events.EventType, _ map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, t)
}

func newTestStore(t *testing.T, now time.Time, opts ...Option) *Store {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return New(t.TempDir(), opts...)
}

func TestLoad_MissingFilesAreEmpty(t *testing.T) {
	s := newTestStore(t, time.Now())

	alarms, err := s.LoadAlarms()
	require.NoError(t, err)
	assert.Empty(t, alarms)

	reminders, err := s.LoadReminders()
	require.NoError(t, err)
	assert.Empty(t, reminders)
}

func TestSaveLoad_RoundTripsSchedule(t *testing.T) {
	now := time.Date(2026, 10, 14, 6, 0, 0, 0, jakarta)
	s := newTestStore(t, now)

	target := time.Date(2026, 10, 14, 7, 0, 0, 0, jakarta)
	in := []model.Alarm{{
		ID:       "alarm_1771722000_a3f2b7c1",
		Label:    "Kerja",
		Schedule: model.Schedule{Time: "07:00", Repeat: "mon,wed,fri", Enabled: true, Target: &target},
		Mode:     model.ModeGentle,
		Actions:  []model.Action{{Kind: model.ActionEscalate, Text: "Bangun!", IntervalSec: 20}},
	}}
	require.NoError(t, s.SaveAlarms(in))

	out, err := s.LoadAlarms()
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Kerja", out[0].Label)
	assert.Equal(t, model.Repeat("mon,wed,fri"), out[0].Repeat)
	require.NotNil(t, out[0].Target)
	assert.True(t, out[0].Target.Equal(target))
	assert.Equal(t, 20, out[0].Actions[0].IntervalSec)

	raw, err := os.ReadFile(s.AlarmsPath())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "file_type: shila_alarms")
}

func TestLoad_CorruptWithoutBackupIsEmpty(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestStore(t, time.Now(), WithPublisher(pub))
	require.NoError(t, os.WriteFile(s.AlarmsPath(), []byte("{{{ not yaml"), 0644))

	alarms, err := s.LoadAlarms()
	require.NoError(t, err)
	assert.Empty(t, alarms)

	entries, err := os.ReadDir(filepath.Join(s.Dir(), "quarantine"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, []events.EventType{events.EventStoreRecovered}, pub.events)
}

func TestLoad_CorruptRestoresBackup(t *testing.T) {
	s := newTestStore(t, time.Now())
	first := []model.Reminder{{ID: "remind_1771722000_a3f2b7c1", Message: "minum obat",
		Schedule: model.Schedule{Time: "08:00", Repeat: model.RepeatDaily, Enabled: true}, Priority: model.PriorityHigh}}
	require.NoError(t, s.SaveReminders(first))
	require.NoError(t, s.SaveReminders(first))
	require.FileExists(t, s.RemindersPath()+".bak")

	require.NoError(t, os.WriteFile(s.RemindersPath(), []byte("schema_version: 1\nfile_type: shila_reminders\nreminders: [oops"), 0644))

	reminders, err := s.LoadReminders()
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	assert.Equal(t, "minum obat", reminders[0].Message)
}

func TestLoad_WrongFileTypeIsRecovered(t *testing.T) {
	s := newTestStore(t, time.Now())
	require.NoError(t, os.WriteFile(s.AlarmsPath(), []byte("schema_version: 1\nfile_type: shila_reminders\nreminders: []\n"), 0644))

	alarms, err := s.LoadAlarms()
	require.NoError(t, err)
	assert.Empty(t, alarms)

	out, err := s.LoadAlarms()
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestUpdateAlarms_NoChangeSkipsWrite(t *testing.T) {
	s := newTestStore(t, time.Now())
	err := s.UpdateAlarms(func(*[]model.Alarm) (bool, error) { return false, nil })
	require.NoError(t, err)
	assert.NoFileExists(t, s.AlarmsPath())
}

func TestUpdateAlarms_ErrorSkipsWrite(t *testing.T) {
	s := newTestStore(t, time.Now())
	boom := errors.New("boom")
	err := s.UpdateAlarms(func(a *[]model.Alarm) (bool, error) {
		*a = append(*a, model.Alarm{ID: "x"})
		return true, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoFileExists(t, s.AlarmsPath())
}

func TestUpdateAlarms_ConcurrentWritersDoNotLoseUpdates(t *testing.T) {
	now := time.Date(2026, 10, 14, 6, 0, 0, 0, jakarta)
	s := newTestStore(t, now)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AddAlarm(model.Alarm{Schedule: model.Schedule{Time: "07:00"}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	alarms, err := s.LoadAlarms()
	require.NoError(t, err)
	assert.Len(t, alarms, 10)
}
