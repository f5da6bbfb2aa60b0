// Package store persists alarm and reminder records as whole-file YAML
// documents with atomic replacement and corruption recovery.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nugrahalabib/moltbot/internal/events"
	"github.com/nugrahalabib/moltbot/internal/lock"
	"github.com/nugrahalabib/moltbot/internal/logging"
	"github.com/nugrahalabib/moltbot/internal/model"
	yamlutil "github.com/nugrahalabib/moltbot/internal/yaml"
	yamlv3 "gopkg.in/yaml.v3"
)

const (
	AlarmsFile    = "alarms.yaml"
	RemindersFile = "reminders.yaml"
	locksDir      = "locks"
)

// ErrNotFound is returned when no record carries the requested id.
var ErrNotFound = errors.New("record not found")

type Store struct {
	dir         string
	mu          *lock.MutexMap
	log         *logging.Logger
	events      events.Publisher
	now         func() time.Time
	defaultMode model.Mode
}

type Option func(*Store)

func WithLogger(l *logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Store) { s.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithDefaultMode sets the mode given to alarms created without one.
func WithDefaultMode(m model.Mode) Option {
	return func(s *Store) { s.defaultMode = m }
}

func New(dir string, opts ...Option) *Store {
	s := &Store{
		dir:         dir,
		mu:          lock.NewMutexMap(),
		log:         logging.Discard(),
		now:         time.Now,
		defaultMode: model.ModeNormal,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Dir() string           { return s.dir }
func (s *Store) AlarmsPath() string    { return filepath.Join(s.dir, AlarmsFile) }
func (s *Store) RemindersPath() string { return filepath.Join(s.dir, RemindersFile) }

// withFile serializes access to one data file, in-process through the mutex
// map and across processes through an flock beside the data dir.
func (s *Store) withFile(name string, fn func() error) error {
	s.mu.Lock(name)
	defer s.mu.Unlock(name)

	if err := os.MkdirAll(filepath.Join(s.dir, locksDir), 0755); err != nil {
		return fmt.Errorf("create locks dir: %w", err)
	}
	fl := lock.NewFileLock(filepath.Join(s.dir, locksDir, name+".lock"))
	if err := fl.Lock(); err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()
	return fn()
}

// readFile hands the content of path to decodeFn. A missing file is not
// decoded at all. Content that fails to decode is quarantined and recovered
// before one more attempt; if that also fails the file counts as empty.
func (s *Store) readFile(path, fileType string, decodeFn func([]byte) error) error {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	derr := decodeFn(data)
	if derr == nil {
		return nil
	}
	s.log.Warnf("corrupt file=%s error=%v", name, derr)

	rec, err := yamlutil.RecoverCorruptedFile(s.dir, path, fileType, s.now())
	if err != nil {
		return fmt.Errorf("recover %s: %w", name, err)
	}
	s.log.Warnf("recovered file=%s quarantined_to=%s restored=%t skeleton=%t",
		name, rec.QuarantinedTo, rec.Restored, rec.Skeleton)
	if s.events != nil {
		s.events.Publish(events.EventStoreRecovered, map[string]any{
			"file":           name,
			"quarantined_to": rec.QuarantinedTo,
			"restored":       rec.Restored,
		})
	}
	if !rec.Restored {
		return nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read restored %s: %w", name, err)
	}
	if err := decodeFn(data); err != nil {
		s.log.Errorf("restored backup unreadable file=%s error=%v", name, err)
	}
	return nil
}

func decode(data []byte, fileType string, out any) error {
	if err := yamlutil.ValidateSchemaHeaderFromBytes(data, fileType); err != nil {
		return err
	}
	if err := yamlv3.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	return nil
}

func (s *Store) loadAlarms() ([]model.Alarm, error) {
	var alarms []model.Alarm
	err := s.readFile(s.AlarmsPath(), yamlutil.FileTypeAlarms, func(data []byte) error {
		var f model.AlarmFile
		if err := decode(data, yamlutil.FileTypeAlarms, &f); err != nil {
			return err
		}
		alarms = f.Alarms
		return nil
	})
	return alarms, err
}

func (s *Store) saveAlarms(alarms []model.Alarm) error {
	if alarms == nil {
		alarms = []model.Alarm{}
	}
	return yamlutil.AtomicWrite(s.AlarmsPath(), model.AlarmFile{
		SchemaVersion: yamlutil.CurrentSchemaVersion,
		FileType:      yamlutil.FileTypeAlarms,
		Alarms:        alarms,
	})
}

func (s *Store) loadReminders() ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := s.readFile(s.RemindersPath(), yamlutil.FileTypeReminders, func(data []byte) error {
		var f model.ReminderFile
		if err := decode(data, yamlutil.FileTypeReminders, &f); err != nil {
			return err
		}
		reminders = f.Reminders
		return nil
	})
	return reminders, err
}

func (s *Store) saveReminders(reminders []model.Reminder) error {
	if reminders == nil {
		reminders = []model.Reminder{}
	}
	return yamlutil.AtomicWrite(s.RemindersPath(), model.ReminderFile{
		SchemaVersion: yamlutil.CurrentSchemaVersion,
		FileType:      yamlutil.FileTypeReminders,
		Reminders:     reminders,
	})
}

func (s *Store) LoadAlarms() ([]model.Alarm, error) {
	var out []model.Alarm
	err := s.withFile(AlarmsFile, func() error {
		var err error
		out, err = s.loadAlarms()
		return err
	})
	return out, err
}

func (s *Store) SaveAlarms(alarms []model.Alarm) error {
	return s.withFile(AlarmsFile, func() error { return s.saveAlarms(alarms) })
}

func (s *Store) LoadReminders() ([]model.Reminder, error) {
	var out []model.Reminder
	err := s.withFile(RemindersFile, func() error {
		var err error
		out, err = s.loadReminders()
		return err
	})
	return out, err
}

func (s *Store) SaveReminders(reminders []model.Reminder) error {
	return s.withFile(RemindersFile, func() error { return s.saveReminders(reminders) })
}

// UpdateAlarms runs fn over the current alarms under the file lock and saves
// the result when fn reports a change.
func (s *Store) UpdateAlarms(fn func(alarms *[]model.Alarm) (bool, error)) error {
	return s.withFile(AlarmsFile, func() error {
		alarms, err := s.loadAlarms()
		if err != nil {
			return err
		}
		changed, err := fn(&alarms)
		if err != nil || !changed {
			return err
		}
		if err := s.saveAlarms(alarms); err != nil {
			return fmt.Errorf("save alarms: %w", err)
		}
		return nil
	})
}

// UpdateReminders is UpdateAlarms for reminders.yaml.
func (s *Store) UpdateReminders(fn func(reminders *[]model.Reminder) (bool, error)) error {
	return s.withFile(RemindersFile, func() error {
		reminders, err := s.loadReminders()
		if err != nil {
			return err
		}
		changed, err := fn(&reminders)
		if err != nil || !changed {
			return err
		}
		if err := s.saveReminders(reminders); err != nil {
			return fmt.Errorf("save reminders: %w", err)
		}
		return nil
	})
}
