package store

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nugrahalabib/moltbot/internal/model"
	"github.com/nugrahalabib/moltbot/internal/schedule"
)

// prepare fills creation defaults and computes the first target of a schedule.
func (s *Store) prepare(sc *model.Schedule, now time.Time) error {
	var ve model.ValidationErrors
	repeat, err := sc.Repeat.Normalize()
	if err != nil {
		ve.Add("repeat", err.Error())
		return ve.Err()
	}
	sc.Repeat = repeat
	if sc.Time != "" {
		if sc.Time, err = model.NormalizeClock(sc.Time); err != nil {
			ve.Add("time", err.Error())
			return ve.Err()
		}
	}
	sc.Enabled = true
	sc.LastTriggeredAt = nil

	sc.Target = nil
	target, err := schedule.NextOccurrence(sc, now)
	switch {
	case errors.Is(err, schedule.ErrNoOccurrence):
		ve.Add("date", fmt.Sprintf("%s %s is in the past", sc.Date, sc.Time))
		return ve.Err()
	case err != nil:
		ve.Add("time", err.Error())
		return ve.Err()
	}
	sc.Target = &target
	return nil
}

// AddAlarm validates a, assigns its id and first target, and appends it.
func (s *Store) AddAlarm(a model.Alarm) (model.Alarm, error) {
	now := s.now()
	if a.Mode == "" {
		a.Mode = s.defaultMode
	}
	if err := a.Validate(); err != nil {
		return model.Alarm{}, err
	}
	if err := s.prepare(&a.Schedule, now); err != nil {
		return model.Alarm{}, err
	}
	id, err := model.GenerateIDAt(model.IDTypeAlarm, now)
	if err != nil {
		return model.Alarm{}, fmt.Errorf("generate id: %w", err)
	}
	a.ID = id
	a.CreatedAt = now

	err = s.UpdateAlarms(func(alarms *[]model.Alarm) (bool, error) {
		*alarms = append(*alarms, a)
		return true, nil
	})
	if err != nil {
		return model.Alarm{}, err
	}
	s.log.Infof("added alarm_id=%s time=%s repeat=%s target=%s", a.ID, a.Time, a.Repeat, a.Target.Format(time.RFC3339))
	return a, nil
}

func (s *Store) AddReminder(r model.Reminder) (model.Reminder, error) {
	now := s.now()
	if r.Priority == "" {
		r.Priority = model.PriorityNormal
	}
	if err := r.Validate(); err != nil {
		return model.Reminder{}, err
	}
	if err := s.prepare(&r.Schedule, now); err != nil {
		return model.Reminder{}, err
	}
	id, err := model.GenerateIDAt(model.IDTypeReminder, now)
	if err != nil {
		return model.Reminder{}, fmt.Errorf("generate id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now

	err = s.UpdateReminders(func(reminders *[]model.Reminder) (bool, error) {
		*reminders = append(*reminders, r)
		return true, nil
	})
	if err != nil {
		return model.Reminder{}, err
	}
	s.log.Infof("added reminder_id=%s time=%s priority=%s", r.ID, r.Time, r.Priority)
	return r, nil
}

// compareTargets orders schedules by target, untargeted ones last.
func compareTargets(a, b *model.Schedule) int {
	switch {
	case a.Target == nil && b.Target == nil:
		return 0
	case a.Target == nil:
		return 1
	case b.Target == nil:
		return -1
	}
	return a.Target.Compare(*b.Target)
}

// ListAlarms returns every alarm ordered by target.
func (s *Store) ListAlarms() ([]model.Alarm, error) {
	alarms, err := s.LoadAlarms()
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(alarms, func(a, b model.Alarm) int {
		return compareTargets(&a.Schedule, &b.Schedule)
	})
	return alarms, nil
}

func (s *Store) ListReminders() ([]model.Reminder, error) {
	reminders, err := s.LoadReminders()
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(reminders, func(a, b model.Reminder) int {
		return compareTargets(&a.Schedule, &b.Schedule)
	})
	return reminders, nil
}

func (s *Store) GetAlarm(id string) (model.Alarm, error) {
	alarms, err := s.LoadAlarms()
	if err != nil {
		return model.Alarm{}, err
	}
	for _, a := range alarms {
		if a.ID == id {
			return a, nil
		}
	}
	return model.Alarm{}, fmt.Errorf("alarm %s: %w", id, ErrNotFound)
}

func (s *Store) DeleteAlarm(id string) error {
	return s.UpdateAlarms(func(alarms *[]model.Alarm) (bool, error) {
		i := slices.IndexFunc(*alarms, func(a model.Alarm) bool { return a.ID == id })
		if i < 0 {
			return false, fmt.Errorf("alarm %s: %w", id, ErrNotFound)
		}
		*alarms = slices.Delete(*alarms, i, i+1)
		return true, nil
	})
}

func (s *Store) DeleteReminder(id string) error {
	return s.UpdateReminders(func(reminders *[]model.Reminder) (bool, error) {
		i := slices.IndexFunc(*reminders, func(r model.Reminder) bool { return r.ID == id })
		if i < 0 {
			return false, fmt.Errorf("reminder %s: %w", id, ErrNotFound)
		}
		*reminders = slices.Delete(*reminders, i, i+1)
		return true, nil
	})
}

// DeleteAllAlarms removes every alarm and returns how many there were.
func (s *Store) DeleteAllAlarms() (int, error) {
	var n int
	err := s.UpdateAlarms(func(alarms *[]model.Alarm) (bool, error) {
		n = len(*alarms)
		*alarms = nil
		return n > 0, nil
	})
	return n, err
}

func (s *Store) DeleteAllReminders() (int, error) {
	var n int
	err := s.UpdateReminders(func(reminders *[]model.Reminder) (bool, error) {
		n = len(*reminders)
		*reminders = nil
		return n > 0, nil
	})
	return n, err
}

// ToggleAlarm flips an alarm's enabled flag, or sets it when enabled is
// non-nil. An alarm re-enabled after its target has passed is moved to its
// next occurrence.
func (s *Store) ToggleAlarm(id string, enabled *bool) (model.Alarm, error) {
	now := s.now()
	var out model.Alarm
	err := s.UpdateAlarms(func(alarms *[]model.Alarm) (bool, error) {
		i := slices.IndexFunc(*alarms, func(a model.Alarm) bool { return a.ID == id })
		if i < 0 {
			return false, fmt.Errorf("alarm %s: %w", id, ErrNotFound)
		}
		a := &(*alarms)[i]
		want := !a.Enabled
		if enabled != nil {
			want = *enabled
		}
		if want && (a.Target == nil || !a.Target.After(now)) {
			if err := reresolve(&a.Schedule, now); err != nil {
				return false, err
			}
		}
		a.Enabled = want
		out = *a
		return true, nil
	})
	return out, err
}

func reresolve(sc *model.Schedule, now time.Time) error {
	probe := *sc
	if probe.Repeat.IsOnce() {
		probe.Target = nil
		probe.Date = ""
	}
	next, err := schedule.NextOccurrence(&probe, now)
	if err != nil {
		return fmt.Errorf("re-resolve target: %w", err)
	}
	sc.Target = &next
	if sc.Repeat.IsOnce() {
		sc.Date = ""
	}
	return nil
}

// NextAlarm describes the enabled alarm that fires soonest.
type NextAlarm struct {
	Alarm model.Alarm   `json:"alarm"`
	At    time.Time     `json:"at"`
	In    time.Duration `json:"in"`
}

// NextAlarm returns the enabled alarm with the earliest upcoming occurrence,
// or ErrNotFound when nothing is scheduled.
func (s *Store) NextAlarm(now time.Time) (NextAlarm, error) {
	alarms, err := s.LoadAlarms()
	if err != nil {
		return NextAlarm{}, err
	}
	var best NextAlarm
	found := false
	for _, a := range alarms {
		if !a.Enabled {
			continue
		}
		at, err := schedule.NextOccurrence(&a.Schedule, now)
		if err != nil {
			continue
		}
		if !found || at.Before(best.At) {
			best = NextAlarm{Alarm: a, At: at}
			found = true
		}
	}
	if !found {
		return NextAlarm{}, fmt.Errorf("next alarm: %w", ErrNotFound)
	}
	best.In = best.At.Sub(now)
	return best, nil
}
