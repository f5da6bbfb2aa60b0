// Package schedule decides when alarm and reminder records are due and where
// their next occurrence falls.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/nugrahalabib/moltbot/internal/model"
)

// DefaultDueWindow is how long after its target a record still counts as due.
// It absorbs tick jitter and must be at least the tick period.
const DefaultDueWindow = 60 * time.Second

// DefaultSuppressWindow is how long after a fire the same record is ignored.
const DefaultSuppressWindow = 120 * time.Second

var (
	// ErrUnevaluable marks a record with neither a target nor a usable time.
	ErrUnevaluable = errors.New("record is unevaluable")
	// ErrNoOccurrence marks a one-shot record whose only occurrence has passed.
	ErrNoOccurrence = errors.New("no future occurrence")
)

type Windows struct {
	Due      time.Duration
	Suppress time.Duration
}

func DefaultWindows() Windows {
	return Windows{Due: DefaultDueWindow, Suppress: DefaultSuppressWindow}
}

func (w Windows) normalized() Windows {
	if w.Due <= 0 {
		w.Due = DefaultDueWindow
	}
	if w.Suppress <= 0 {
		w.Suppress = DefaultSuppressWindow
	}
	return w
}

// at returns day+offset days at hh:mm:ss in day's location.
func at(day time.Time, hour, minute, sec, offset int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+offset, hour, minute, sec, 0, day.Location())
}

// scan returns the first day from `from` on, restricted to set (any day when
// set is empty), whose hour:minute instant satisfies ok.
func scan(from time.Time, hour, minute int, set model.WeekdaySet, ok func(time.Time) bool) time.Time {
	for i := 0; i < 8; i++ {
		c := at(from, hour, minute, 0, i)
		if (set.Empty() || set.Has(c.Weekday())) && ok(c) {
			return c
		}
	}
	return at(from, hour, minute, 0, 7)
}

type parsed struct {
	hour, minute int
	date         *time.Time
	set          model.WeekdaySet
}

func parse(s *model.Schedule, loc *time.Location) (parsed, error) {
	var p parsed
	switch {
	case s.Time != "":
		h, m, err := model.ParseClock(s.Time)
		if err != nil {
			return p, fmt.Errorf("%w: %v", ErrUnevaluable, err)
		}
		p.hour, p.minute = h, m
	case s.Target != nil:
		t := s.Target.In(loc)
		p.hour, p.minute = t.Hour(), t.Minute()
	default:
		return p, fmt.Errorf("%w: no target and no time", ErrUnevaluable)
	}

	if s.Date != "" {
		d, err := time.ParseInLocation(model.DateLayout, s.Date, loc)
		if err != nil {
			return p, fmt.Errorf("%w: invalid date %q", ErrUnevaluable, s.Date)
		}
		p.date = &d
	}

	set, err := s.Repeat.Weekdays()
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrUnevaluable, err)
	}
	p.set = set
	return p, nil
}

// ResolveTarget returns the occurrence the record is currently heading for.
// An explicit target wins. Without one, an explicit date is used as is;
// otherwise the first matching day whose due window has not yet closed.
func ResolveTarget(s *model.Schedule, now time.Time, w Windows) (time.Time, error) {
	if s.Target != nil {
		return *s.Target, nil
	}
	w = w.normalized()
	p, err := parse(s, now.Location())
	if err != nil {
		return time.Time{}, err
	}
	if p.date != nil {
		return at(*p.date, p.hour, p.minute, 0, 0), nil
	}
	from := now.Add(-w.Due)
	return scan(from, p.hour, p.minute, p.set, func(c time.Time) bool { return !c.Before(from) }), nil
}

// IsDue reports whether now falls within the record's due window and the
// record has not fired within the suppression window.
func IsDue(s *model.Schedule, now time.Time, w Windows) (bool, error) {
	w = w.normalized()
	target, err := ResolveTarget(s, now, w)
	if err != nil {
		return false, err
	}
	lag := now.Sub(target)
	if lag < 0 || lag > w.Due {
		return false, nil
	}
	if s.LastTriggeredAt != nil && now.Sub(*s.LastTriggeredAt) < w.Suppress {
		return false, nil
	}
	return true, nil
}

// NextOccurrence returns the earliest occurrence strictly after now.
func NextOccurrence(s *model.Schedule, now time.Time) (time.Time, error) {
	if s.Target != nil && s.Target.After(now) {
		return *s.Target, nil
	}
	p, err := parse(s, now.Location())
	if err != nil {
		return time.Time{}, err
	}
	after := func(c time.Time) bool { return c.After(now) }

	if p.date != nil && s.Target == nil {
		first := at(*p.date, p.hour, p.minute, 0, 0)
		if first.After(now) {
			if s.Repeat.IsOnce() || p.set.Has(first.Weekday()) {
				return first, nil
			}
			return scan(first, p.hour, p.minute, p.set, after), nil
		}
		if s.Repeat.IsOnce() {
			return time.Time{}, ErrNoOccurrence
		}
	}
	if s.Repeat.IsOnce() && s.Target != nil {
		return time.Time{}, ErrNoOccurrence
	}
	return scan(now, p.hour, p.minute, p.set, after), nil
}

// Missed reports whether a record's target lies behind the due window, so it
// can no longer fire for that occurrence.
func Missed(s *model.Schedule, now time.Time, w Windows) bool {
	w = w.normalized()
	return s.Target != nil && now.Sub(*s.Target) > w.Due
}

// Rollover applies the repeat policy after the occurrence at fired has been
// triggered: one-shot records are disabled, daily records move one calendar
// day ahead, weekday records move to the next day in their set. Calendar
// arithmetic is done in loc.
func Rollover(s *model.Schedule, fired time.Time, loc *time.Location) error {
	if s.Repeat.IsOnce() {
		s.Enabled = false
		return nil
	}
	set, err := s.Repeat.Weekdays()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnevaluable, err)
	}
	t := fired.In(loc)
	for i := 1; i <= 7; i++ {
		c := at(t, t.Hour(), t.Minute(), t.Second(), i)
		if set.Has(c.Weekday()) {
			s.Target = &c
			return nil
		}
	}
	return fmt.Errorf("%w: empty weekday set", ErrUnevaluable)
}
