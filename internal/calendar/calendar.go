// Package calendar exports enabled alarms as an iCalendar feed so they can be
// shown next to the rest of the user's schedule.
package calendar

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/nugrahalabib/moltbot/internal/model"
	"github.com/nugrahalabib/moltbot/internal/schedule"
)

const ProductID = "-//shila-wake//alarms//EN"

// EventDuration is the length given to each exported alarm event.
const EventDuration = 5 * time.Minute

var rruleDays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// Rule returns the recurrence of a repeating schedule. Once-schedules have no
// rule and return nil.
func Rule(s *model.Schedule, start time.Time) (*rrule.ROption, error) {
	if s.Repeat.IsOnce() {
		return nil, nil
	}
	if s.Repeat.IsDaily() {
		return &rrule.ROption{Freq: rrule.DAILY, Dtstart: start}, nil
	}
	set, err := s.Repeat.Weekdays()
	if err != nil {
		return nil, err
	}
	opt := &rrule.ROption{Freq: rrule.WEEKLY, Dtstart: start}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if set.Has(d) {
			opt.Byweekday = append(opt.Byweekday, rruleDays[d])
		}
	}
	return opt, nil
}

// utcRule is Rule anchored at start in UTC. Weekly days move with the date
// when the UTC conversion crosses midnight.
func utcRule(s *model.Schedule, start time.Time) (*rrule.ROption, error) {
	utc := start.UTC()
	opt, err := Rule(s, utc)
	if err != nil || opt == nil || opt.Freq != rrule.WEEKLY {
		return opt, err
	}
	shift := int(utc.Weekday() - start.Weekday())
	set, _ := s.Repeat.Weekdays()
	opt.Byweekday = opt.Byweekday[:0]
	for d := time.Sunday; d <= time.Saturday; d++ {
		if set.Has(d) {
			opt.Byweekday = append(opt.Byweekday, rruleDays[(int(d)+shift+7)%7])
		}
	}
	return opt, nil
}

// Upcoming lists up to n occurrences of an alarm strictly after now.
func Upcoming(a *model.Alarm, now time.Time, n int) ([]time.Time, error) {
	start, err := schedule.NextOccurrence(&a.Schedule, now)
	if err != nil {
		return nil, err
	}
	opt, err := Rule(&a.Schedule, start)
	if err != nil {
		return nil, err
	}
	if opt == nil || n <= 1 {
		return []time.Time{start}, nil
	}
	opt.Count = n
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("build rule for %s: %w", a.ID, err)
	}
	return r.All(), nil
}

// eventStart is the stored target, or the next occurrence when the target has
// already passed.
func eventStart(a *model.Alarm, now time.Time) (time.Time, error) {
	if a.Target != nil && a.Target.After(now) {
		return *a.Target, nil
	}
	return schedule.NextOccurrence(&a.Schedule, now)
}

// Build assembles a calendar of the enabled alarms. Alarms that cannot be
// evaluated are left out.
func Build(alarms []model.Alarm, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	for i := range alarms {
		a := &alarms[i]
		if !a.Enabled {
			continue
		}
		start, err := eventStart(a, now)
		if err != nil {
			continue
		}
		opt, err := utcRule(&a.Schedule, start)
		if err != nil {
			continue
		}

		ev := ical.NewEvent()
		ev.Props.SetText(ical.PropUID, a.ID+"@shila-wake")
		ev.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(EventDuration).UTC())
		ev.Props.SetText(ical.PropSummary, "Alarm: "+a.DisplayName())
		ev.Props.SetText(ical.PropDescription, fmt.Sprintf("mode=%s repeat=%s", a.Mode, a.Repeat))
		if opt != nil {
			prop := ical.NewProp(ical.PropRecurrenceRule)
			prop.Value = opt.RRuleString()
			ev.Props.Set(prop)
		}
		cal.Children = append(cal.Children, ev.Component)
	}
	return cal
}

// Export writes the enabled alarms to w as an .ics document.
func Export(w io.Writer, alarms []model.Alarm, now time.Time) error {
	if err := ical.NewEncoder(w).Encode(Build(alarms, now)); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}
