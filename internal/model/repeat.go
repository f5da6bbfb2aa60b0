package model

import (
	"fmt"
	"strings"
	"time"
)

// Repeat is "once", "daily", or a comma separated weekday set such as "mon,wed,fri".
type Repeat string

const (
	RepeatOnce  Repeat = "once"
	RepeatDaily Repeat = "daily"
)

// WeekdaySet is a bitmask indexed by time.Weekday.
type WeekdaySet uint8

const allWeekdays WeekdaySet = 1<<7 - 1

func (s WeekdaySet) Has(d time.Weekday) bool {
	return s&(1<<uint(d)) != 0
}

func (s WeekdaySet) With(d time.Weekday) WeekdaySet {
	return s | 1<<uint(d)
}

func (s WeekdaySet) Empty() bool { return s == 0 }

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

var shortWeekday = [...]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

func (r Repeat) IsOnce() bool  { return r == "" || r == RepeatOnce }
func (r Repeat) IsDaily() bool { return r == RepeatDaily }

// Weekdays returns the weekday set for a custom repeat. Once and daily
// return an empty set and a full set respectively.
func (r Repeat) Weekdays() (WeekdaySet, error) {
	switch {
	case r.IsOnce():
		return 0, nil
	case r.IsDaily():
		return allWeekdays, nil
	}

	var set WeekdaySet
	for _, tok := range strings.Split(string(r), ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		switch tok {
		case "weekdays":
			for d := time.Monday; d <= time.Friday; d++ {
				set = set.With(d)
			}
			continue
		case "weekends":
			set = set.With(time.Saturday).With(time.Sunday)
			continue
		}
		d, ok := weekdayNames[tok]
		if !ok {
			return 0, fmt.Errorf("invalid repeat %q: unknown weekday %q", r, tok)
		}
		set = set.With(d)
	}
	return set, nil
}

// Normalize rewrites a weekday repeat into its canonical "mon,wed" form.
func (r Repeat) Normalize() (Repeat, error) {
	if r == "" {
		return RepeatOnce, nil
	}
	if r.IsOnce() || r.IsDaily() {
		return r, nil
	}
	set, err := r.Weekdays()
	if err != nil {
		return "", err
	}
	if set == allWeekdays {
		return RepeatDaily, nil
	}
	var days []string
	for d := time.Sunday; d <= time.Saturday; d++ {
		if set.Has(d) {
			days = append(days, shortWeekday[d])
		}
	}
	return Repeat(strings.Join(days, ",")), nil
}
