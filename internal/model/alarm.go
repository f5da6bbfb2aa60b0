// Package model defines the records, configuration and identifiers shared by the wake daemon.
package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type Mode string

const (
	ModeGentle  Mode = "gentle"
	ModeNormal  Mode = "normal"
	ModeNuclear Mode = "nuclear"
)

func (m Mode) IsValid() bool {
	switch m {
	case ModeGentle, ModeNormal, ModeNuclear:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	}
	return false
}

var clockRegex = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

const DateLayout = "2006-01-02"

// ParseClock parses an HH:MM or H:MM time-of-day.
func ParseClock(s string) (hour, minute int, err error) {
	if !clockRegex.MatchString(s) {
		return 0, 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return hour, minute, nil
}

// NormalizeClock rewrites s to zero-padded HH:MM.
func NormalizeClock(s string) (string, error) {
	h, m, err := ParseClock(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", h, m), nil
}

// Schedule holds the temporal fields shared by alarms and reminders.
type Schedule struct {
	Time            string     `yaml:"time" json:"time"`
	Date            string     `yaml:"date,omitempty" json:"date,omitempty"`
	Target          *time.Time `yaml:"target,omitempty" json:"target,omitempty"`
	Repeat          Repeat     `yaml:"repeat" json:"repeat"`
	Enabled         bool       `yaml:"enabled" json:"enabled"`
	LastTriggeredAt *time.Time `yaml:"last_triggered_at,omitempty" json:"last_triggered_at,omitempty"`
}

func (s *Schedule) validate(ve *ValidationErrors) {
	if s.Target == nil || s.Time != "" {
		if _, _, err := ParseClock(s.Time); err != nil {
			ve.Add("time", err.Error())
		}
	}
	if s.Date != "" {
		if _, err := time.Parse(DateLayout, s.Date); err != nil {
			ve.Add("date", fmt.Sprintf("invalid date %q: want YYYY-MM-DD", s.Date))
		}
	}
	if _, err := s.Repeat.Weekdays(); err != nil {
		ve.Add("repeat", err.Error())
	}
}

type DeviceSetting struct {
	Name        string `yaml:"name" json:"name"`
	Power       string `yaml:"power,omitempty" json:"power,omitempty"`
	Brightness  int    `yaml:"brightness,omitempty" json:"brightness,omitempty"`
	Color       string `yaml:"color,omitempty" json:"color,omitempty"`
	Temperature int    `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

type Alarm struct {
	ID        string          `yaml:"id" json:"id"`
	Label     string          `yaml:"label,omitempty" json:"label,omitempty"`
	Schedule  `yaml:",inline"`
	Mode      Mode            `yaml:"mode" json:"mode"`
	Devices   []DeviceSetting `yaml:"devices,omitempty" json:"devices,omitempty"`
	Actions   []Action        `yaml:"actions,omitempty" json:"actions,omitempty"`
	Sound     string          `yaml:"sound,omitempty" json:"sound,omitempty"`
	CreatedAt time.Time       `yaml:"created_at" json:"created_at"`
}

func (a *Alarm) Validate() error {
	var ve ValidationErrors
	a.Schedule.validate(&ve)
	if !a.Mode.IsValid() {
		ve.Add("mode", fmt.Sprintf("unknown mode %q", a.Mode))
	}
	for i, d := range a.Devices {
		if strings.TrimSpace(d.Name) == "" {
			ve.Add(fmt.Sprintf("devices[%d].name", i), "required")
		}
		if d.Power != "" && d.Power != "on" && d.Power != "off" {
			ve.Add(fmt.Sprintf("devices[%d].power", i), "must be on or off")
		}
		if d.Brightness < 0 || d.Brightness > 100 {
			ve.Add(fmt.Sprintf("devices[%d].brightness", i), "must be 0-100")
		}
	}
	for i, act := range a.Actions {
		if err := act.Validate(); err != nil {
			ve.Add(fmt.Sprintf("actions[%d]", i), err.Error())
		}
	}
	return ve.Err()
}

// Escalation returns the first escalate action, if any.
func (a *Alarm) Escalation() (Action, bool) {
	for _, act := range a.Actions {
		if act.Kind == ActionEscalate {
			return act, true
		}
	}
	return Action{}, false
}

// DisplayName is the label, or the time when no label was given.
func (a *Alarm) DisplayName() string {
	if a.Label != "" {
		return a.Label
	}
	return "Alarm " + a.Time
}

type Reminder struct {
	ID        string    `yaml:"id" json:"id"`
	Message   string    `yaml:"message" json:"message"`
	Schedule  `yaml:",inline"`
	Priority  Priority  `yaml:"priority" json:"priority"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
}

func (r *Reminder) Validate() error {
	var ve ValidationErrors
	if strings.TrimSpace(r.Message) == "" {
		ve.Add("message", "required")
	}
	r.Schedule.validate(&ve)
	if !r.Priority.IsValid() {
		ve.Add("priority", fmt.Sprintf("unknown priority %q", r.Priority))
	}
	return ve.Err()
}

// AlarmFile is the on-disk layout of alarms.yaml.
type AlarmFile struct {
	SchemaVersion int     `yaml:"schema_version"`
	FileType      string  `yaml:"file_type"`
	Alarms        []Alarm `yaml:"alarms"`
}

// ReminderFile is the on-disk layout of reminders.yaml.
type ReminderFile struct {
	SchemaVersion int        `yaml:"schema_version"`
	FileType      string     `yaml:"file_type"`
	Reminders     []Reminder `yaml:"reminders"`
}
