package model

import (
	"errors"
	"fmt"
)

type ActionKind string

const (
	ActionVoice    ActionKind = "voice"
	ActionMessage  ActionKind = "message"
	ActionWeather  ActionKind = "weather"
	ActionMusic    ActionKind = "music"
	ActionQuote    ActionKind = "quote"
	ActionEscalate ActionKind = "escalate"
)

// Action is a tagged variant; Kind selects which of the remaining fields apply.
type Action struct {
	Kind        ActionKind `yaml:"type" json:"type"`
	Text        string     `yaml:"text,omitempty" json:"text,omitempty"`
	Channel     string     `yaml:"channel,omitempty" json:"channel,omitempty"`
	Sound       string     `yaml:"sound,omitempty" json:"sound,omitempty"`
	Location    string     `yaml:"location,omitempty" json:"location,omitempty"`
	Quotes      []string   `yaml:"quotes,omitempty" json:"quotes,omitempty"`
	IntervalSec int        `yaml:"interval_sec,omitempty" json:"interval_sec,omitempty"`
}

func (a Action) Validate() error {
	switch a.Kind {
	case ActionVoice, ActionMessage:
		if a.Text == "" {
			return fmt.Errorf("%s action requires text", a.Kind)
		}
	case ActionMusic:
		if a.Sound == "" {
			return errors.New("music action requires sound")
		}
	case ActionEscalate:
		if a.IntervalSec < 0 {
			return errors.New("escalate interval_sec must not be negative")
		}
	case ActionWeather, ActionQuote:
	case "":
		return errors.New("action type is required")
	default:
		return fmt.Errorf("unknown action type %q", a.Kind)
	}
	return nil
}
