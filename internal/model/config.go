package model

import (
	"fmt"
	"slices"
	"time"
)

type Config struct {
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Wake      WakeConfig      `yaml:"wake" json:"wake"`
	TTS       TTSConfig       `yaml:"tts" json:"tts"`
	Devices   DevicesConfig   `yaml:"devices" json:"devices"`
	Chat      ChatConfig      `yaml:"chat" json:"chat"`
	HTTP      HTTPConfig      `yaml:"http" json:"http"`
	Daemon    DaemonConfig    `yaml:"daemon" json:"daemon"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

type SchedulerConfig struct {
	AlarmIntervalSec    int `yaml:"alarm_interval_sec" json:"alarm_interval_sec"`
	ReminderIntervalSec int `yaml:"reminder_interval_sec" json:"reminder_interval_sec"`
	DueWindowSec        int `yaml:"due_window_sec" json:"due_window_sec"`
	SuppressWindowSec   int `yaml:"retrigger_suppress_sec" json:"retrigger_suppress_sec"`
	DispatchTimeoutSec  int `yaml:"dispatch_timeout_sec" json:"dispatch_timeout_sec"`
}

type WakeConfig struct {
	DefaultMode           Mode              `yaml:"default_mode" json:"default_mode"`
	SnoozeMinutes         int               `yaml:"snooze_minutes" json:"snooze_minutes"`
	SnoozeOptions         []int             `yaml:"snooze_options" json:"snooze_options"`
	MaxSnooze             int               `yaml:"max_snooze" json:"max_snooze"`
	Volume                int               `yaml:"volume" json:"volume"`
	SoundsDir             string            `yaml:"sounds_dir" json:"sounds_dir"`
	Sounds                map[string]string `yaml:"sounds" json:"sounds"`
	SoundPauseMs          int               `yaml:"sound_pause_ms" json:"sound_pause_ms"`
	WatchdogGraceSec      int               `yaml:"watchdog_grace_sec" json:"watchdog_grace_sec"`
	WatchdogIntervalSec   int               `yaml:"watchdog_interval_sec" json:"watchdog_interval_sec"`
	EscalationIntervalSec int               `yaml:"escalation_interval_sec" json:"escalation_interval_sec"`
	PresentationURL       string            `yaml:"presentation_url" json:"presentation_url"`
	ChallengeMin          int               `yaml:"challenge_min" json:"challenge_min"`
	ChallengeMax          int               `yaml:"challenge_max" json:"challenge_max"`
}

type TTSConfig struct {
	Enabled    bool              `yaml:"enabled" json:"enabled"`
	Command    []string          `yaml:"command" json:"command"`
	TimeoutSec int               `yaml:"timeout_sec" json:"timeout_sec"`
	Messages   map[string]string `yaml:"messages" json:"messages"`
	Quotes     []string          `yaml:"quotes,omitempty" json:"quotes,omitempty"`
}

type DevicesConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	Command        []string `yaml:"command" json:"command"`
	WeatherCommand []string `yaml:"weather_command,omitempty" json:"weather_command,omitempty"`
	WakeLights     []string `yaml:"wake_lights" json:"wake_lights"`
	ACDevice       string   `yaml:"ac_device" json:"ac_device"`
	TimeoutSec     int      `yaml:"timeout_sec" json:"timeout_sec"`
}

type ChatConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	WebhookURL string `yaml:"webhook_url" json:"-"`
	Target     string `yaml:"target" json:"target"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"`
}

type DaemonConfig struct {
	ShutdownTimeoutSec int `yaml:"shutdown_timeout_sec" json:"shutdown_timeout_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// DefaultConfig returns the configuration used when config.yaml omits a field.
func DefaultConfig() Config {
	return Config{
		Scheduler: SchedulerConfig{
			AlarmIntervalSec:    30,
			ReminderIntervalSec: 60,
			DueWindowSec:        60,
			SuppressWindowSec:   120,
			DispatchTimeoutSec:  120,
		},
		Wake: WakeConfig{
			DefaultMode:   ModeNormal,
			SnoozeMinutes: 10,
			SnoozeOptions: []int{5, 10, 15, 30},
			MaxSnooze:     3,
			Volume:        100,
			SoundsDir:     "sounds",
			Sounds: map[string]string{
				string(ModeGentle):  "gentle_alarm.wav",
				string(ModeNormal):  "alarm.wav",
				string(ModeNuclear): "nuclear_alarm.wav",
				"reminder":          "reminder.wav",
			},
			SoundPauseMs:          1500,
			WatchdogGraceSec:      30,
			WatchdogIntervalSec:   30,
			EscalationIntervalSec: 15,
			PresentationURL:       "http://127.0.0.1:8765/",
			ChallengeMin:          2,
			ChallengeMax:          20,
		},
		TTS: TTSConfig{
			Enabled:    true,
			Command:    []string{"espeak"},
			TimeoutSec: 30,
			Messages: map[string]string{
				string(ModeGentle):  "Selamat pagi, Sayang. Sudah waktunya bangun.",
				string(ModeNormal):  "Bangun Sayang! Sudah pagi!",
				string(ModeNuclear): "BANGUN! SUDAH TELAT! CEPAT BANGUN SEKARANG!",
			},
		},
		Devices: DevicesConfig{
			Enabled:    false,
			Command:    []string{"python3", "tuya_control.py"},
			WakeLights: []string{"lampu meja", "soft box 1", "soft box 2", "lampu strip meja", "lampu strip dinding"},
			ACDevice:   "AC Studio",
			TimeoutSec: 15,
		},
		Chat: ChatConfig{
			Enabled: false,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Listen:  "127.0.0.1:8765",
		},
		Daemon: DaemonConfig{
			ShutdownTimeoutSec: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func (c *Config) Validate() error {
	var ve ValidationErrors
	s := c.Scheduler
	if s.DueWindowSec <= 0 {
		ve.Add("scheduler.due_window_sec", "must be positive")
	}
	if s.AlarmIntervalSec <= 0 || s.AlarmIntervalSec > s.DueWindowSec {
		ve.Add("scheduler.alarm_interval_sec", fmt.Sprintf("must be between 1 and due_window_sec (%d)", s.DueWindowSec))
	}
	if s.ReminderIntervalSec <= 0 || s.ReminderIntervalSec > s.DueWindowSec {
		ve.Add("scheduler.reminder_interval_sec", fmt.Sprintf("must be between 1 and due_window_sec (%d)", s.DueWindowSec))
	}
	if s.SuppressWindowSec < s.DueWindowSec {
		ve.Add("scheduler.retrigger_suppress_sec", "must be at least due_window_sec")
	}

	w := c.Wake
	if !w.DefaultMode.IsValid() {
		ve.Add("wake.default_mode", fmt.Sprintf("unknown mode %q", w.DefaultMode))
	}
	if len(w.SnoozeOptions) == 0 {
		ve.Add("wake.snooze_options", "must not be empty")
	}
	for i, m := range w.SnoozeOptions {
		if m <= 0 {
			ve.Add(fmt.Sprintf("wake.snooze_options[%d]", i), "must be positive")
		}
	}
	if !slices.Contains(w.SnoozeOptions, w.SnoozeMinutes) {
		ve.Add("wake.snooze_minutes", "must be one of snooze_options")
	}
	if w.MaxSnooze < 0 {
		ve.Add("wake.max_snooze", "must not be negative")
	}
	if w.Volume < 0 || w.Volume > 100 {
		ve.Add("wake.volume", "must be 0-100")
	}
	// Zero pauses turn the ringing loops into busy loops.
	for _, f := range []struct {
		path string
		v    int
	}{
		{"wake.sound_pause_ms", w.SoundPauseMs},
		{"wake.watchdog_grace_sec", w.WatchdogGraceSec},
		{"wake.watchdog_interval_sec", w.WatchdogIntervalSec},
		{"wake.escalation_interval_sec", w.EscalationIntervalSec},
	} {
		if f.v <= 0 {
			ve.Add(f.path, "must be positive")
		}
	}
	if w.ChallengeMin < 1 || w.ChallengeMax < w.ChallengeMin {
		ve.Add("wake.challenge_min", "challenge range must satisfy 1 <= min <= max")
	}
	if c.TTS.Enabled && len(c.TTS.Command) == 0 {
		ve.Add("tts.command", "required when tts is enabled")
	}
	if c.Devices.Enabled && len(c.Devices.Command) == 0 {
		ve.Add("devices.command", "required when devices are enabled")
	}
	if c.Chat.Enabled && c.Chat.WebhookURL == "" {
		ve.Add("chat.webhook_url", "required when chat is enabled")
	}
	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		ve.Add("http.listen", "required when http is enabled")
	}
	return ve.Err()
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (s SchedulerConfig) AlarmInterval() time.Duration    { return seconds(s.AlarmIntervalSec) }
func (s SchedulerConfig) ReminderInterval() time.Duration { return seconds(s.ReminderIntervalSec) }
func (s SchedulerConfig) DueWindow() time.Duration        { return seconds(s.DueWindowSec) }
func (s SchedulerConfig) SuppressWindow() time.Duration   { return seconds(s.SuppressWindowSec) }
func (s SchedulerConfig) DispatchTimeout() time.Duration  { return seconds(s.DispatchTimeoutSec) }

// SoundFor resolves the sound reference for a mode, or "" when none is configured.
func (w WakeConfig) SoundFor(mode Mode) string {
	return w.Sounds[string(mode)]
}
