// Package wake runs the side-effect sequences of a fired alarm or reminder:
// lights, AC, sound, speech and chat.
package wake

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/nugrahalabib/moltbot/internal/logging"
	"github.com/nugrahalabib/moltbot/internal/metrics"
	"github.com/nugrahalabib/moltbot/internal/model"
)

type Devices interface {
	Apply(ctx context.Context, s model.DeviceSetting) error
	AC(ctx context.Context, s ACSetting) error
}

type ACSetting struct {
	Name        string
	Power       string
	Temperature int
	Mode        string
}

type Sound interface {
	Play(ctx context.Context, ref string) error
}

type Speaker interface {
	Announce(ctx context.Context, text string) error
}

type Messenger interface {
	Notify(ctx context.Context, channel, message string) error
}

type Notifier interface {
	Send(ctx context.Context, title, message string) error
}

type Weather interface {
	Report(ctx context.Context, location string) (string, error)
}

// Deps are the collaborators a Dispatcher drives. A nil field disables that
// side effect.
type Deps struct {
	Devices   Devices
	Sound     Sound
	Speaker   Speaker
	Messenger Messenger
	Notifier  Notifier
	Weather   Weather
}

var (
	ErrUnknownRoutine = errors.New("unknown routine")
	ErrUnknownTest    = errors.New("unknown test")
)

var chatMessages = map[model.Mode]string{
	model.ModeGentle:  "Selamat pagi, Sayang! Sudah waktunya bangun~",
	model.ModeNormal:  "Bangun Sayang! Sudah pagi!",
	model.ModeNuclear: "BANGUN!!! ALARM NUCLEAR - JANGAN DIABAIKAN!",
}

var defaultQuotes = []string{
	"Hari ini adalah kesempatan baru.",
	"Langkah kecil setiap pagi membawa perubahan besar.",
	"Bangun, bersyukur, lalu mulai.",
}

const (
	gentleStep     = 2 * time.Second
	nuclearRepeat  = 5
	nuclearPause   = time.Second
	sleepLightsOff = 5 * time.Second
)

type Dispatcher struct {
	cfg   model.Config
	deps  Deps
	log   *logging.Logger
	sleep func(ctx context.Context, d time.Duration) error
	intn  func(n int) int
}

type Option func(*Dispatcher)

func WithLogger(l *logging.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithSleep replaces the pause between sequence steps.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) { d.sleep = fn }
}

func WithRand(intn func(n int) int) Option {
	return func(d *Dispatcher) { d.intn = intn }
}

func New(cfg model.Config, deps Deps, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:   cfg,
		deps:  deps,
		log:   logging.Discard(),
		sleep: Sleep,
		intn:  rand.IntN,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Dispatcher) fail(component string, err error) error {
	if err == nil {
		return nil
	}
	metrics.IncSideEffectError(component)
	d.log.Warnf("%s failed: %v", component, err)
	return fmt.Errorf("%s: %w", component, err)
}

func (d *Dispatcher) lightNames(alarm *model.Alarm) []string {
	if alarm != nil && len(alarm.Devices) > 0 {
		names := make([]string, 0, len(alarm.Devices))
		for _, dev := range alarm.Devices {
			names = append(names, dev.Name)
		}
		return names
	}
	return d.cfg.Devices.WakeLights
}

func (d *Dispatcher) lights(ctx context.Context, names []string, power string, brightness int, color string) error {
	if d.deps.Devices == nil {
		return nil
	}
	var errs []error
	for _, name := range names {
		s := model.DeviceSetting{Name: name, Power: power, Brightness: brightness, Color: color}
		errs = append(errs, d.fail("devices", d.deps.Devices.Apply(ctx, s)))
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) ac(ctx context.Context, power string, temp int) error {
	if d.deps.Devices == nil || d.cfg.Devices.ACDevice == "" {
		return nil
	}
	s := ACSetting{Name: d.cfg.Devices.ACDevice, Power: power}
	if power == "on" {
		s.Temperature, s.Mode = temp, "cool"
	}
	return d.fail("devices", d.deps.Devices.AC(ctx, s))
}

func (d *Dispatcher) play(ctx context.Context, ref string) error {
	if d.deps.Sound == nil || ref == "" {
		return nil
	}
	return d.fail("sound", d.deps.Sound.Play(ctx, ref))
}

func (d *Dispatcher) speak(ctx context.Context, text string) error {
	if d.deps.Speaker == nil || !d.cfg.TTS.Enabled || text == "" {
		return nil
	}
	return d.fail("tts", d.deps.Speaker.Announce(ctx, text))
}

func (d *Dispatcher) chat(ctx context.Context, channel, text string) error {
	if d.deps.Messenger == nil || text == "" {
		return nil
	}
	return d.fail("chat", d.deps.Messenger.Notify(ctx, channel, text))
}

func (d *Dispatcher) soundFor(mode model.Mode, alarm *model.Alarm) string {
	if alarm != nil && alarm.Sound != "" {
		return alarm.Sound
	}
	return d.cfg.Wake.SoundFor(mode)
}

// ExecuteWake runs the sequence for mode, then the alarm's own device
// settings and actions. alarm may be nil for a bare test run. Every failure
// is logged and joined into the returned error; no step aborts the others
// except context cancellation.
func (d *Dispatcher) ExecuteWake(ctx context.Context, mode model.Mode, alarm *model.Alarm) error {
	if !mode.IsValid() {
		mode = d.cfg.Wake.DefaultMode
	}
	d.log.Infof("wake sequence mode=%s alarm=%s", mode, alarmName(alarm))

	names := d.lightNames(alarm)
	var errs []error
	switch mode {
	case model.ModeGentle:
		ramp := []struct {
			brightness int
			color      string
		}{{30, "warm"}, {50, "warm"}, {80, "white"}, {100, "white"}}
		for i, step := range ramp {
			if i > 0 {
				if err := d.sleep(ctx, gentleStep); err != nil {
					return errors.Join(append(errs, err)...)
				}
			}
			errs = append(errs, d.lights(ctx, names, "on", step.brightness, step.color))
		}
		errs = append(errs,
			d.ac(ctx, "off", 0),
			d.speak(ctx, d.cfg.TTS.Messages[string(mode)]),
			d.chat(ctx, "wake", chatMessages[mode]),
		)

	case model.ModeNuclear:
		errs = append(errs, d.lights(ctx, names, "on", 100, "white"), d.ac(ctx, "off", 0))
		loud := make(chan error, 1)
		go func() {
			var loopErrs []error
			for i := 0; i < nuclearRepeat; i++ {
				loopErrs = append(loopErrs, d.play(ctx, d.soundFor(mode, alarm)))
				if err := d.sleep(ctx, nuclearPause); err != nil {
					break
				}
			}
			loud <- errors.Join(loopErrs...)
		}()
		errs = append(errs,
			d.speak(ctx, d.cfg.TTS.Messages[string(mode)]),
			d.chat(ctx, "wake", chatMessages[mode]),
			<-loud,
		)

	default:
		errs = append(errs,
			d.lights(ctx, names, "on", 100, "white"),
			d.ac(ctx, "off", 0),
			d.play(ctx, d.soundFor(mode, alarm)),
			d.speak(ctx, d.cfg.TTS.Messages[string(mode)]),
			d.chat(ctx, "wake", chatMessages[mode]),
		)
	}

	if alarm != nil {
		if d.deps.Devices != nil {
			for _, dev := range alarm.Devices {
				errs = append(errs, d.fail("devices", d.deps.Devices.Apply(ctx, dev)))
			}
		}
		errs = append(errs, d.RunActions(ctx, alarm.Actions))
	}
	return errors.Join(errs...)
}

// RunActions executes per-alarm actions in order. Escalation is owned by the
// ringing episode and is skipped here.
func (d *Dispatcher) RunActions(ctx context.Context, actions []model.Action) error {
	var errs []error
	for _, act := range actions {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		switch act.Kind {
		case model.ActionVoice:
			errs = append(errs, d.speak(ctx, act.Text))
		case model.ActionMessage:
			errs = append(errs, d.chat(ctx, act.Channel, act.Text))
		case model.ActionMusic:
			errs = append(errs, d.play(ctx, act.Sound))
		case model.ActionQuote:
			errs = append(errs, d.speak(ctx, d.pickQuote(act.Quotes)))
		case model.ActionWeather:
			errs = append(errs, d.weather(ctx, act.Location))
		case model.ActionEscalate:
		default:
			d.log.Warnf("skipping unknown action type=%s", act.Kind)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) pickQuote(quotes []string) string {
	if len(quotes) == 0 {
		quotes = d.cfg.TTS.Quotes
	}
	if len(quotes) == 0 {
		quotes = defaultQuotes
	}
	return quotes[d.intn(len(quotes))]
}

func (d *Dispatcher) weather(ctx context.Context, location string) error {
	if d.deps.Weather == nil {
		return nil
	}
	line, err := d.deps.Weather.Report(ctx, location)
	if err != nil {
		return d.fail("weather", err)
	}
	return d.speak(ctx, line)
}

// Remind delivers a reminder. High priority reminders also sound and speak.
func (d *Dispatcher) Remind(ctx context.Context, r *model.Reminder) error {
	d.log.Infof("reminder reminder_id=%s priority=%s", r.ID, r.Priority)
	var errs []error
	if r.Priority == model.PriorityHigh {
		errs = append(errs,
			d.play(ctx, d.cfg.Wake.Sounds["reminder"]),
			d.speak(ctx, "Pengingat penting: "+r.Message),
		)
	}
	errs = append(errs, d.chat(ctx, "reminder", "Reminder: "+r.Message))
	if d.deps.Notifier != nil {
		errs = append(errs, d.fail("notify", d.deps.Notifier.Send(ctx, "Shila Wake Reminder", r.Message)))
	}
	return errors.Join(errs...)
}

var routines = map[string]func(d *Dispatcher, ctx context.Context) error{
	"morning": func(d *Dispatcher, ctx context.Context) error {
		return errors.Join(
			d.lights(ctx, d.cfg.Devices.WakeLights, "on", 100, "white"),
			d.ac(ctx, "on", 26),
			d.speak(ctx, "Selamat pagi! Semoga hari ini menyenangkan."),
		)
	},
	"work": func(d *Dispatcher, ctx context.Context) error {
		return errors.Join(
			d.lights(ctx, d.cfg.Devices.WakeLights, "on", 80, "white"),
			d.ac(ctx, "on", 24),
		)
	},
	"sleep": func(d *Dispatcher, ctx context.Context) error {
		errs := []error{
			d.lights(ctx, d.cfg.Devices.WakeLights, "on", 10, "warm"),
			d.ac(ctx, "on", 26),
		}
		if err := d.sleep(ctx, sleepLightsOff); err != nil {
			return errors.Join(append(errs, err)...)
		}
		return errors.Join(append(errs, d.lights(ctx, d.cfg.Devices.WakeLights, "off", 0, ""))...)
	},
	"movie": func(d *Dispatcher, ctx context.Context) error {
		return errors.Join(
			d.lights(ctx, d.cfg.Devices.WakeLights, "off", 0, ""),
			d.ac(ctx, "on", 24),
		)
	},
}

// IsRoutine reports whether name is a known routine.
func IsRoutine(name string) bool {
	_, ok := routines[name]
	return ok
}

func (d *Dispatcher) RunRoutine(ctx context.Context, name string) error {
	fn, ok := routines[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownRoutine, name)
	}
	d.log.Infof("routine name=%s", name)
	return fn(d, ctx)
}

// Lights switches the configured wake lights. brightness and color apply
// only when turning them on.
func (d *Dispatcher) Lights(ctx context.Context, on bool, brightness int, color string) error {
	d.log.Infof("lights on=%t brightness=%d color=%s", on, brightness, color)
	if !on {
		return d.lights(ctx, d.cfg.Devices.WakeLights, "off", 0, "")
	}
	return d.lights(ctx, d.cfg.Devices.WakeLights, "on", brightness, color)
}

// SetAC switches the configured AC unit, cooling to temp when on.
func (d *Dispatcher) SetAC(ctx context.Context, on bool, temp int) error {
	d.log.Infof("ac on=%t temp=%d", on, temp)
	if !on {
		return d.ac(ctx, "off", 0)
	}
	return d.ac(ctx, "on", temp)
}

const defaultTestText = "Ini adalah tes suara dari Shila Wake System"

// IsTest reports whether kind names a test action.
func IsTest(kind string) bool {
	switch kind {
	case "sound", "lights", "tts", "wake":
		return true
	}
	return false
}

// Test exercises one collaborator. mode applies to the wake test and text to
// the tts test.
func (d *Dispatcher) Test(ctx context.Context, kind string, mode model.Mode, text string) error {
	d.log.Infof("test kind=%s mode=%s", kind, mode)
	switch kind {
	case "sound":
		return d.play(ctx, d.cfg.Wake.SoundFor(model.ModeNormal))
	case "lights":
		names := d.cfg.Devices.WakeLights
		errs := []error{d.lights(ctx, names, "on", 100, "white")}
		for _, step := range []struct {
			brightness int
			color      string
		}{{50, "blue"}, {100, "white"}} {
			if err := d.sleep(ctx, gentleStep); err != nil {
				return errors.Join(append(errs, err)...)
			}
			errs = append(errs, d.lights(ctx, names, "on", step.brightness, step.color))
		}
		return errors.Join(errs...)
	case "tts":
		if text == "" {
			text = defaultTestText
		}
		return d.speak(ctx, text)
	case "wake":
		return d.ExecuteWake(ctx, mode, nil)
	}
	return fmt.Errorf("%w: %q", ErrUnknownTest, kind)
}

func alarmName(a *model.Alarm) string {
	if a == nil {
		return "test"
	}
	return a.ID
}
