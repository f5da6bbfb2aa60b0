package wake

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nugrahalabib/moltbot/internal/logging"
	"github.com/nugrahalabib/moltbot/internal/model"
	"github.com/nugrahalabib/moltbot/internal/notify"
)

// CommandDevices drives lights and AC through an external control script,
// e.g. `python3 tuya_control.py device "lampu meja" --power on`.
type CommandDevices struct {
	run     notify.Runner
	argv    []string
	timeout time.Duration
}

func NewCommandDevices(run notify.Runner, argv []string, timeout time.Duration) *CommandDevices {
	if run == nil {
		run = notify.ExecRunner
	}
	return &CommandDevices{run: run, argv: argv, timeout: timeout}
}

func (c *CommandDevices) Apply(ctx context.Context, s model.DeviceSetting) error {
	power := s.Power
	if power == "" {
		power = "on"
	}
	args := append(slices.Clone(c.argv), "device", s.Name, "--power", power)
	if s.Brightness > 0 {
		args = append(args, "--brightness", strconv.Itoa(s.Brightness))
	}
	if s.Color != "" {
		args = append(args, "--color", s.Color)
	}
	if s.Temperature > 0 {
		args = append(args, "--temp", strconv.Itoa(s.Temperature))
	}
	return notify.Run(ctx, c.run, c.timeout, args)
}

func (c *CommandDevices) AC(ctx context.Context, s ACSetting) error {
	args := append(slices.Clone(c.argv), "ac", s.Name, "--power", s.Power)
	if s.Temperature > 0 {
		args = append(args, "--temp", strconv.Itoa(s.Temperature))
	}
	if s.Mode != "" {
		args = append(args, "--mode", s.Mode)
	}
	return notify.Run(ctx, c.run, c.timeout, args)
}

// CommandSpeaker speaks text by appending it to a TTS command line.
type CommandSpeaker struct {
	run     notify.Runner
	argv    []string
	timeout time.Duration
}

func NewCommandSpeaker(run notify.Runner, argv []string, timeout time.Duration) *CommandSpeaker {
	if run == nil {
		run = notify.ExecRunner
	}
	return &CommandSpeaker{run: run, argv: argv, timeout: timeout}
}

func (c *CommandSpeaker) Announce(ctx context.Context, text string) error {
	return notify.Run(ctx, c.run, c.timeout, append(slices.Clone(c.argv), text))
}

// CommandWeather reads a one-line forecast from a helper command's stdout.
type CommandWeather struct {
	run     notify.Runner
	argv    []string
	timeout time.Duration
}

func NewCommandWeather(run notify.Runner, argv []string, timeout time.Duration) *CommandWeather {
	if run == nil {
		run = notify.ExecRunner
	}
	return &CommandWeather{run: run, argv: argv, timeout: timeout}
}

func (c *CommandWeather) Report(ctx context.Context, location string) (string, error) {
	if len(c.argv) == 0 {
		return "", errors.New("weather command not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	args := slices.Clone(c.argv[1:])
	if location != "" {
		args = append(args, location)
	}
	out, err := c.run(ctx, c.argv[0], args...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.argv[0], err)
	}
	line := strings.TrimSpace(string(out))
	if line == "" {
		return "", errors.New("weather command returned nothing")
	}
	return line, nil
}

// BrowserPresenter brings up the alarm page and raises a desktop notification.
type BrowserPresenter struct {
	run      notify.Runner
	url      string
	goos     string
	notifier *notify.Notifier
}

func NewBrowserPresenter(run notify.Runner, url string) *BrowserPresenter {
	if run == nil {
		run = notify.ExecRunner
	}
	return &BrowserPresenter{run: run, url: url, goos: runtime.GOOS, notifier: notify.New(run)}
}

func (p *BrowserPresenter) Open(ctx context.Context) error {
	opener := "xdg-open"
	if p.goos == "darwin" {
		opener = "open"
	}
	var errs []error
	if p.url != "" {
		errs = append(errs, notify.Run(ctx, p.run, 10*time.Second, []string{opener, p.url}))
	}
	errs = append(errs, p.notifier.Send(ctx, "Shila Wake", "Alarm berbunyi! Selesaikan soal untuk mematikan."))
	return errors.Join(errs...)
}

// LogMessenger stands in for chat delivery when no webhook is configured.
type LogMessenger struct {
	Log *logging.Logger
}

func (m LogMessenger) Notify(_ context.Context, channel, message string) error {
	m.Log.Infof("chat channel=%s message=%q", channel, message)
	return nil
}
