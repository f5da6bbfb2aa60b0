// Package notify raises desktop notifications and runs short-lived helper commands.
package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command on the host.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Run executes argv through run with a timeout and folds output into errors.
func Run(ctx context.Context, run Runner, timeout time.Duration, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := run(ctx, argv[0], argv[1:]...)
	if err != nil {
		return fmt.Errorf("%s: %w: %s", argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

type Notifier struct {
	goos    string
	run     Runner
	timeout time.Duration
}

func New(run Runner) *Notifier {
	if run == nil {
		run = ExecRunner
	}
	return &Notifier{goos: runtime.GOOS, run: run, timeout: 10 * time.Second}
}

// Send shows a notification with sound via osascript on macOS and notify-send elsewhere.
func (n *Notifier) Send(ctx context.Context, title, message string) error {
	return Run(ctx, n.run, n.timeout, n.command(title, message))
}

func (n *Notifier) command(title, message string) []string {
	if n.goos == "darwin" {
		script := fmt.Sprintf(
			`display notification "%s" with title "%s" sound name "default"`,
			escapeAppleScript(message), escapeAppleScript(title),
		)
		return []string{"osascript", "-e", script}
	}
	return []string{"notify-send", "--urgency=critical", "--app-name=shila-wake", title, message}
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
