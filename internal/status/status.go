// Package status reports whether the daemon is running and what it will do next.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/nugrahalabib/moltbot/internal/active"
	"github.com/nugrahalabib/moltbot/internal/control"
	"github.com/nugrahalabib/moltbot/internal/lock"
	"github.com/nugrahalabib/moltbot/internal/store"
	"github.com/nugrahalabib/moltbot/internal/uds"
)

// LockPath is the daemon's single-instance PID lock inside dir.
func LockPath(dir string) string {
	return filepath.Join(dir, "locks", "daemon.lock")
}

func SocketPath(dir string) string {
	return filepath.Join(dir, uds.SocketName)
}

// Collect asks the running daemon for its report. When it does not answer, the
// report is built from the files on disk and Running is false.
func Collect(dir string, now time.Time) (control.Report, error) {
	client := uds.NewClient(SocketPath(dir))
	client.SetTimeout(3 * time.Second)
	var rep control.Report
	if err := client.Call(uds.CmdStatus, nil, &rep); err == nil {
		return rep, nil
	}
	return offline(dir, now)
}

func offline(dir string, now time.Time) (control.Report, error) {
	rep := control.Report{DataDir: dir, Active: active.Status{State: active.StateIdle}}
	if lock.Held(LockPath(dir)) {
		pid, _ := lock.ReadPID(LockPath(dir))
		rep.PID = pid
	}

	s := store.New(dir)
	alarms, err := s.ListAlarms()
	if err != nil {
		return rep, err
	}
	rep.Alarms = len(alarms)
	for _, a := range alarms {
		if a.Enabled {
			rep.EnabledAlarms++
		}
	}
	reminders, err := s.ListReminders()
	if err != nil {
		return rep, err
	}
	rep.Reminders = len(reminders)

	next, err := s.NextAlarm(now)
	switch {
	case err == nil:
		rep.NextAlarm = &next
	case !errors.Is(err, store.ErrNotFound):
		return rep, err
	}
	return rep, nil
}

// Run prints the status report to w.
func Run(dir string, jsonOutput bool, w io.Writer) error {
	rep, err := Collect(dir, time.Now())
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	Print(w, rep)
	return nil
}

func Print(w io.Writer, r control.Report) {
	switch {
	case r.Running:
		fmt.Fprintf(w, "Daemon: running (pid %d, up %s)\n", r.PID, r.Uptime)
	case r.PID != 0:
		fmt.Fprintf(w, "Daemon: not responding (lock held by pid %d)\n", r.PID)
	default:
		fmt.Fprintln(w, "Daemon: stopped")
	}

	fmt.Fprintf(w, "\nAlarms: %d (%d enabled)\n", r.Alarms, r.EnabledAlarms)
	fmt.Fprintf(w, "Reminders: %d\n", r.Reminders)
	if r.NextAlarm != nil {
		n := r.NextAlarm
		fmt.Fprintf(w, "Next alarm: %s at %s (in %s)\n",
			n.Alarm.DisplayName(), n.At.Format("Mon 2006-01-02 15:04"), n.In.Truncate(time.Minute))
	} else {
		fmt.Fprintln(w, "Next alarm: none")
	}

	switch r.Active.State {
	case active.StateRinging:
		fmt.Fprintf(w, "\nRINGING: %s (snoozed %d times)\n", r.Active.Label, r.Active.SnoozeCount)
		fmt.Fprintf(w, "  Solve to dismiss: %s\n", r.Active.Question)
	case active.StateSnoozed:
		resume := ""
		if r.Active.ResumeAt != nil {
			resume = r.Active.ResumeAt.Format("15:04")
		}
		fmt.Fprintf(w, "\nSnoozed: %s, rings again at %s\n", r.Active.Label, resume)
	}
}
