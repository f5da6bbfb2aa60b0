package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nugrahalabib/moltbot/internal/active"
	"github.com/nugrahalabib/moltbot/internal/autostart"
	"github.com/nugrahalabib/moltbot/internal/calendar"
	"github.com/nugrahalabib/moltbot/internal/control"
	"github.com/nugrahalabib/moltbot/internal/daemon"
	"github.com/nugrahalabib/moltbot/internal/model"
	"github.com/nugrahalabib/moltbot/internal/setup"
	"github.com/nugrahalabib/moltbot/internal/status"
	"github.com/nugrahalabib/moltbot/internal/store"
	"github.com/nugrahalabib/moltbot/internal/uds"
)

const version = "1.0.0"

func main() {
	dirFlag, args := extractDir(os.Args[1:])
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "daemon":
		runDaemon(dirFlag, args[1:])
	case "setup":
		runSetup(dirFlag)
	case "status":
		runStatus(dirFlag, args[1:])
	case "stop":
		runStop(dirFlag)
	case "check":
		runCheck(dirFlag)
	case "alarm":
		runAlarm(dirFlag, args[1:])
	case "remind":
		runRemind(dirFlag, args[1:])
	case "next":
		runNext(dirFlag)
	case "active":
		runActive(dirFlag)
	case "snooze":
		runSnooze(dirFlag, args[1:])
	case "dismiss":
		runDismiss(dirFlag, args[1:])
	case "routine":
		runRoutine(dirFlag, args[1:])
	case "test":
		runTest(dirFlag, args[1:])
	case "lights":
		runLights(dirFlag, args[1:])
	case "ac":
		runAC(dirFlag, args[1:])
	case "config":
		runConfig(dirFlag, args[1:])
	case "autostart":
		runAutostart(dirFlag, args[1:])
	case "export-ics":
		runExportICS(dirFlag, args[1:])
	case "version":
		fmt.Printf("shilawake %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

// extractDir pulls a --dir flag from anywhere in args.
func extractDir(args []string) (string, []string) {
	var dir string
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--dir":
			if i+1 >= len(args) {
				fatalf("--dir requires a value")
			}
			i++
			dir = args[i]
		case strings.HasPrefix(args[i], "--dir="):
			dir = strings.TrimPrefix(args[i], "--dir=")
		default:
			rest = append(rest, args[i])
		}
	}
	return dir, rest
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}

func resolveDir(flag string) string {
	dir, err := setup.ResolveDir(flag)
	if err != nil {
		fatalf("resolve data dir: %v", err)
	}
	return dir
}

// loadDir resolves the data dir and requires that setup has run.
func loadDir(flag string) (string, model.Config) {
	dir := resolveDir(flag)
	if _, err := os.Stat(filepath.Join(dir, setup.ConfigFile)); err != nil {
		fatalf("error: %s not initialized. Run 'shilawake setup' first.", dir)
	}
	cfg, err := setup.LoadConfig(dir)
	if err != nil {
		fatalf("load config: %v", err)
	}
	return dir, cfg
}

func client(flag string) *uds.Client {
	dir, _ := loadDir(flag)
	return uds.NewClient(status.SocketPath(dir))
}

// call sends one command to the daemon and exits on failure.
func call(flag, cmd string, params, out any) {
	if err := client(flag).Call(cmd, params, out); err != nil {
		fatalf("%s: %v", cmd, err)
	}
}

// value returns the argument following a flag at args[*i].
func value(args []string, i *int) string {
	if *i+1 >= len(args) {
		fatalf("%s requires a value", args[*i])
	}
	*i++
	return args[*i]
}

func intValue(args []string, i *int) int {
	flag := args[*i]
	v := value(args, i)
	n, err := strconv.Atoi(v)
	if err != nil {
		fatalf("invalid %s value: %s", flag, v)
	}
	return n
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatalf("marshal: %v", err)
	}
	fmt.Println(string(data))
}

func runDaemon(dirFlag string, args []string) {
	foreground := false
	for _, a := range args {
		switch a {
		case "--foreground", "-f":
			foreground = true
		default:
			fatalf("unknown flag: %s\nusage: shilawake daemon [--foreground]", a)
		}
	}

	dir, cfg := loadDir(dirFlag)
	d, err := daemon.New(dir, cfg, foreground)
	if err != nil {
		fatalf("create daemon: %v", err)
	}
	if err := d.Run(); err != nil {
		if errors.Is(err, daemon.ErrAlreadyRunning) {
			fatalf("%v", err)
		}
		fatalf("daemon: %v", err)
	}
}

func runSetup(dirFlag string) {
	dir := resolveDir(dirFlag)
	created, err := setup.Run(dir)
	if err != nil {
		fatalf("setup: %v", err)
	}
	if len(created) == 0 {
		fmt.Printf("%s already initialized\n", dir)
		return
	}
	for _, p := range created {
		fmt.Printf("created %s\n", p)
	}
}

func runStatus(dirFlag string, args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fatalf("unknown flag: %s\nusage: shilawake status [--json]", a)
		}
	}
	dir, _ := loadDir(dirFlag)
	if err := status.Run(dir, jsonOutput, os.Stdout); err != nil {
		fatalf("status: %v", err)
	}
}

func runStop(dirFlag string) {
	call(dirFlag, uds.CmdShutdown, nil, nil)
	fmt.Println("shutdown requested")
}

func runCheck(dirFlag string) {
	var report control.CheckReport
	call(dirFlag, uds.CmdCheck, nil, &report)
	fmt.Printf("fired: %d alarm(s), %d reminder(s)\n", len(report.Alarms.Fired), len(report.Reminders.Fired))
}

func runAlarm(dirFlag string, args []string) {
	if len(args) < 1 {
		fatalf("usage: shilawake alarm <add|list|delete|toggle|upcoming> [options]")
	}
	switch args[0] {
	case "add":
		runAlarmAdd(dirFlag, args[1:])
	case "list", "ls":
		runAlarmList(dirFlag, args[1:])
	case "delete", "rm":
		if len(args) != 2 {
			fatalf("usage: shilawake alarm delete <id|all>")
		}
		var out map[string]int
		call(dirFlag, uds.CmdAlarmDelete, map[string]string{"id": args[1]}, &out)
		fmt.Printf("deleted %d alarm(s)\n", out["deleted"])
	case "toggle":
		runAlarmToggle(dirFlag, args[1:])
	case "upcoming":
		runAlarmUpcoming(dirFlag, args[1:])
	default:
		fatalf("unknown alarm subcommand: %s\nusage: shilawake alarm <add|list|delete|toggle|upcoming>", args[0])
	}
}

func runAlarmAdd(dirFlag string, args []string) {
	if len(args) < 1 {
		fatalf("usage: shilawake alarm add <HH:MM> [--date YYYY-MM-DD] [--repeat once|daily|mon,wed] [--label text] [--mode gentle|normal|nuclear] [--sound file] [--device name[,power=on][,brightness=N]] [--say text] [--message text] [--music file] [--quote] [--weather location] [--escalate seconds]")
	}
	a := model.Alarm{Schedule: model.Schedule{Time: args[0]}}
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--date":
			a.Date = value(rest, &i)
		case "--repeat":
			a.Repeat = model.Repeat(value(rest, &i))
		case "--label":
			a.Label = value(rest, &i)
		case "--mode":
			a.Mode = model.Mode(value(rest, &i))
		case "--sound":
			a.Sound = value(rest, &i)
		case "--device":
			d, err := parseDevice(value(rest, &i))
			if err != nil {
				fatalf("invalid --device: %v", err)
			}
			a.Devices = append(a.Devices, d)
		case "--say":
			a.Actions = append(a.Actions, model.Action{Kind: model.ActionVoice, Text: value(rest, &i)})
		case "--message":
			a.Actions = append(a.Actions, model.Action{Kind: model.ActionMessage, Text: value(rest, &i)})
		case "--music":
			a.Actions = append(a.Actions, model.Action{Kind: model.ActionMusic, Sound: value(rest, &i)})
		case "--quote":
			a.Actions = append(a.Actions, model.Action{Kind: model.ActionQuote})
		case "--weather":
			a.Actions = append(a.Actions, model.Action{Kind: model.ActionWeather, Location: value(rest, &i)})
		case "--escalate":
			a.Actions = append(a.Actions, model.Action{Kind: model.ActionEscalate, IntervalSec: intValue(rest, &i)})
		default:
			fatalf("unknown flag: %s", rest[i])
		}
	}

	var added model.Alarm
	call(dirFlag, uds.CmdAlarmAdd, a, &added)
	fmt.Printf("added %s at %s (%s)\n", added.ID, formatTarget(added.Target), added.Repeat)
}

// parseDevice reads "name[,power=on][,brightness=80][,color=white][,temp=26]".
func parseDevice(s string) (model.DeviceSetting, error) {
	parts := strings.Split(s, ",")
	d := model.DeviceSetting{Name: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return d, fmt.Errorf("%q: want key=value", p)
		}
		switch strings.TrimSpace(k) {
		case "power":
			d.Power = v
		case "color":
			d.Color = v
		case "brightness", "temp":
			n, err := strconv.Atoi(v)
			if err != nil {
				return d, fmt.Errorf("%s: %w", k, err)
			}
			if k == "temp" {
				d.Temperature = n
			} else {
				d.Brightness = n
			}
		default:
			return d, fmt.Errorf("unknown key %q", k)
		}
	}
	return d, nil
}

func runAlarmList(dirFlag string, args []string) {
	jsonOutput := len(args) == 1 && args[0] == "--json"
	var alarms []model.Alarm
	call(dirFlag, uds.CmdAlarmList, nil, &alarms)
	if jsonOutput {
		printJSON(alarms)
		return
	}
	if len(alarms) == 0 {
		fmt.Println("no alarms")
		return
	}
	for _, a := range alarms {
		state := "on"
		if !a.Enabled {
			state = "off"
		}
		fmt.Printf("%-32s %-3s %s  %-8s %-8s %s\n", a.ID, state, formatTarget(a.Target), a.Repeat, a.Mode, a.DisplayName())
	}
}

func runAlarmToggle(dirFlag string, args []string) {
	if len(args) < 1 {
		fatalf("usage: shilawake alarm toggle <id> [on|off]")
	}
	params := map[string]any{"id": args[0]}
	if len(args) > 1 {
		switch args[1] {
		case "on":
			params["enabled"] = true
		case "off":
			params["enabled"] = false
		default:
			fatalf("invalid state %q: want on or off", args[1])
		}
	}
	var a model.Alarm
	call(dirFlag, uds.CmdAlarmToggle, params, &a)
	if a.Enabled {
		fmt.Printf("%s enabled, next %s\n", a.ID, formatTarget(a.Target))
	} else {
		fmt.Printf("%s disabled\n", a.ID)
	}
}

func runAlarmUpcoming(dirFlag string, args []string) {
	if len(args) < 1 {
		fatalf("usage: shilawake alarm upcoming <id> [--count N]")
	}
	id, rest := args[0], args[1:]
	count := 5
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--count", "-n":
			count = intValue(rest, &i)
		default:
			fatalf("unknown flag: %s", rest[i])
		}
	}
	var times []time.Time
	call(dirFlag, uds.CmdAlarmUpcoming, map[string]any{"id": id, "count": count}, &times)
	for _, t := range times {
		fmt.Println(t.Local().Format("Mon 2006-01-02 15:04"))
	}
}

func runRemind(dirFlag string, args []string) {
	if len(args) < 1 {
		fatalf("usage: shilawake remind <add|list|delete> [options]")
	}
	switch args[0] {
	case "add":
		runRemindAdd(dirFlag, args[1:])
	case "list", "ls":
		var reminders []model.Reminder
		call(dirFlag, uds.CmdReminderList, nil, &reminders)
		if len(args) > 1 && args[1] == "--json" {
			printJSON(reminders)
			return
		}
		if len(reminders) == 0 {
			fmt.Println("no reminders")
			return
		}
		for _, r := range reminders {
			fmt.Printf("%-32s %s  %-8s %-6s %s\n", r.ID, formatTarget(r.Target), r.Repeat, r.Priority, r.Message)
		}
	case "delete", "rm":
		if len(args) != 2 {
			fatalf("usage: shilawake remind delete <id|all>")
		}
		var out map[string]int
		call(dirFlag, uds.CmdReminderDelete, map[string]string{"id": args[1]}, &out)
		fmt.Printf("deleted %d reminder(s)\n", out["deleted"])
	default:
		fatalf("unknown remind subcommand: %s\nusage: shilawake remind <add|list|delete>", args[0])
	}
}

func runRemindAdd(dirFlag string, args []string) {
	if len(args) < 2 {
		fatalf("usage: shilawake remind add <HH:MM> <message> [--date YYYY-MM-DD] [--repeat once|daily|mon,wed] [--priority low|normal|high]")
	}
	r := model.Reminder{
		Message:  args[1],
		Schedule: model.Schedule{Time: args[0]},
		Priority: model.PriorityNormal,
	}
	rest := args[2:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--date":
			r.Date = value(rest, &i)
		case "--repeat":
			r.Repeat = model.Repeat(value(rest, &i))
		case "--priority":
			r.Priority = model.Priority(value(rest, &i))
		default:
			fatalf("unknown flag: %s", rest[i])
		}
	}
	var added model.Reminder
	call(dirFlag, uds.CmdReminderAdd, r, &added)
	fmt.Printf("added %s at %s (%s)\n", added.ID, formatTarget(added.Target), added.Repeat)
}

func runNext(dirFlag string) {
	var next store.NextAlarm
	if err := client(dirFlag).Call(uds.CmdNextAlarm, nil, &next); err != nil {
		var detail *uds.ErrorDetail
		if errors.As(err, &detail) && detail.Code == uds.ErrCodeNotFound {
			fmt.Println("no alarm scheduled")
			return
		}
		fatalf("next: %v", err)
	}
	fmt.Printf("%s at %s (in %s)\n", next.Alarm.DisplayName(), next.At.Local().Format("Mon 2006-01-02 15:04"), next.In.Round(time.Minute))
}

func runActive(dirFlag string) {
	var st active.Status
	call(dirFlag, uds.CmdActive, nil, &st)
	if !st.Active && st.State != active.StateSnoozed {
		fmt.Println("no active alarm")
		return
	}
	fmt.Printf("%s: %s (%s) snoozes=%d attempts=%d\n", st.State, st.Label, st.Mode, st.SnoozeCount, st.Attempts)
	if st.Question != "" {
		fmt.Printf("question: %s\n", st.Question)
	}
}

func runSnooze(dirFlag string, args []string) {
	minutes := 0
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			fatalf("invalid minutes: %s", args[0])
		}
		minutes = n
	}
	var res active.SnoozeResult
	call(dirFlag, uds.CmdSnooze, map[string]int{"minutes": minutes}, &res)
	fmt.Printf("snoozed until %s (snooze %d)\n", res.ResumeAt.Local().Format("15:04"), res.Count)
}

func runDismiss(dirFlag string, args []string) {
	if len(args) != 1 {
		fatalf("usage: shilawake dismiss <answer>")
	}
	resp, err := client(dirFlag).SendCommand(uds.CmdDismiss, map[string]string{"answer": args[0]})
	if err != nil {
		fatalf("dismiss: %v", err)
	}
	if resp.Error != nil && resp.Error.Code == uds.ErrCodeWrongAnswer {
		var data struct {
			Question string `json:"question"`
		}
		fmt.Fprintln(os.Stderr, "wrong answer")
		if resp.Decode(&data) == nil && data.Question != "" {
			fmt.Fprintf(os.Stderr, "question: %s\n", data.Question)
		}
		os.Exit(2)
	}
	if err := resp.Err(); err != nil {
		fatalf("dismiss: %v", err)
	}
	fmt.Println("dismissed")
}

func runRoutine(dirFlag string, args []string) {
	if len(args) != 1 {
		fatalf("usage: shilawake routine <morning|work|sleep|movie>")
	}
	call(dirFlag, uds.CmdRoutine, map[string]string{"name": args[0]}, nil)
	fmt.Printf("routine %s started\n", args[0])
}

func runTest(dirFlag string, args []string) {
	if len(args) < 1 {
		fatalf("usage: shilawake test <sound|lights|tts|wake> [--mode gentle|normal|nuclear] [--text text]")
	}
	params := map[string]string{"kind": args[0]}
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--mode":
			params["mode"] = value(rest, &i)
		case "--text":
			params["text"] = value(rest, &i)
		default:
			fatalf("unknown flag: %s", rest[i])
		}
	}
	call(dirFlag, uds.CmdTest, params, nil)
	fmt.Printf("test %s started\n", args[0])
}

func runLights(dirFlag string, args []string) {
	const usage = "usage: shilawake lights <on|off> [--brightness N] [--color name]"
	if len(args) < 1 {
		fatalf(usage)
	}
	params := map[string]any{"action": args[0]}
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--brightness":
			params["brightness"] = intValue(rest, &i)
		case "--color":
			params["color"] = value(rest, &i)
		default:
			fatalf("unknown flag: %s\n%s", rest[i], usage)
		}
	}
	call(dirFlag, uds.CmdLights, params, nil)
	fmt.Printf("lights %s sent\n", args[0])
}

func runAC(dirFlag string, args []string) {
	const usage = "usage: shilawake ac <on|off> [--temp N]"
	if len(args) < 1 {
		fatalf(usage)
	}
	params := map[string]any{"action": args[0]}
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--temp":
			params["temp"] = intValue(rest, &i)
		default:
			fatalf("unknown flag: %s\n%s", rest[i], usage)
		}
	}
	call(dirFlag, uds.CmdAC, params, nil)
	fmt.Printf("ac %s sent\n", args[0])
}

func runConfig(dirFlag string, args []string) {
	const usage = "usage: shilawake config [show | set '<json patch>']"
	var cfg model.Config
	switch {
	case len(args) == 0 || (len(args) == 1 && args[0] == "show"):
		call(dirFlag, uds.CmdConfig, nil, &cfg)
	case len(args) == 2 && args[0] == "set":
		patch := json.RawMessage(args[1])
		if !json.Valid(patch) {
			fatalf("config set: patch is not valid JSON\n%s", usage)
		}
		call(dirFlag, uds.CmdConfigSet, patch, &cfg)
	default:
		fatalf(usage)
	}
	printJSON(cfg)
}

func runAutostart(dirFlag string, args []string) {
	if len(args) != 1 {
		fatalf("usage: shilawake autostart <on|off|status>")
	}
	dir, _ := loadDir(dirFlag)
	entry, err := autostart.NewEntry(dir)
	if err != nil {
		fatalf("autostart: %v", err)
	}
	switch args[0] {
	case "on", "off":
		changed, err := autostart.Set(entry, args[0] == "on")
		if err != nil {
			fatalf("autostart: %v", err)
		}
		if !changed {
			fmt.Printf("autostart already %s\n", args[0])
			return
		}
		fmt.Printf("autostart %s\n", args[0])
	case "status":
		if entry.IsEnabled() {
			fmt.Println("autostart on")
		} else {
			fmt.Println("autostart off")
		}
	default:
		fatalf("unknown autostart state: %s", args[0])
	}
}

// runExportICS reads alarms.yaml directly so it also works with the daemon stopped.
func runExportICS(dirFlag string, args []string) {
	dir, _ := loadDir(dirFlag)
	alarms, err := store.New(dir).ListAlarms()
	if err != nil {
		fatalf("load alarms: %v", err)
	}

	out := os.Stdout
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Create(args[0])
		if err != nil {
			fatalf("create %s: %v", args[0], err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}
	if err := calendar.Export(out, alarms, time.Now()); err != nil {
		fatalf("export: %v", err)
	}
}

func formatTarget(t *time.Time) string {
	if t == nil {
		return "-               "
	}
	return t.Local().Format("2006-01-02 15:04")
}

func printUsage() {
	fmt.Printf(`shilawake %s - alarm and reminder daemon

Usage: shilawake [--dir <data dir>] <command> [options]

Commands:
  setup                     Create the data directory and default config
  daemon [--foreground]     Run the daemon
  status [--json]           Show daemon and schedule status
  stop                      Ask the running daemon to shut down
  check                     Run one due-time check now
  alarm add <HH:MM> ...     Add an alarm
  alarm list [--json]       List alarms
  alarm delete <id|all>     Delete alarms
  alarm toggle <id> [on|off]
  alarm upcoming <id> [-n N]
  remind add <HH:MM> <msg>  Add a reminder
  remind list [--json]      List reminders
  remind delete <id|all>    Delete reminders
  next                      Show the next scheduled alarm
  active                    Show the ringing or snoozed alarm
  snooze [minutes]          Snooze the ringing alarm
  dismiss <answer>          Dismiss the ringing alarm
  routine <name>            Run morning, work, sleep or movie
  test <kind>               Test sound, lights, tts or wake
  lights <on|off>           Switch the wake lights [--brightness N] [--color c]
  ac <on|off> [--temp N]    Switch the AC unit
  config [show|set <json>]  Show or patch config.yaml
  autostart <on|off|status> Manage login autostart
  export-ics [file]         Export enabled alarms as iCalendar
  version                   Show version

The data directory defaults to $%s or ~/.shila-wake.
`, version, setup.DirEnv)
}
