// Package control implements the daemon operations shared by the Unix socket
// and the HTTP API.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/nugrahalabib/moltbot/internal/active"
	"github.com/nugrahalabib/moltbot/internal/calendar"
	"github.com/nugrahalabib/moltbot/internal/logging"
	"github.com/nugrahalabib/moltbot/internal/model"
	"github.com/nugrahalabib/moltbot/internal/setup"
	"github.com/nugrahalabib/moltbot/internal/store"
	"github.com/nugrahalabib/moltbot/internal/trigger"
	"github.com/nugrahalabib/moltbot/internal/wake"
)

type Store interface {
	AddAlarm(a model.Alarm) (model.Alarm, error)
	ListAlarms() ([]model.Alarm, error)
	GetAlarm(id string) (model.Alarm, error)
	DeleteAlarm(id string) error
	DeleteAllAlarms() (int, error)
	ToggleAlarm(id string, enabled *bool) (model.Alarm, error)
	NextAlarm(now time.Time) (store.NextAlarm, error)
	AddReminder(r model.Reminder) (model.Reminder, error)
	ListReminders() ([]model.Reminder, error)
	DeleteReminder(id string) error
	DeleteAllReminders() (int, error)
}

type Checker interface {
	CheckAlarms(ctx context.Context, now time.Time) (trigger.Result, error)
	CheckReminders(ctx context.Context, now time.Time) (trigger.Result, error)
}

type Episodes interface {
	Status() active.Status
	Snooze(minutes int) (active.SnoozeResult, error)
	Dismiss(answer int) error
}

type Actions interface {
	RunRoutine(ctx context.Context, name string) error
	Test(ctx context.Context, kind string, mode model.Mode, text string) error
	Lights(ctx context.Context, on bool, brightness int, color string) error
	SetAC(ctx context.Context, on bool, temp int) error
}

const DefaultActionTimeout = 2 * time.Minute

type Service struct {
	store    Store
	checker  Checker
	episodes Episodes
	actions  Actions
	dir      string
	log      *logging.Logger
	now      func() time.Time
	timeout  time.Duration
	started  time.Time
	shutdown func()

	cfgMu sync.RWMutex
	cfg   model.Config

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	root   context.Context
	cancel context.CancelFunc
}

type Option func(*Service)

func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithActionTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithShutdown sets the callback run by RequestShutdown.
func WithShutdown(fn func()) Option {
	return func(s *Service) { s.shutdown = fn }
}

func WithDataDir(dir string) Option {
	return func(s *Service) { s.dir = dir }
}

func New(cfg model.Config, st Store, checker Checker, episodes Episodes, actions Actions, opts ...Option) *Service {
	s := &Service{
		store:    st,
		checker:  checker,
		episodes: episodes,
		actions:  actions,
		cfg:      cfg,
		log:      logging.Discard(),
		now:      time.Now,
		timeout:  DefaultActionTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	s.started = s.now()
	s.root, s.cancel = context.WithCancel(context.Background())
	return s
}

type Report struct {
	Running       bool             `json:"running"`
	PID           int              `json:"pid"`
	DataDir       string           `json:"data_dir,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	Uptime        string           `json:"uptime"`
	Alarms        int              `json:"alarms"`
	EnabledAlarms int              `json:"enabled_alarms"`
	Reminders     int              `json:"reminders"`
	NextAlarm     *store.NextAlarm `json:"next_alarm,omitempty"`
	Active        active.Status    `json:"active"`
}

func (s *Service) Status() (Report, error) {
	now := s.now()
	r := Report{
		Running:   true,
		PID:       os.Getpid(),
		DataDir:   s.dir,
		StartedAt: s.started,
		Uptime:    now.Sub(s.started).Truncate(time.Second).String(),
		Active:    s.episodes.Status(),
	}
	alarms, err := s.store.ListAlarms()
	if err != nil {
		return r, err
	}
	r.Alarms = len(alarms)
	for _, a := range alarms {
		if a.Enabled {
			r.EnabledAlarms++
		}
	}
	reminders, err := s.store.ListReminders()
	if err != nil {
		return r, err
	}
	r.Reminders = len(reminders)
	if next, err := s.store.NextAlarm(now); err == nil {
		r.NextAlarm = &next
	}
	return r, nil
}

func (s *Service) ListAlarms() ([]model.Alarm, error) {
	return s.store.ListAlarms()
}

func (s *Service) AddAlarm(a model.Alarm) (model.Alarm, error) {
	added, err := s.store.AddAlarm(a)
	if err != nil {
		return model.Alarm{}, err
	}
	s.log.Infof("alarm added id=%s time=%s repeat=%s mode=%s", added.ID, added.Time, added.Repeat, added.Mode)
	return added, nil
}

// DeleteAlarm removes one alarm, or every alarm when id is "all".
func (s *Service) DeleteAlarm(id string) (int, error) {
	if id == "all" {
		return s.store.DeleteAllAlarms()
	}
	if err := expectKind(id, model.IDTypeAlarm); err != nil {
		return 0, err
	}
	if err := s.store.DeleteAlarm(id); err != nil {
		return 0, err
	}
	return 1, nil
}

// expectKind rejects a well-formed id of the other record type. Malformed
// ids fall through to the store and come back as not found.
func expectKind(id string, want model.IDType) error {
	kind, _, err := model.ParseID(id)
	if err == nil && kind != want {
		return fmt.Errorf("%w: %s is a %s id", ErrInvalidInput, id, kind)
	}
	return nil
}

func (s *Service) ToggleAlarm(id string, enabled *bool) (model.Alarm, error) {
	return s.store.ToggleAlarm(id, enabled)
}

func (s *Service) NextAlarm() (store.NextAlarm, error) {
	return s.store.NextAlarm(s.now())
}

// Upcoming lists the next n occurrences of one alarm.
func (s *Service) Upcoming(id string, n int) ([]time.Time, error) {
	if n <= 0 || n > 50 {
		return nil, fmt.Errorf("%w: count must be 1-50", ErrInvalidInput)
	}
	a, err := s.store.GetAlarm(id)
	if err != nil {
		return nil, err
	}
	return calendar.Upcoming(&a, s.now(), n)
}

func (s *Service) ListReminders() ([]model.Reminder, error) {
	return s.store.ListReminders()
}

func (s *Service) AddReminder(r model.Reminder) (model.Reminder, error) {
	added, err := s.store.AddReminder(r)
	if err != nil {
		return model.Reminder{}, err
	}
	s.log.Infof("reminder added id=%s time=%s priority=%s", added.ID, added.Time, added.Priority)
	return added, nil
}

// DeleteReminder removes one reminder, or every reminder when id is "all".
func (s *Service) DeleteReminder(id string) (int, error) {
	if id == "all" {
		return s.store.DeleteAllReminders()
	}
	if err := expectKind(id, model.IDTypeReminder); err != nil {
		return 0, err
	}
	if err := s.store.DeleteReminder(id); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *Service) Active() active.Status {
	return s.episodes.Status()
}

// Snooze snoozes the ringing alarm. Zero minutes selects the configured default.
func (s *Service) Snooze(minutes int) (active.SnoozeResult, error) {
	if minutes == 0 {
		minutes = s.Config().Wake.SnoozeMinutes
	}
	return s.episodes.Snooze(minutes)
}

func (s *Service) Dismiss(answer string) error {
	n, err := active.ParseAnswer(answer)
	if err != nil {
		return err
	}
	return s.episodes.Dismiss(n)
}

type CheckReport struct {
	Alarms    trigger.Result `json:"alarms"`
	Reminders trigger.Result `json:"reminders"`
}

// Check runs one alarm tick and one reminder tick immediately.
func (s *Service) Check(ctx context.Context) (CheckReport, error) {
	now := s.now()
	var rep CheckReport
	var err error
	if rep.Alarms, err = s.checker.CheckAlarms(ctx, now); err != nil {
		return rep, err
	}
	if rep.Reminders, err = s.checker.CheckReminders(ctx, now); err != nil {
		return rep, err
	}
	return rep, nil
}

// RunRoutine validates name and runs the routine in the background.
func (s *Service) RunRoutine(name string) error {
	if !wake.IsRoutine(name) {
		return fmt.Errorf("%w: %q", wake.ErrUnknownRoutine, name)
	}
	return s.async("routine "+name, func(ctx context.Context) error {
		return s.actions.RunRoutine(ctx, name)
	})
}

// RunTest validates kind and mode and runs the test in the background. An
// empty mode selects the configured default.
func (s *Service) RunTest(kind string, mode model.Mode, text string) error {
	if !wake.IsTest(kind) {
		return fmt.Errorf("%w: %q", wake.ErrUnknownTest, kind)
	}
	if mode == "" {
		mode = s.Config().Wake.DefaultMode
	}
	if !mode.IsValid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, mode)
	}
	return s.async("test "+kind, func(ctx context.Context) error {
		return s.actions.Test(ctx, kind, mode, text)
	})
}

func (s *Service) async(what string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrBusy
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Errorf("%s panicked: %v", what, r)
			}
		}()
		ctx, cancel := context.WithTimeout(s.root, s.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Warnf("%s: %v", what, err)
		}
	}()
	return nil
}

const (
	DefaultBrightness = 100
	DefaultLightColor = "white"
	DefaultACTemp     = 24
)

// switchAction parses an on/off action.
func switchAction(action string) (bool, error) {
	switch action {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("%w: action must be on or off, got %q", ErrInvalidInput, action)
}

func (s *Service) devicesEnabled() error {
	if !s.Config().Devices.Enabled {
		return fmt.Errorf("%w: devices are disabled in config", ErrInvalidInput)
	}
	return nil
}

// Lights switches the wake lights in the background. Zero brightness and an
// empty color select full white.
func (s *Service) Lights(action string, brightness int, color string) error {
	on, err := switchAction(action)
	if err != nil {
		return err
	}
	if err := s.devicesEnabled(); err != nil {
		return err
	}
	if brightness == 0 {
		brightness = DefaultBrightness
	}
	if brightness < 1 || brightness > 100 {
		return fmt.Errorf("%w: brightness must be 1-100", ErrInvalidInput)
	}
	if color == "" {
		color = DefaultLightColor
	}
	return s.async("lights "+action, func(ctx context.Context) error {
		return s.actions.Lights(ctx, on, brightness, color)
	})
}

// AC switches the configured AC unit in the background. Zero temp selects
// DefaultACTemp.
func (s *Service) AC(action string, temp int) error {
	on, err := switchAction(action)
	if err != nil {
		return err
	}
	if err := s.devicesEnabled(); err != nil {
		return err
	}
	if s.Config().Devices.ACDevice == "" {
		return fmt.Errorf("%w: no ac_device configured", ErrInvalidInput)
	}
	if temp == 0 {
		temp = DefaultACTemp
	}
	if temp < 16 || temp > 30 {
		return fmt.Errorf("%w: temp must be 16-30", ErrInvalidInput)
	}
	return s.async("ac "+action, func(ctx context.Context) error {
		return s.actions.SetAC(ctx, on, temp)
	})
}

func (s *Service) Config() model.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// UpdateConfig merges a JSON patch into config.yaml and returns the result.
// Snooze and test defaults follow the new values at once; the scheduler,
// devices and wake loops pick them up on the next daemon start.
func (s *Service) UpdateConfig(patch []byte) (model.Config, error) {
	if s.dir == "" {
		return model.Config{}, fmt.Errorf("%w: no data directory", ErrInvalidInput)
	}
	if len(bytes.TrimSpace(patch)) == 0 {
		return model.Config{}, fmt.Errorf("%w: empty config patch", ErrInvalidInput)
	}

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	next, err := setup.LoadConfig(s.dir)
	if err != nil {
		return model.Config{}, err
	}
	dec := json.NewDecoder(bytes.NewReader(patch))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&next); err != nil {
		return model.Config{}, fmt.Errorf("%w: config patch: %v", ErrInvalidInput, err)
	}
	if err := setup.SaveConfig(s.dir, next); err != nil {
		return model.Config{}, err
	}
	s.cfg = next
	s.log.Infof("config updated dir=%s", s.dir)
	return next, nil
}

// ExportICS writes the enabled alarms as an iCalendar document.
func (s *Service) ExportICS(w io.Writer) error {
	alarms, err := s.store.ListAlarms()
	if err != nil {
		return err
	}
	return calendar.Export(w, alarms, s.now())
}

// RequestShutdown asks the host to stop. It returns immediately.
func (s *Service) RequestShutdown() error {
	if s.shutdown == nil {
		return fmt.Errorf("%w: shutdown not supported", ErrInvalidInput)
	}
	go s.shutdown()
	return nil
}

// Close cancels background routines and tests and waits for them.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
