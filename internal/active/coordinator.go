// Package active owns the lifecycle of a ringing alarm: the sound,
// escalation and presentation loops, the dismiss challenge and snoozing.
package active

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nugrahalabib/moltbot/internal/challenge"
	"github.com/nugrahalabib/moltbot/internal/events"
	"github.com/nugrahalabib/moltbot/internal/logging"
	"github.com/nugrahalabib/moltbot/internal/metrics"
	"github.com/nugrahalabib/moltbot/internal/model"
)

type State string

const (
	StateIdle    State = "idle"
	StateRinging State = "ringing"
	StateSnoozed State = "snoozed"
)

type Sound interface {
	Play(ctx context.Context, ref string) error
}

type Speaker interface {
	Announce(ctx context.Context, text string) error
}

type Messenger interface {
	Notify(ctx context.Context, channel, message string) error
}

type Presenter interface {
	Open(ctx context.Context) error
}

// Waker replays the wake sequence when a snoozed alarm resumes.
type Waker interface {
	ExecuteWake(ctx context.Context, mode model.Mode, alarm *model.Alarm) error
}

// Timer is the part of *time.Timer the coordinator needs.
type Timer interface {
	Stop() bool
}

type Deps struct {
	Sound     Sound
	Speaker   Speaker
	Messenger Messenger
	Presenter Presenter
	Waker     Waker
}

type Config struct {
	SnoozeOptions      []int
	MaxSnooze          int
	Sounds             map[string]string
	SoundPause         time.Duration
	WatchdogGrace      time.Duration
	WatchdogInterval   time.Duration
	EscalationInterval time.Duration
	ResumeTimeout      time.Duration
}

const defaultEscalationText = "Alarm masih berbunyi! Bangun sekarang!"

func ConfigFrom(cfg model.Config) Config {
	w := cfg.Wake
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return Config{
		SnoozeOptions:      w.SnoozeOptions,
		MaxSnooze:          w.MaxSnooze,
		Sounds:             w.Sounds,
		SoundPause:         ms(w.SoundPauseMs),
		WatchdogGrace:      time.Duration(w.WatchdogGraceSec) * time.Second,
		WatchdogInterval:   time.Duration(w.WatchdogIntervalSec) * time.Second,
		EscalationInterval: time.Duration(w.EscalationIntervalSec) * time.Second,
		ResumeTimeout:      cfg.Scheduler.DispatchTimeout(),
	}
}

type episode struct {
	id          string
	alarm       model.Alarm
	startedAt   time.Time
	snoozeCount int
	attempts    int
	question    string
	answer      int
	cancel      context.CancelFunc
	wg          *sync.WaitGroup
	timer       Timer
	resumeAt    time.Time
}

// stop cancels the episode's loops and pending resume. The caller waits on
// the returned group outside the coordinator lock.
func (ep *episode) stop() *sync.WaitGroup {
	if ep.timer != nil {
		ep.timer.Stop()
		ep.timer = nil
	}
	if ep.cancel != nil {
		ep.cancel()
	}
	return ep.wg
}

type Coordinator struct {
	cfg    Config
	deps   Deps
	gen    *challenge.Generator
	log    *logging.Logger
	events events.Publisher

	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	afterFunc func(d time.Duration, f func()) Timer

	mu         sync.Mutex
	state      State
	ep         *episode
	generation uint64
	closed     bool
	resumes    sync.WaitGroup
}

type Option func(*Coordinator)

func WithLogger(l *logging.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) { c.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) { c.sleep = fn }
}

// WithAfterFunc replaces time.AfterFunc for the snooze resume timer.
func WithAfterFunc(fn func(d time.Duration, f func()) Timer) Option {
	return func(c *Coordinator) { c.afterFunc = fn }
}

func New(cfg Config, deps Deps, gen *challenge.Generator, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		deps:      deps,
		gen:       gen,
		log:       logging.Discard(),
		state:     StateIdle,
		now:       time.Now,
		sleep:     sleepCtx,
		afterFunc: afterFunc,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func afterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Coordinator) publish(t events.EventType, data map[string]any) {
	if c.events != nil {
		c.events.Publish(t, data)
	}
}

// StartEpisode makes alarm the ringing episode, superseding any episode that
// is ringing or snoozed. It returns the new episode id.
func (c *Coordinator) StartEpisode(alarm model.Alarm) string {
	return c.begin(alarm, 0, false, 0)
}

// begin installs a new episode. For a resume, gen must still be the current
// generation and the coordinator must still be snoozed.
func (c *Coordinator) begin(alarm model.Alarm, snoozeCount int, resume bool, gen uint64) string {
	c.mu.Lock()
	if c.closed || (resume && (c.generation != gen || c.state != StateSnoozed)) {
		c.mu.Unlock()
		return ""
	}
	var prev *sync.WaitGroup
	if c.ep != nil {
		prev = c.ep.stop()
	}

	c.generation++
	ch := c.gen.Generate()
	ctx, cancel := context.WithCancel(context.Background())
	ep := &episode{
		id:          uuid.NewString(),
		alarm:       alarm,
		startedAt:   c.now(),
		snoozeCount: snoozeCount,
		question:    ch.Question,
		answer:      ch.Answer,
		cancel:      cancel,
		wg:          &sync.WaitGroup{},
	}
	c.ep = ep
	c.state = StateRinging

	esc, escalate := alarm.Escalation()
	loops := []func(context.Context){c.watchdogLoop}
	if c.deps.Sound != nil {
		ref := alarm.Sound
		if ref == "" {
			ref = c.cfg.Sounds[string(alarm.Mode)]
		}
		loops = append(loops, func(ctx context.Context) { c.soundLoop(ctx, ref) })
	}
	if escalate {
		loops = append(loops, func(ctx context.Context) { c.escalationLoop(ctx, esc) })
	}
	ep.wg.Add(len(loops))
	c.mu.Unlock()

	if prev != nil {
		prev.Wait()
	}
	for _, loop := range loops {
		go func() {
			defer ep.wg.Done()
			loop(ctx)
		}()
	}

	metrics.SetActiveAlarm(true)
	evt := events.EventEpisodeStarted
	if resume {
		evt = events.EventAlarmResumed
	}
	c.publish(evt, map[string]any{
		"alarm_id":     alarm.ID,
		"episode_id":   ep.id,
		"mode":         string(alarm.Mode),
		"snooze_count": snoozeCount,
	})
	c.log.Infof("episode started episode_id=%s alarm_id=%s resume=%t snooze_count=%d", ep.id, alarm.ID, resume, snoozeCount)
	return ep.id
}

// guard runs one loop iteration, turning a panic into a logged error.
func (c *Coordinator) guard(component string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncSideEffectError(component)
			c.log.Errorf("%s panic: %v", component, r)
		}
	}()
	if err := fn(); err != nil {
		metrics.IncSideEffectError(component)
		c.log.Warnf("%s failed: %v", component, err)
	}
}

func (c *Coordinator) soundLoop(ctx context.Context, ref string) {
	for ctx.Err() == nil {
		c.guard("sound", func() error { return c.deps.Sound.Play(ctx, ref) })
		if c.sleep(ctx, c.cfg.SoundPause) != nil {
			return
		}
	}
}

func (c *Coordinator) escalationLoop(ctx context.Context, act model.Action) {
	interval := c.cfg.EscalationInterval
	if act.IntervalSec > 0 {
		interval = time.Duration(act.IntervalSec) * time.Second
	}
	text := act.Text
	if text == "" {
		text = defaultEscalationText
	}
	channel := act.Channel
	if channel == "" {
		channel = "wake"
	}
	for {
		if c.sleep(ctx, interval) != nil {
			return
		}
		if c.deps.Speaker != nil {
			c.guard("tts", func() error { return c.deps.Speaker.Announce(ctx, text) })
		}
		if c.deps.Messenger != nil {
			c.guard("chat", func() error { return c.deps.Messenger.Notify(ctx, channel, text) })
		}
	}
}

// watchdogLoop opens the presentation once, then reopens it periodically
// after a grace period in case it was closed without dismissing.
func (c *Coordinator) watchdogLoop(ctx context.Context) {
	if c.deps.Presenter == nil {
		return
	}
	open := func() error { return c.deps.Presenter.Open(ctx) }
	c.guard("presenter", open)
	if c.sleep(ctx, c.cfg.WatchdogGrace) != nil {
		return
	}
	for ctx.Err() == nil {
		c.guard("presenter", open)
		if c.sleep(ctx, c.cfg.WatchdogInterval) != nil {
			return
		}
	}
}

type SnoozeResult struct {
	EpisodeID string    `json:"episode_id"`
	ResumeAt  time.Time `json:"resume_at"`
	Count     int       `json:"snooze_count"`
}

// Snooze silences the ringing episode and arms a single resume after minutes.
func (c *Coordinator) Snooze(minutes int) (SnoozeResult, error) {
	if !slices.Contains(c.cfg.SnoozeOptions, minutes) {
		return SnoozeResult{}, fmt.Errorf("%w: %d minutes, allowed %v", ErrInvalidSnooze, minutes, c.cfg.SnoozeOptions)
	}

	c.mu.Lock()
	if c.state != StateRinging || c.ep == nil {
		c.mu.Unlock()
		return SnoozeResult{}, ErrNoActiveAlarm
	}
	ep := c.ep
	if c.cfg.MaxSnooze > 0 && ep.snoozeCount >= c.cfg.MaxSnooze {
		c.mu.Unlock()
		return SnoozeResult{}, fmt.Errorf("%w: %d of %d", ErrSnoozeLimit, ep.snoozeCount, c.cfg.MaxSnooze)
	}
	wg := ep.stop()
	ep.snoozeCount++
	d := time.Duration(minutes) * time.Minute
	ep.resumeAt = c.now().Add(d)
	c.state = StateSnoozed
	gen := c.generation
	ep.timer = c.afterFunc(d, func() { c.resume(gen) })
	res := SnoozeResult{EpisodeID: ep.id, ResumeAt: ep.resumeAt, Count: ep.snoozeCount}
	alarmID := ep.alarm.ID
	c.mu.Unlock()

	wg.Wait()
	metrics.IncSnooze()
	metrics.SetActiveAlarm(false)
	c.publish(events.EventAlarmSnoozed, map[string]any{
		"alarm_id":     alarmID,
		"episode_id":   res.EpisodeID,
		"minutes":      minutes,
		"snooze_count": res.Count,
		"resume_at":    res.ResumeAt.Format(time.RFC3339),
	})
	c.log.Infof("snoozed alarm_id=%s minutes=%d count=%d", alarmID, minutes, res.Count)
	return res, nil
}

// resume is the snooze timer callback. A timer whose generation has been
// superseded does nothing.
func (c *Coordinator) resume(gen uint64) {
	c.mu.Lock()
	if c.closed || c.generation != gen || c.state != StateSnoozed || c.ep == nil {
		c.mu.Unlock()
		return
	}
	c.ep.timer = nil
	alarm := c.ep.alarm
	count := c.ep.snoozeCount
	c.resumes.Add(1)
	c.mu.Unlock()

	// A StartEpisode or Close racing this timer wins; the wake sequence only
	// replays for a resume that actually installed its episode.
	if id := c.begin(alarm, count, true, gen); id == "" || c.deps.Waker == nil {
		c.resumes.Done()
		return
	}
	go func() {
		defer c.resumes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ResumeTimeout)
		defer cancel()
		if err := c.deps.Waker.ExecuteWake(ctx, alarm.Mode, &alarm); err != nil {
			c.log.Warnf("resume wake alarm_id=%s: %v", alarm.ID, err)
		}
	}()
}

// Dismiss stops the ringing episode if answer solves its challenge. A wrong
// answer keeps it ringing and replaces the question.
func (c *Coordinator) Dismiss(answer int) error {
	c.mu.Lock()
	if c.state != StateRinging || c.ep == nil {
		c.mu.Unlock()
		return ErrNoActiveAlarm
	}
	ep := c.ep
	ep.attempts++
	if answer != ep.answer {
		ch := c.gen.Next(ep.question)
		ep.question, ep.answer = ch.Question, ch.Answer
		q, attempts := ep.question, ep.attempts
		c.mu.Unlock()

		metrics.IncDismissAttempt("wrong")
		c.publish(events.EventDismissRejected, map[string]any{
			"alarm_id":   ep.alarm.ID,
			"episode_id": ep.id,
			"attempts":   attempts,
		})
		return &WrongAnswerError{Question: q}
	}

	wg := ep.stop()
	c.ep = nil
	c.state = StateIdle
	c.generation++
	c.mu.Unlock()

	wg.Wait()
	metrics.IncDismissAttempt("correct")
	metrics.SetActiveAlarm(false)
	c.publish(events.EventAlarmDismissed, map[string]any{
		"alarm_id":     ep.alarm.ID,
		"episode_id":   ep.id,
		"attempts":     ep.attempts,
		"snooze_count": ep.snoozeCount,
	})
	c.log.Infof("dismissed alarm_id=%s attempts=%d", ep.alarm.ID, ep.attempts)
	return nil
}

// ParseAnswer converts user input into a dismiss answer.
func ParseAnswer(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAnswer, s)
	}
	return n, nil
}

type Status struct {
	Active      bool       `json:"active"`
	State       State      `json:"state"`
	EpisodeID   string     `json:"episode_id,omitempty"`
	AlarmID     string     `json:"alarm_id,omitempty"`
	Label       string     `json:"label,omitempty"`
	Mode        model.Mode `json:"mode,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	SnoozeCount int        `json:"snooze_count"`
	Attempts    int        `json:"attempts"`
	Question    string     `json:"question,omitempty"`
	ResumeAt    *time.Time `json:"resume_at,omitempty"`
}

// MarshalJSON renders an idle status as just {"active":false}.
func (s Status) MarshalJSON() ([]byte, error) {
	if s.Active || s.State == StateRinging || s.State == StateSnoozed {
		type plain Status
		return json.Marshal(plain(s))
	}
	return []byte(`{"active":false}`), nil
}

// Status reports the current episode without its answer.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{State: c.state}
	if c.ep == nil || c.state == StateIdle {
		st.State = StateIdle
		return st
	}
	ep := c.ep
	started := ep.startedAt
	st.Active = c.state == StateRinging
	st.EpisodeID = ep.id
	st.AlarmID = ep.alarm.ID
	st.Label = ep.alarm.DisplayName()
	st.Mode = ep.alarm.Mode
	st.StartedAt = &started
	st.SnoozeCount = ep.snoozeCount
	st.Attempts = ep.attempts
	if c.state == StateRinging {
		st.Question = ep.question
	}
	if c.state == StateSnoozed {
		resumeAt := ep.resumeAt
		st.ResumeAt = &resumeAt
	}
	return st
}

// Close stops any episode and waits for its loops and any in-flight resume.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var wg *sync.WaitGroup
	if c.ep != nil {
		wg = c.ep.stop()
	}
	c.ep = nil
	c.state = StateIdle
	c.generation++
	c.mu.Unlock()

	if wg != nil {
		wg.Wait()
	}
	c.resumes.Wait()
	metrics.SetActiveAlarm(false)
}
