// Package trigger finds due alarms and reminders on each scheduler tick and
// hands them to the wake dispatcher.
package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nugrahalabib/moltbot/internal/events"
	"github.com/nugrahalabib/moltbot/internal/logging"
	"github.com/nugrahalabib/moltbot/internal/metrics"
	"github.com/nugrahalabib/moltbot/internal/model"
	"github.com/nugrahalabib/moltbot/internal/schedule"
)

type Store interface {
	UpdateAlarms(fn func(alarms *[]model.Alarm) (bool, error)) error
	UpdateReminders(fn func(reminders *[]model.Reminder) (bool, error)) error
}

type Waker interface {
	ExecuteWake(ctx context.Context, mode model.Mode, alarm *model.Alarm) error
	Remind(ctx context.Context, r *model.Reminder) error
}

type Episodes interface {
	StartEpisode(alarm model.Alarm) string
}

// Result summarizes one tick.
type Result struct {
	Fired    []string `json:"fired"`
	Advanced []string `json:"advanced,omitempty"`
	Skipped  int      `json:"skipped"`
}

const (
	kindAlarms    = "alarms"
	kindReminders = "reminders"
)

type Detector struct {
	store    Store
	waker    Waker
	episodes Episodes
	windows  schedule.Windows
	timeout  time.Duration
	log      *logging.Logger
	events   events.Publisher

	sf         singleflight.Group
	alarmMu    sync.Mutex
	reminderMu sync.Mutex

	root       context.Context
	cancel     context.CancelFunc
	dispatches sync.WaitGroup
}

type Option func(*Detector)

func WithLogger(l *logging.Logger) Option {
	return func(d *Detector) { d.log = l }
}

func WithPublisher(p events.Publisher) Option {
	return func(d *Detector) { d.events = p }
}

func WithWindows(w schedule.Windows) Option {
	return func(d *Detector) { d.windows = w }
}

// WithDispatchTimeout bounds each asynchronous wake or reminder dispatch.
func WithDispatchTimeout(t time.Duration) Option {
	return func(d *Detector) { d.timeout = t }
}

func New(store Store, waker Waker, episodes Episodes, opts ...Option) *Detector {
	d := &Detector{
		store:    store,
		waker:    waker,
		episodes: episodes,
		windows:  schedule.DefaultWindows(),
		timeout:  2 * time.Minute,
		log:      logging.Discard(),
	}
	for _, o := range opts {
		o(d)
	}
	d.root, d.cancel = context.WithCancel(context.Background())
	return d
}

// CheckAlarms fires every enabled alarm that is due at now. Overlapping
// calls share one evaluation.
func (d *Detector) CheckAlarms(ctx context.Context, now time.Time) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	v, err, _ := d.sf.Do(kindAlarms, func() (any, error) {
		d.alarmMu.Lock()
		defer d.alarmMu.Unlock()
		return d.checkAlarms(now)
	})
	res, _ := v.(Result)
	return res, err
}

// CheckReminders is CheckAlarms for reminders.
func (d *Detector) CheckReminders(ctx context.Context, now time.Time) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	v, err, _ := d.sf.Do(kindReminders, func() (any, error) {
		d.reminderMu.Lock()
		defer d.reminderMu.Unlock()
		return d.checkReminders(now)
	})
	res, _ := v.(Result)
	return res, err
}

// guardTick converts a panic inside a tick into an error for the host to log.
func (d *Detector) guardTick(kind string, start time.Time, err *error) {
	if r := recover(); r != nil {
		d.log.Errorf("%s tick panic: %v", kind, r)
		*err = fmt.Errorf("%s tick panic: %v", kind, r)
	}
	metrics.ObserveTick(kind, time.Since(start))
}

func (d *Detector) checkAlarms(now time.Time) (res Result, err error) {
	defer d.guardTick(kindAlarms, time.Now(), &err)

	err = d.store.UpdateAlarms(func(alarms *[]model.Alarm) (bool, error) {
		list := *alarms
		return d.sweep(kindAlarms, now, len(list), &res,
			func(i int) (string, *model.Schedule) { return list[i].ID, &list[i].Schedule },
			func(i int) {
				a := list[i]
				d.dispatch("wake", a.ID, func(ctx context.Context) error {
					return d.waker.ExecuteWake(ctx, a.Mode, &a)
				})
				if d.episodes != nil {
					d.episodes.StartEpisode(a)
				}
				metrics.IncAlarmFired(string(a.Mode))
				d.publish(events.EventAlarmFired, map[string]any{"alarm_id": a.ID, "mode": string(a.Mode), "label": a.Label})
				d.log.Infof("fired alarm_id=%s mode=%s label=%q", a.ID, a.Mode, a.Label)
			},
		), nil
	})
	if err != nil {
		return res, fmt.Errorf("check alarms: %w", err)
	}
	return res, nil
}

func (d *Detector) checkReminders(now time.Time) (res Result, err error) {
	defer d.guardTick(kindReminders, time.Now(), &err)

	err = d.store.UpdateReminders(func(reminders *[]model.Reminder) (bool, error) {
		list := *reminders
		return d.sweep(kindReminders, now, len(list), &res,
			func(i int) (string, *model.Schedule) { return list[i].ID, &list[i].Schedule },
			func(i int) {
				r := list[i]
				d.dispatch("remind", r.ID, func(ctx context.Context) error {
					return d.waker.Remind(ctx, &r)
				})
				metrics.IncReminderFired(string(r.Priority))
				d.publish(events.EventReminderFired, map[string]any{"reminder_id": r.ID, "priority": string(r.Priority)})
				d.log.Infof("fired reminder_id=%s priority=%s", r.ID, r.Priority)
			},
		), nil
	})
	if err != nil {
		return res, fmt.Errorf("check reminders: %w", err)
	}
	return res, nil
}

// sweep evaluates n records in order. fire runs for each due record before
// its schedule is marked and rolled over. It reports whether any record changed.
func (d *Detector) sweep(kind string, now time.Time, n int, res *Result,
	record func(i int) (string, *model.Schedule), fire func(i int)) bool {

	res.Fired = []string{}
	changed := false
	for i := 0; i < n; i++ {
		id, s := record(i)
		if !s.Enabled {
			continue
		}
		target, err := schedule.ResolveTarget(s, now, d.windows)
		var due bool
		if err == nil {
			due, err = schedule.IsDue(s, now, d.windows)
		}
		if err != nil {
			metrics.IncRecordError(kind)
			d.log.Warnf("skipping %s id=%s: %v", kind, id, err)
			res.Skipped++
			continue
		}
		if !due {
			if d.catchUp(kind, id, s, now, target) {
				res.Advanced = append(res.Advanced, id)
				changed = true
			}
			continue
		}

		fire(i)
		res.Fired = append(res.Fired, id)

		fired := now
		s.LastTriggeredAt = &fired
		if err := schedule.Rollover(s, target, now.Location()); err != nil {
			d.log.Warnf("rollover %s id=%s: %v", kind, id, err)
			s.Enabled = false
		}
		changed = true
	}
	return changed
}

// catchUp moves a repeating record whose target fell behind the due window
// to its next occurrence without firing it.
func (d *Detector) catchUp(kind, id string, s *model.Schedule, now, target time.Time) bool {
	if s.Repeat.IsOnce() || !schedule.Missed(s, now, d.windows) {
		return false
	}
	next, err := schedule.NextOccurrence(s, now)
	if err != nil {
		return false
	}
	d.log.Warnf("missed %s id=%s target=%s next=%s", kind, id, target.Format(time.RFC3339), next.Format(time.RFC3339))
	s.Target = &next
	return true
}

// dispatch runs fn in the background under the dispatch timeout. It is
// detached from the tick's cancellation but stops when the detector closes.
func (d *Detector) dispatch(what, id string, fn func(ctx context.Context) error) {
	if d.waker == nil {
		return
	}
	d.dispatches.Add(1)
	go func() {
		defer d.dispatches.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Errorf("%s id=%s panic: %v", what, id, r)
			}
		}()
		ctx, cancel := context.WithTimeout(d.root, d.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			d.log.Warnf("%s id=%s completed with errors: %v", what, id, err)
		}
	}()
}

func (d *Detector) publish(t events.EventType, data map[string]any) {
	if d.events != nil {
		d.events.Publish(t, data)
	}
}

// Close cancels in-flight dispatches and waits for them to return.
func (d *Detector) Close() {
	d.cancel()
	d.dispatches.Wait()
}

// Wait blocks until every in-flight dispatch has returned.
func (d *Detector) Wait() {
	d.dispatches.Wait()
}
