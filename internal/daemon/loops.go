package daemon

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nugrahalabib/moltbot/internal/store"
	yamlutil "github.com/nugrahalabib/moltbot/internal/yaml"
)

// tickLoop runs the alarm or reminder check every interval. Alarm ticks
// also serve external-edit kicks from the watcher.
func (d *Daemon) tickLoop(interval time.Duration, alarms bool) {
	defer d.wg.Done()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var kick <-chan struct{}
	if alarms {
		kick = d.kick
	}
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.check(alarms, !alarms)
		case <-kick:
			d.log.With("daemon").Debugf("record files changed, checking now")
			d.check(true, true)
		}
	}
}

func (d *Daemon) check(alarms, reminders bool) {
	log := d.log.With("daemon")
	now := time.Now()
	if alarms {
		if res, err := d.detector.CheckAlarms(d.ctx, now); err != nil {
			log.Warnf("alarm check: %v", err)
		} else if len(res.Fired) > 0 {
			log.Infof("alarm tick fired=%v", res.Fired)
		}
	}
	if reminders {
		if res, err := d.detector.CheckReminders(d.ctx, now); err != nil {
			log.Warnf("reminder check: %v", err)
		} else if len(res.Fired) > 0 {
			log.Infof("reminder tick fired=%v", res.Fired)
		}
	}
}

// isRecordFile reports whether an fsnotify path is one of the record files.
func isRecordFile(name string) bool {
	if yamlutil.IsTempFile(name) {
		return false
	}
	switch filepath.Base(name) {
	case store.AlarmsFile, store.RemindersFile:
		return true
	}
	return false
}

func (d *Daemon) fsnotifyLoop() {
	defer d.wg.Done()
	log := d.log.With("daemon")
	for {
		select {
		case <-d.ctx.Done():
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !isRecordFile(event.Name) || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			log.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
			select {
			case d.kick <- struct{}{}:
			default:
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("fsnotify error=%v", err)
		}
	}
}
