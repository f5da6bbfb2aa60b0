package daemon

import (
	"path/filepath"
	"time"

	"github.com/nugrahalabib/moltbot/internal/active"
	"github.com/nugrahalabib/moltbot/internal/audio"
	"github.com/nugrahalabib/moltbot/internal/challenge"
	"github.com/nugrahalabib/moltbot/internal/chat"
	"github.com/nugrahalabib/moltbot/internal/control"
	"github.com/nugrahalabib/moltbot/internal/events"
	"github.com/nugrahalabib/moltbot/internal/logging"
	"github.com/nugrahalabib/moltbot/internal/model"
	"github.com/nugrahalabib/moltbot/internal/notify"
	"github.com/nugrahalabib/moltbot/internal/schedule"
	"github.com/nugrahalabib/moltbot/internal/status"
	"github.com/nugrahalabib/moltbot/internal/store"
	"github.com/nugrahalabib/moltbot/internal/trigger"
	"github.com/nugrahalabib/moltbot/internal/uds"
	"github.com/nugrahalabib/moltbot/internal/wake"
)

// Deps are the side-effect collaborators shared by the wake dispatcher and
// the active alarm coordinator. A nil field disables that side effect.
type Deps struct {
	Devices   wake.Devices
	Sound     wake.Sound
	Speaker   wake.Speaker
	Messenger wake.Messenger
	Notifier  wake.Notifier
	Weather   wake.Weather
	Presenter active.Presenter
}

// BuildDeps creates the command, audio and webhook collaborators enabled in cfg.
func BuildDeps(dir string, cfg model.Config, log *logging.Logger) Deps {
	soundsDir := cfg.Wake.SoundsDir
	if !filepath.IsAbs(soundsDir) {
		soundsDir = filepath.Join(dir, soundsDir)
	}
	deps := Deps{
		Sound:     audio.New(soundsDir, cfg.Wake.Volume),
		Notifier:  notify.New(notify.ExecRunner),
		Presenter: wake.NewBrowserPresenter(notify.ExecRunner, cfg.Wake.PresentationURL),
		Messenger: wake.LogMessenger{Log: log.With("chat")},
	}
	if cfg.TTS.Enabled {
		deps.Speaker = wake.NewCommandSpeaker(notify.ExecRunner, cfg.TTS.Command, time.Duration(cfg.TTS.TimeoutSec)*time.Second)
	}
	if cfg.Devices.Enabled {
		timeout := time.Duration(cfg.Devices.TimeoutSec) * time.Second
		deps.Devices = wake.NewCommandDevices(notify.ExecRunner, cfg.Devices.Command, timeout)
		if len(cfg.Devices.WeatherCommand) > 0 {
			deps.Weather = wake.NewCommandWeather(notify.ExecRunner, cfg.Devices.WeatherCommand, timeout)
		}
	}
	if cfg.Chat.Enabled {
		deps.Messenger = chat.NewWebhookMessenger(cfg.Chat.WebhookURL, cfg.Chat.Target)
	}
	return deps
}

// wire builds the engine: store, dispatcher, coordinator, detector and the
// control service, all publishing to one event bus that feeds the audit log.
func (d *Daemon) wire() {
	d.bus = events.NewBus(busBuffer)
	audit, err := events.NewAuditLogger(filepath.Join(d.dir, "logs", auditFile), events.DefaultMaxLogSize)
	if err != nil {
		d.log.With("daemon").Warnf("audit log disabled: %v", err)
	} else {
		d.audit = audit
		d.detachAudit = audit.Attach(d.bus)
	}

	d.store = store.New(d.dir,
		store.WithLogger(d.log.With("store")),
		store.WithPublisher(d.bus),
		store.WithDefaultMode(d.cfg.Wake.DefaultMode),
	)

	d.dispatcher = wake.New(d.cfg, wake.Deps{
		Devices:   d.deps.Devices,
		Sound:     d.deps.Sound,
		Speaker:   d.deps.Speaker,
		Messenger: d.deps.Messenger,
		Notifier:  d.deps.Notifier,
		Weather:   d.deps.Weather,
	}, wake.WithLogger(d.log.With("wake")))

	gen := challenge.New(d.cfg.Wake.ChallengeMin, d.cfg.Wake.ChallengeMax, nil)
	d.coord = active.New(active.ConfigFrom(d.cfg), active.Deps{
		Sound:     d.deps.Sound,
		Speaker:   d.deps.Speaker,
		Messenger: d.deps.Messenger,
		Presenter: d.deps.Presenter,
		Waker:     d.dispatcher,
	}, gen,
		active.WithLogger(d.log.With("active")),
		active.WithPublisher(d.bus),
	)

	d.detector = trigger.New(d.store, d.dispatcher, d.coord,
		trigger.WithLogger(d.log.With("trigger")),
		trigger.WithPublisher(d.bus),
		trigger.WithWindows(schedule.Windows{
			Due:      d.cfg.Scheduler.DueWindow(),
			Suppress: d.cfg.Scheduler.SuppressWindow(),
		}),
		trigger.WithDispatchTimeout(d.cfg.Scheduler.DispatchTimeout()),
	)

	d.svc = control.New(d.cfg, d.store, d.detector, d.coord, d.dispatcher,
		control.WithLogger(d.log.With("control")),
		control.WithDataDir(d.dir),
		control.WithActionTimeout(d.cfg.Scheduler.DispatchTimeout()),
		control.WithShutdown(d.Shutdown),
	)

	d.server = uds.NewServer(status.SocketPath(d.dir), d.log.With("uds"))
}
