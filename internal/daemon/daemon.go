// Package daemon hosts the scheduler ticks, the active alarm coordinator and
// the control surfaces in one long-running process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/nugrahalabib/moltbot/internal/active"
	"github.com/nugrahalabib/moltbot/internal/control"
	"github.com/nugrahalabib/moltbot/internal/events"
	"github.com/nugrahalabib/moltbot/internal/httpapi"
	"github.com/nugrahalabib/moltbot/internal/lock"
	"github.com/nugrahalabib/moltbot/internal/logging"
	"github.com/nugrahalabib/moltbot/internal/metrics"
	"github.com/nugrahalabib/moltbot/internal/model"
	"github.com/nugrahalabib/moltbot/internal/status"
	"github.com/nugrahalabib/moltbot/internal/store"
	"github.com/nugrahalabib/moltbot/internal/trigger"
	"github.com/nugrahalabib/moltbot/internal/uds"
	"github.com/nugrahalabib/moltbot/internal/wake"
)

// ErrAlreadyRunning is returned by Start when another daemon holds the lock.
var ErrAlreadyRunning = errors.New("daemon already running")

const (
	auditFile   = "audit.jsonl"
	busBuffer   = 256
	kickBacklog = 1
)

type Daemon struct {
	dir     string
	cfg     model.Config
	log     *logging.Logger
	logFile io.Closer

	deps       Deps
	customDeps bool

	fileLock *lock.FileLock
	server   *uds.Server
	watcher  *fsnotify.Watcher
	http     *http.Server

	bus         *events.Bus
	audit       *events.AuditLogger
	detachAudit func()
	store       *store.Store
	dispatcher  *wake.Dispatcher
	coord       *active.Coordinator
	detector    *trigger.Detector
	svc         *control.Service

	kick     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown sync.Once
	stopped  chan struct{}
}

type Option func(*Daemon)

// WithLogWriter replaces the daemon log destination.
func WithLogWriter(w io.Writer) Option {
	return func(d *Daemon) { d.log = logging.New(w, logging.ParseLevel(d.cfg.Logging.Level)) }
}

// WithDeps overrides the side-effect collaborators built from the config.
func WithDeps(deps Deps) Option {
	return func(d *Daemon) { d.deps, d.customDeps = deps, true }
}

// New opens logs/daemon.log and prepares a daemon for dir. With foreground
// set the log is mirrored to stderr.
func New(dir string, cfg model.Config, foreground bool, opts ...Option) (*Daemon, error) {
	logPath := filepath.Join(dir, "logs", "daemon.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open daemon log: %w", err)
	}
	var w io.Writer = logFile
	if foreground {
		w = io.MultiWriter(logFile, os.Stderr)
	}
	d := newDaemon(dir, cfg, w, opts...)
	d.logFile = logFile
	return d, nil
}

func newDaemon(dir string, cfg model.Config, w io.Writer, opts ...Option) *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		dir:      dir,
		cfg:      cfg,
		log:      logging.New(w, logging.ParseLevel(cfg.Logging.Level)),
		fileLock: lock.NewPIDLock(status.LockPath(dir)),
		kick:     make(chan struct{}, kickBacklog),
		ctx:      ctx,
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(d)
	}
	if !d.customDeps {
		d.deps = BuildDeps(dir, cfg, d.log)
	}
	return d
}

// Run starts the daemon and blocks until a signal or a shutdown request.
func (d *Daemon) Run() error {
	if err := d.Start(); err != nil {
		return err
	}
	d.waitSignals()
	return nil
}

// Start acquires the single-instance lock, wires the engine and starts every
// loop and listener.
func (d *Daemon) Start() error {
	log := d.log.With("daemon")
	if err := os.MkdirAll(filepath.Join(d.dir, "locks"), 0755); err != nil {
		return fmt.Errorf("ensure locks dir: %w", err)
	}
	if err := d.fileLock.TryLock(); err != nil {
		if errors.Is(err, lock.ErrLocked) {
			pid, _ := lock.ReadPID(status.LockPath(d.dir))
			return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
		}
		return fmt.Errorf("daemon lock: %w", err)
	}
	log.Infof("daemon starting pid=%d dir=%s", os.Getpid(), d.dir)

	metrics.Init()
	d.wire()

	d.registerHandlers()
	if err := d.server.Start(); err != nil {
		d.teardown()
		d.cleanup()
		return fmt.Errorf("start UDS server: %w", err)
	}
	log.Infof("UDS server listening on %s", status.SocketPath(d.dir))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warnf("fsnotify unavailable, relying on ticks: %v", err)
	} else if err := watcher.Add(d.dir); err != nil {
		log.Warnf("watch %s: %v", d.dir, err)
		_ = watcher.Close()
	} else {
		d.watcher = watcher
		d.wg.Add(1)
		go d.fsnotifyLoop()
	}

	if d.cfg.HTTP.Enabled {
		d.startHTTP()
	}

	d.wg.Add(2)
	go d.tickLoop(d.cfg.Scheduler.AlarmInterval(), true)
	go d.tickLoop(d.cfg.Scheduler.ReminderInterval(), false)

	d.check(true, true)
	log.Infof("daemon ready")
	return nil
}

func (d *Daemon) startHTTP() {
	log := d.log.With("http")
	ln, err := net.Listen("tcp", d.cfg.HTTP.Listen)
	if err != nil {
		log.Errorf("listen %s: %v (http api disabled)", d.cfg.HTTP.Listen, err)
		return
	}
	d.http = httpapi.NewServer(d.cfg.HTTP.Listen, d.svc, log)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("serve: %v", err)
		}
	}()
	log.Infof("http api listening on %s", ln.Addr())
}

// Done is closed once Shutdown has finished.
func (d *Daemon) Done() <-chan struct{} {
	return d.stopped
}

func (d *Daemon) waitSignals() {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		d.log.With("daemon").Infof("received signal=%s, initiating graceful shutdown", sig)
		go func() {
			<-sigCh
			d.log.With("daemon").Warnf("received second signal, forcing exit")
			os.Exit(1)
		}()
		d.Shutdown()
	case <-d.ctx.Done():
	}
	<-d.stopped
}

// Shutdown stops producers, drains in-flight work and releases the lock. It
// is idempotent.
func (d *Daemon) Shutdown() {
	d.shutdown.Do(func() {
		log := d.log.With("daemon")
		log.Infof("shutdown started")
		d.cancel()

		if d.watcher != nil {
			_ = d.watcher.Close()
		}
		if d.server != nil {
			_ = d.server.Stop()
		}
		timeout := time.Duration(d.cfg.Daemon.ShutdownTimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		if d.http != nil {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			if err := d.http.Shutdown(ctx); err != nil {
				log.Warnf("http shutdown: %v", err)
			}
			cancel()
		}

		done := make(chan struct{})
		go func() {
			d.teardown()
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			log.Infof("all goroutines drained")
		case <-time.After(timeout):
			log.Warnf("shutdown timeout after %s, some operations may be incomplete", timeout)
		}

		d.cleanup()
		log.Infof("daemon stopped")
		if d.logFile != nil {
			_ = d.logFile.Close()
		}
		close(d.stopped)
	})
}

// teardown stops the engine from the outside in.
func (d *Daemon) teardown() {
	if d.svc != nil {
		d.svc.Close()
	}
	if d.detector != nil {
		d.detector.Close()
	}
	if d.coord != nil {
		d.coord.Close()
	}
	if d.detachAudit != nil {
		d.detachAudit()
	}
	if d.bus != nil {
		d.bus.Close()
	}
	if d.audit != nil {
		_ = d.audit.Close()
	}
}

func (d *Daemon) cleanup() {
	_ = d.fileLock.Unlock()
}
