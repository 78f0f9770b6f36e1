package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"clearwatch/internal/barcode"
	"clearwatch/internal/config"
	"clearwatch/internal/events"
	"clearwatch/internal/logging"
	"clearwatch/internal/monitor"
	"clearwatch/internal/notifications"
	"clearwatch/internal/orchestrator"
	"clearwatch/internal/scheduler"
	"clearwatch/internal/source"
	"clearwatch/internal/status"
	"clearwatch/internal/store"
)

// Daemon owns the long-running services and enforces single-instance
// execution via a lock file.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	scheduler *scheduler.Scheduler
	monitor   *monitor.Monitor
	bus       *events.Bus
	notifier  notifications.Service
	closers   []func()

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Status represents daemon runtime information.
type Status struct {
	Running          bool
	SchedulerMode    scheduler.Mode
	SchedulerRunning bool
	DatabasePath     string
	LockFilePath     string
}

// New constructs a daemon from already wired components.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	st *store.Store,
	sched *scheduler.Scheduler,
	mon *monitor.Monitor,
	bus *events.Bus,
	notifier notifications.Service,
) (*Daemon, error) {
	if cfg == nil || logger == nil || st == nil || sched == nil || mon == nil || bus == nil {
		return nil, errors.New("daemon requires config, logger, store, scheduler, monitor, and event bus")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "clearwatch.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logging.WithComponent(logger, "daemon"),
		store:     st,
		scheduler: sched,
		monitor:   mon,
		bus:       bus,
		notifier:  notifier,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Build wires the full production dependency graph: tracking store, external
// declaration source, portal clients, notifier, scheduler, and monitor.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open tracking store: %w", err)
	}

	health, err := st.CheckHealth(ctx)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("tracking database unhealthy: %w", err)
	}
	if len(health.MissingTables) > 0 {
		_ = st.Close()
		return nil, fmt.Errorf("tracking database missing tables: %v", health.MissingTables)
	}

	src, err := source.NewPostgres(ctx, cfg, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	retriever, err := barcode.NewPortalRetriever(cfg, logger)
	if err != nil {
		src.Close()
		_ = st.Close()
		return nil, err
	}
	primary, err := status.NewPortalSource(cfg)
	if err != nil {
		src.Close()
		_ = st.Close()
		return nil, err
	}
	secondary, err := status.NewDatabaseSource(ctx, cfg)
	if err != nil {
		src.Close()
		_ = st.Close()
		return nil, err
	}

	bus := events.NewBus(128)
	notifier := notifications.NewService(cfg)
	orch := orchestrator.New(cfg, st, src, retriever, barcode.NewFileSaver(cfg.Paths.OutputDir), bus, notifier, logger)
	mon := monitor.New(cfg, st, primary, secondary, notifier, bus, logger)
	sched := scheduler.New(
		scheduler.ModeFromConfig(cfg),
		time.Duration(cfg.Scheduler.IntervalMinutes)*time.Minute,
		orch,
		logger,
	)

	d, err := New(cfg, logger, st, sched, mon, bus, notifier)
	if err != nil {
		secondary.Close()
		src.Close()
		bus.Close()
		_ = st.Close()
		return nil, err
	}
	d.closers = append(d.closers, src.Close, secondary.Close, bus.Close)
	return d, nil
}

// Start acquires the instance lock, prunes expired tracking records, and
// launches the background loops.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another clearwatch instance is already running")
	}

	if pruned, err := d.store.PruneOlderThan(ctx, d.cfg.Tracking.RetentionDays); err != nil {
		d.logger.Warn("retention prune failed", logging.Error(err))
	} else if pruned > 0 {
		d.logger.Info("retention prune", logging.Int64("removed", pruned))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})

	d.scheduler.Start()
	go d.monitorLoop(runCtx)

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("lock", d.lockPath),
		logging.String("mode", string(d.scheduler.Mode())))
	return nil
}

// Stop halts background loops and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.scheduler.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.done != nil {
		<-d.done
		d.done = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close releases every resource held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	for _, closeFn := range d.closers {
		closeFn()
	}
	d.closers = nil
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// monitorLoop checks pending declarations once at startup and then on the
// configured interval.
func (d *Daemon) monitorLoop(ctx context.Context) {
	defer close(d.done)

	interval := time.Duration(d.cfg.Tracking.CheckIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	if _, err := d.monitor.CheckNow(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Warn("startup status check failed", logging.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.monitor.CheckNow(ctx, nil); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Warn("status check failed", logging.Error(err))
			}
		}
	}
}

// RunPipeline triggers a processing run immediately.
func (d *Daemon) RunPipeline(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error) {
	return d.scheduler.TriggerRun(ctx, req)
}

// CheckStatuses runs one clearance check over the given tracking ids, or all
// pending records when ids is empty, and returns how many cleared.
func (d *Daemon) CheckStatuses(ctx context.Context, ids []int64) (int, error) {
	return d.monitor.CheckNow(ctx, ids)
}

// SetSchedulerMode switches scheduling modes at runtime.
func (d *Daemon) SetSchedulerMode(mode scheduler.Mode) {
	d.scheduler.SetMode(mode)
}

// Store exposes the tracking store for command-level queries.
func (d *Daemon) Store() *store.Store {
	return d.store
}

// Events exposes the event bus for consumers that render progress.
func (d *Daemon) Events() *events.Bus {
	return d.bus
}

// TestNotification sends a test push through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.TestNotification(ctx)
}

// DatabaseHealth returns detailed tracking-database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (store.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:          d.running.Load(),
		SchedulerMode:    d.scheduler.Mode(),
		SchedulerRunning: d.scheduler.Running(),
		DatabasePath:     d.cfg.DatabasePath(),
		LockFilePath:     d.lockPath,
	}
}
