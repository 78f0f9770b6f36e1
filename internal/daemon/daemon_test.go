package daemon_test

import (
	"context"
	"testing"
	"time"

	"clearwatch/internal/config"
	"clearwatch/internal/daemon"
	"clearwatch/internal/events"
	"clearwatch/internal/logging"
	"clearwatch/internal/monitor"
	"clearwatch/internal/notifications"
	"clearwatch/internal/orchestrator"
	"clearwatch/internal/scheduler"
	"clearwatch/internal/status"
	"clearwatch/internal/store"
	"clearwatch/internal/testsupport"
)

type idleSource struct{}

func (idleSource) Name() string { return "idle" }

func (idleSource) Query(ctx context.Context, q status.Query) (status.Result, error) {
	return status.Result{IsValid: true, StatusText: "awaiting inspection"}, nil
}

type idleRunner struct{}

func (idleRunner) Execute(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error) {
	return orchestrator.Result{}, nil
}

func newDaemon(t *testing.T, cfg *config.Config, st *store.Store) *daemon.Daemon {
	t.Helper()
	logger := logging.NewNop()
	bus := events.NewBus(16)
	t.Cleanup(bus.Close)

	notifier := notifications.NewService(cfg)
	mon := monitor.New(cfg, st, idleSource{}, nil, notifier, bus, logger)
	sched := scheduler.New(scheduler.ModeFromConfig(cfg), time.Hour, idleRunner{}, logger)

	d, err := daemon.New(cfg, logger, st, sched, mon, bus, notifier)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d
}

func TestDaemonLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, st)

	if d.Status().Running {
		t.Fatal("daemon must not report running before start")
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !d.Status().Running {
		t.Fatal("daemon must report running after start")
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("second start must fail while running")
	}

	d.Stop()
	d.Stop()
	if d.Status().Running {
		t.Fatal("daemon must report stopped after stop")
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	first := newDaemon(t, cfg, st)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("start first: %v", err)
	}
	defer first.Stop()

	second := newDaemon(t, cfg, st)
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance must not acquire the lock")
	}

	first.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("start after release: %v", err)
	}
	second.Stop()
}

func TestDaemonAutomaticModeStartsScheduler(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAutomaticMode(30))
	st := testsupport.MustOpenStore(t, cfg)
	d := newDaemon(t, cfg, st)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer d.Stop()

	daemonStatus := d.Status()
	if daemonStatus.SchedulerMode != scheduler.ModeAutomatic {
		t.Fatalf("mode = %s, want automatic", daemonStatus.SchedulerMode)
	}
	if !daemonStatus.SchedulerRunning {
		t.Fatal("scheduler loop must run in automatic mode")
	}

	d.SetSchedulerMode(scheduler.ModeManual)
	if d.Status().SchedulerRunning {
		t.Fatal("scheduler loop must stop in manual mode")
	}
}
