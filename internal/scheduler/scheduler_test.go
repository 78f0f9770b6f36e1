package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"clearwatch/internal/logging"
	"clearwatch/internal/orchestrator"
	"clearwatch/internal/scheduler"
)

type countingRunner struct {
	runs atomic.Int64
}

func (r *countingRunner) Execute(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error) {
	r.runs.Add(1)
	return orchestrator.Result{}, nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestAutomaticModeRunsOnInterval(t *testing.T) {
	runner := &countingRunner{}
	sched := scheduler.New(scheduler.ModeAutomatic, 20*time.Millisecond, runner, logging.NewNop())

	sched.Start()
	defer sched.Stop()

	waitFor(t, 2*time.Second, func() bool { return runner.runs.Load() >= 2 })
}

func TestManualModeDoesNotStartLoop(t *testing.T) {
	runner := &countingRunner{}
	sched := scheduler.New(scheduler.ModeManual, 10*time.Millisecond, runner, logging.NewNop())

	sched.Start()
	if sched.Running() {
		t.Fatal("manual mode must not start the timer loop")
	}

	time.Sleep(50 * time.Millisecond)
	if got := runner.runs.Load(); got != 0 {
		t.Fatalf("runs = %d, want 0 in manual mode", got)
	}
}

func TestStartAndStopAreIdempotent(t *testing.T) {
	runner := &countingRunner{}
	sched := scheduler.New(scheduler.ModeAutomatic, time.Hour, runner, logging.NewNop())

	sched.Start()
	sched.Start()
	if !sched.Running() {
		t.Fatal("expected running after start")
	}

	sched.Stop()
	sched.Stop()
	if sched.Running() {
		t.Fatal("expected stopped after stop")
	}
}

func TestTriggerRunWorksInAnyMode(t *testing.T) {
	runner := &countingRunner{}
	sched := scheduler.New(scheduler.ModeManual, time.Hour, runner, logging.NewNop())

	if _, err := sched.TriggerRun(context.Background(), orchestrator.Request{}); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if got := runner.runs.Load(); got != 1 {
		t.Fatalf("runs = %d, want 1", got)
	}
}

func TestSetModeSwitchesLoop(t *testing.T) {
	runner := &countingRunner{}
	sched := scheduler.New(scheduler.ModeManual, 20*time.Millisecond, runner, logging.NewNop())

	sched.Start()
	if sched.Running() {
		t.Fatal("manual mode must not run the loop")
	}

	sched.SetMode(scheduler.ModeAutomatic)
	if !sched.Running() {
		t.Fatal("expected loop after switching to automatic")
	}
	waitFor(t, 2*time.Second, func() bool { return runner.runs.Load() >= 1 })

	sched.SetMode(scheduler.ModeManual)
	if sched.Running() {
		t.Fatal("expected loop stopped after switching to manual")
	}
	if sched.Mode() != scheduler.ModeManual {
		t.Fatalf("mode = %s, want manual", sched.Mode())
	}
}
