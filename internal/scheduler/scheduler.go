// Package scheduler decides when the processing pipeline runs. In automatic
// mode a timer fires at a fixed interval; in manual mode runs happen only on
// explicit triggers. Overlap protection lives in the orchestrator, which
// turns an overlapping run into an immediate empty result, so a tick that
// lands during a slow run is simply skipped.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"clearwatch/internal/config"
	"clearwatch/internal/logging"
	"clearwatch/internal/orchestrator"
)

// Mode selects between timer-driven and trigger-driven operation.
type Mode string

const (
	ModeAutomatic Mode = "automatic"
	ModeManual    Mode = "manual"
)

// ModeFromConfig maps the configured scheduler mode. Config validation has
// already rejected anything else.
func ModeFromConfig(cfg *config.Config) Mode {
	if cfg.AutomaticMode() {
		return ModeAutomatic
	}
	return ModeManual
}

// Runner executes one pipeline run. Satisfied by *orchestrator.Orchestrator.
type Runner interface {
	Execute(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error)
}

// Scheduler owns the automatic-mode timer loop.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	mode   Mode
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a scheduler. The interval only matters in automatic mode.
func New(mode Mode, interval time.Duration, runner Runner, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logging.WithComponent(logger, "scheduler"),
		mode:     mode,
	}
}

// Start launches the timer loop in automatic mode. Calling Start while already
// running, or in manual mode, is a no-op. The first automatic run fires after
// one full interval; callers wanting an immediate run trigger one themselves.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeAutomatic || s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.loop(ctx, done)
	s.logger.Info("automatic scheduling started", logging.Duration("interval", s.interval))
}

// Stop halts the timer loop and waits for it to exit. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("automatic scheduling stopped")
}

// Running reports whether the timer loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Mode returns the current scheduling mode.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode switches scheduling modes at runtime, restarting or halting the
// timer loop as needed.
func (s *Scheduler) SetMode(mode Mode) {
	s.mu.Lock()
	if s.mode == mode {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.Stop()

	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()

	s.Start()
}

// TriggerRun starts a pipeline run immediately, regardless of mode.
func (s *Scheduler) TriggerRun(ctx context.Context, req orchestrator.Request) (orchestrator.Result, error) {
	return s.runner.Execute(ctx, req)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.runner.Execute(ctx, orchestrator.Request{})
			if err != nil {
				s.logger.Error("scheduled run failed", logging.Error(err))
				continue
			}
			if result.RunID == uuid.Nil {
				s.logger.Debug("tick skipped, run already in flight")
				continue
			}
			s.logger.Info("scheduled run finished",
				logging.String(logging.FieldRunID, result.RunID.String()),
				logging.Int("success", result.Success),
				logging.Int("errors", result.Errors))
		}
	}
}
