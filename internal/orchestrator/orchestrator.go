// Package orchestrator runs the declaration processing pipeline: fetch newly
// registered declarations, filter out the ineligible ones, skip what was
// already processed, then retrieve and save barcode documents one by one.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"clearwatch/internal/barcode"
	"clearwatch/internal/config"
	"clearwatch/internal/declaration"
	"clearwatch/internal/events"
	"clearwatch/internal/logging"
	"clearwatch/internal/notifications"
	"clearwatch/internal/services"
	"clearwatch/internal/source"
	"clearwatch/internal/store"
)

// Request describes one workflow run.
type Request struct {
	// DaysBack overrides the configured fetch window when positive.
	DaysBack int
	// TenantCodes restricts the fetch to the given tenants when non-empty.
	TenantCodes []string
	// ForceRedownload reprocesses declarations already marked as done and
	// overwrites existing barcode files.
	ForceRedownload bool
	// Preselected bypasses the fetch stage and processes exactly these
	// declarations. Used by the redownload path where the operator already
	// chose the items.
	Preselected []declaration.Declaration
}

// Result is the aggregate outcome of one run.
type Result struct {
	RunID         uuid.UUID
	TotalFetched  int
	TotalEligible int
	Skipped       int
	Success       int
	Errors        int
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Orchestrator coordinates a single pipeline at a time. An Execute call that
// lands while a run is in flight returns an empty result immediately.
type Orchestrator struct {
	cfg       *config.Config
	store     *store.Store
	source    source.Source
	retriever barcode.Retriever
	saver     barcode.Saver
	filter    *declaration.Filter
	bus       *events.Bus
	notifier  notifications.Service
	logger    *slog.Logger

	busy atomic.Bool
}

// New wires the pipeline dependencies together.
func New(
	cfg *config.Config,
	st *store.Store,
	src source.Source,
	retriever barcode.Retriever,
	saver barcode.Saver,
	bus *events.Bus,
	notifier notifications.Service,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		source:    src,
		retriever: retriever,
		saver:     saver,
		filter: declaration.NewFilter(declaration.Rules{
			ClearedStatus:      cfg.Filter.ClearedStatus,
			OtherTransportCode: cfg.Filter.OtherTransportCode,
			ManagementPrefixes: cfg.Filter.ManagementPrefixes,
		}),
		bus:      bus,
		notifier: notifier,
		logger:   logging.WithComponent(logger, "orchestrator"),
	}
}

// Execute runs the pipeline. If a run is already in flight, the call returns
// an empty Result at once instead of queuing or starting a second pipeline,
// so a manual trigger landing mid-run never hangs for the whole run.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (Result, error) {
	if !o.busy.CompareAndSwap(false, true) {
		o.logger.Debug("run already in flight, skipping")
		return Result{}, nil
	}
	defer o.busy.Store(false)
	return o.run(ctx, req)
}

func (o *Orchestrator) run(ctx context.Context, req Request) (Result, error) {
	result := Result{
		RunID:     uuid.New(),
		StartedAt: time.Now().UTC(),
	}
	runAttr := logging.String(logging.FieldRunID, result.RunID.String())

	items := req.Preselected
	if items == nil {
		fetched, err := o.fetch(ctx, req)
		if err != nil {
			result.FinishedAt = time.Now().UTC()
			o.bus.Publish(events.Error{RunID: result.RunID, Message: err.Error()})
			_ = o.notifier.NotifyError(ctx, err, "declaration fetch")
			return result, err
		}
		items = fetched
	}
	result.TotalFetched = len(items)

	eligible := o.filter.Eligible(items)
	result.TotalEligible = len(eligible)

	work, skipped, err := o.dedupe(ctx, eligible, req.ForceRedownload)
	if err != nil {
		result.FinishedAt = time.Now().UTC()
		o.bus.Publish(events.Error{RunID: result.RunID, Message: err.Error()})
		return result, err
	}
	result.Skipped = skipped

	o.logger.Info("run started", runAttr,
		logging.Int("fetched", result.TotalFetched),
		logging.Int("eligible", result.TotalEligible),
		logging.Int("skipped", result.Skipped),
		logging.Int("to_process", len(work)))
	o.bus.Publish(events.Started{RunID: result.RunID, Total: len(work)})
	if len(work) > 0 {
		_ = o.notifier.NotifyBatchStarted(ctx, len(work))
	}

	for i, d := range work {
		if err := ctx.Err(); err != nil {
			result.FinishedAt = time.Now().UTC()
			o.logger.Warn("run cancelled", runAttr, logging.Int("processed", i))
			o.bus.Publish(events.Cancelled{RunID: result.RunID})
			return result, services.Wrap(services.ErrTransient, "orchestrator", "run", "cancelled", err)
		}

		o.bus.Publish(events.Progress{
			RunID:             result.RunID,
			Current:           i + 1,
			Total:             len(work),
			DeclarationNumber: d.Number,
		})

		if err := o.processOne(ctx, result.RunID, d, req.ForceRedownload); err != nil {
			result.Errors++
			o.logger.Error("declaration failed", runAttr,
				logging.String(logging.FieldDeclaration, d.Number),
				logging.Error(err))
			continue
		}
		result.Success++
	}

	result.FinishedAt = time.Now().UTC()
	duration := result.FinishedAt.Sub(result.StartedAt)
	o.logger.Info("run finished", runAttr,
		logging.Int("success", result.Success),
		logging.Int("errors", result.Errors),
		logging.Duration("duration", duration))
	o.bus.Publish(events.Completed{
		RunID:    result.RunID,
		Success:  result.Success,
		Errors:   result.Errors,
		Duration: duration,
	})
	if result.Success+result.Errors > 0 {
		_ = o.notifier.NotifyBatchCompleted(ctx, result.Success, result.Errors, duration)
	}
	return result, nil
}

func (o *Orchestrator) fetch(ctx context.Context, req Request) ([]declaration.Declaration, error) {
	daysBack := req.DaysBack
	if daysBack <= 0 {
		daysBack = o.cfg.Scheduler.DaysBack
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -daysBack)

	items, err := o.source.Fetch(ctx, from, to, req.TenantCodes, false)
	if err != nil {
		return nil, fmt.Errorf("fetch declarations: %w", err)
	}
	return items, nil
}

// dedupe drops declarations already processed. The whole set is loaded once so
// a large batch costs one query, not one per item.
func (o *Orchestrator) dedupe(ctx context.Context, eligible []declaration.Declaration, force bool) ([]declaration.Declaration, int, error) {
	if force {
		return eligible, 0, nil
	}
	processed, err := o.store.AllProcessedIdentities(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load processed set: %w", err)
	}

	work := make([]declaration.Declaration, 0, len(eligible))
	skipped := 0
	for _, d := range eligible {
		if processed.Contains(d.Identity()) {
			skipped++
			continue
		}
		work = append(work, d)
	}
	return work, skipped, nil
}

func (o *Orchestrator) processOne(ctx context.Context, runID uuid.UUID, d declaration.Declaration, overwrite bool) error {
	data, err := o.retriever.Retrieve(ctx, d)
	if err != nil {
		o.bus.Publish(events.ItemProcessed{
			RunID:             runID,
			DeclarationNumber: d.Number,
			Reason:            err.Error(),
		})
		return err
	}
	if len(data) == 0 {
		reason := "barcode document not available"
		o.bus.Publish(events.ItemProcessed{
			RunID:             runID,
			DeclarationNumber: d.Number,
			Reason:            reason,
		})
		return services.Wrap(services.ErrNotFound, "orchestrator", "process", d.Number+": "+reason, nil)
	}

	path, err := o.saver.Save(d, data, overwrite)
	if err != nil {
		o.bus.Publish(events.ItemProcessed{
			RunID:             runID,
			DeclarationNumber: d.Number,
			Reason:            err.Error(),
		})
		return err
	}

	if err := o.store.AddProcessed(ctx, d.Identity(), path); err != nil {
		o.bus.Publish(events.ItemProcessed{
			RunID:             runID,
			DeclarationNumber: d.Number,
			Reason:            err.Error(),
		})
		return err
	}

	o.refreshCompany(ctx, d.TenantCode)

	o.bus.Publish(events.ItemProcessed{
		RunID:             runID,
		DeclarationNumber: d.Number,
		Success:           true,
		FilePath:          path,
	})
	return nil
}

// refreshCompany opportunistically fills the company-name cache. Never fatal.
func (o *Orchestrator) refreshCompany(ctx context.Context, tenantCode string) {
	if _, found, err := o.store.LookupCompany(ctx, tenantCode); err != nil || found {
		return
	}
	name, err := o.source.LookupCompanyName(ctx, tenantCode)
	if err != nil || name == "" {
		return
	}
	if err := o.store.UpsertCompany(ctx, tenantCode, name); err != nil {
		o.logger.Debug("company cache refresh failed",
			logging.String(logging.FieldTenant, tenantCode),
			logging.Error(err))
	}
}
