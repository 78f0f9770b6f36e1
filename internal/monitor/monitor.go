// Package monitor polls tracked declarations for customs clearance. Checks
// run on a small fixed worker pool; the primary status source is retried once
// before falling back to the secondary source.
package monitor

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"clearwatch/internal/config"
	"clearwatch/internal/events"
	"clearwatch/internal/logging"
	"clearwatch/internal/notifications"
	"clearwatch/internal/status"
	"clearwatch/internal/store"
)

const (
	workerCount     = 3
	primaryAttempts = 2
)

// Monitor drives clearance-status checks over the tracking store.
type Monitor struct {
	store      *store.Store
	primary    status.Source
	secondary  status.Source
	classifier *status.Classifier
	notifier   notifications.Service
	bus        *events.Bus
	logger     *slog.Logger
}

// New builds a monitor. secondary may be nil when no fallback source is
// configured.
func New(
	cfg *config.Config,
	st *store.Store,
	primary, secondary status.Source,
	notifier notifications.Service,
	bus *events.Bus,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		store:     st,
		primary:   primary,
		secondary: secondary,
		classifier: status.NewClassifier(
			cfg.Status.ClearedKeywords,
			cfg.Status.TransferKeywords,
			cfg.Status.BarcodeImagesImplyCleared,
		),
		notifier: notifier,
		bus:      bus,
		logger:   logging.WithComponent(logger, "monitor"),
	}
}

// CheckNow checks the given tracking ids, or every pending record when ids is
// empty. It returns the number of declarations that cleared during this pass.
// A check pass with nothing to do still announces completion so interval
// timers can reset.
func (m *Monitor) CheckNow(ctx context.Context, ids []int64) (int, error) {
	records, err := m.selectTargets(ctx, ids)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		m.bus.Publish(events.StatusCheckFinished{})
		return 0, nil
	}

	jobs := make(chan *store.TrackingRecord)
	var checked, cleared atomic.Int64

	var group errgroup.Group
	for i := 0; i < workerCount; i++ {
		group.Go(func() error {
			for record := range jobs {
				if ctx.Err() != nil {
					return nil
				}
				if m.checkOne(ctx, record) {
					cleared.Add(1)
				}
				checked.Add(1)
			}
			return nil
		})
	}

feed:
	for _, record := range records {
		select {
		case jobs <- record:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	_ = group.Wait()

	m.bus.Publish(events.StatusCheckFinished{
		Checked: int(checked.Load()),
		Cleared: int(cleared.Load()),
	})
	m.logger.Info("status check finished",
		logging.Int("checked", int(checked.Load())),
		logging.Int("cleared", int(cleared.Load())))
	return int(cleared.Load()), ctx.Err()
}

// selectTargets resolves the records to check. Explicit ids are honored even
// if some are already terminal; the store keeps terminal states closed, so a
// redundant check is harmless.
func (m *Monitor) selectTargets(ctx context.Context, ids []int64) ([]*store.TrackingRecord, error) {
	if len(ids) > 0 {
		return m.store.GetByIDs(ctx, ids)
	}
	return m.store.GetPending(ctx)
}

// checkOne runs the full check for one record and reports whether it cleared
// during this pass.
func (m *Monitor) checkOne(ctx context.Context, record *store.TrackingRecord) bool {
	query := status.Query{
		TenantCode:        record.TenantCode,
		DeclarationNumber: record.DeclarationNumber,
		CustomsCode:       record.CustomsCode,
		Date:              record.DeclarationDate,
	}

	outcome, raw := m.resolve(ctx, query)
	newStatus := outcomeStatus(outcome)

	if err := m.store.UpdateStatus(ctx, record.ID, newStatus, raw); err != nil {
		m.logger.Error("status update failed",
			logging.Int64(logging.FieldTrackingID, record.ID),
			logging.Error(err))
		return false
	}

	// Re-read: the store resolves races and keeps terminal states closed, so
	// the stored row, not this pass's outcome, decides notification.
	updated, err := m.store.GetTracking(ctx, record.ID)
	if err != nil || updated == nil {
		return false
	}
	if updated.Status.IsTerminal() && !updated.Notified {
		m.notify(ctx, updated)
	}
	return updated.Status == store.StatusCleared && !record.Status.IsTerminal()
}

// resolve queries the primary source with one retry, then falls back to the
// secondary source if the primary stayed inconclusive.
func (m *Monitor) resolve(ctx context.Context, query status.Query) (status.Outcome, string) {
	outcome, raw := m.query(ctx, m.primary, query, primaryAttempts)
	if outcome != status.OutcomeInconclusive || m.secondary == nil || ctx.Err() != nil {
		return outcome, raw
	}

	fallbackOutcome, fallbackRaw := m.query(ctx, m.secondary, query, 1)
	if fallbackOutcome == status.OutcomeInconclusive && fallbackRaw == "" {
		return outcome, raw
	}
	return fallbackOutcome, fallbackRaw
}

func (m *Monitor) query(ctx context.Context, src status.Source, query status.Query, attempts int) (status.Outcome, string) {
	var raw string
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return status.OutcomeInconclusive, raw
		}
		result, err := src.Query(ctx, query)
		if err != nil {
			m.logger.Warn("status query failed",
				logging.String("source", src.Name()),
				logging.String(logging.FieldDeclaration, query.DeclarationNumber),
				logging.Int("attempt", attempt),
				logging.Error(err))
			continue
		}
		raw = result.Raw
		if outcome := m.classifier.Classify(result); outcome != status.OutcomeInconclusive {
			return outcome, result.Raw
		}
	}
	return status.OutcomeInconclusive, raw
}

func (m *Monitor) notify(ctx context.Context, record *store.TrackingRecord) {
	var err error
	switch record.Status {
	case store.StatusCleared:
		err = m.notifier.NotifyCleared(ctx, record.CompanyName, record.DeclarationNumber)
	case store.StatusTransfer:
		err = m.notifier.NotifyTransfer(ctx, record.CompanyName, record.DeclarationNumber)
	default:
		return
	}
	if err != nil {
		m.logger.Warn("notification failed",
			logging.Int64(logging.FieldTrackingID, record.ID),
			logging.Error(err))
		return
	}
	if err := m.store.MarkNotified(ctx, record.ID); err != nil {
		m.logger.Warn("mark notified failed",
			logging.Int64(logging.FieldTrackingID, record.ID),
			logging.Error(err))
	}
}

func outcomeStatus(outcome status.Outcome) store.TrackingStatus {
	switch outcome {
	case status.OutcomeCleared:
		return store.StatusCleared
	case status.OutcomeTransfer:
		return store.StatusTransfer
	case status.OutcomePending:
		return store.StatusPending
	default:
		// Lands in check history only; the store keeps the record itself in
		// its previous state so the next pass re-checks it.
		return store.StatusError
	}
}
