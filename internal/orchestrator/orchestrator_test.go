package orchestrator_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"clearwatch/internal/barcode"
	"clearwatch/internal/declaration"
	"clearwatch/internal/events"
	"clearwatch/internal/logging"
	"clearwatch/internal/notifications"
	"clearwatch/internal/orchestrator"
	"clearwatch/internal/testsupport"
)

type fakeSource struct {
	mu      sync.Mutex
	fetches int
	items   []declaration.Declaration
	err     error
	block   chan struct{}
}

func (f *fakeSource) Fetch(ctx context.Context, from, to time.Time, tenantCodes []string, includePending bool) ([]declaration.Declaration, error) {
	f.mu.Lock()
	f.fetches++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.items, f.err
}

func (f *fakeSource) LookupCompanyName(ctx context.Context, tenantCode string) (string, error) {
	return "ACME TRADING LLC", nil
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type fakeRetriever struct {
	failFor map[string]error
	missing map[string]bool
}

func (f *fakeRetriever) Retrieve(ctx context.Context, d declaration.Declaration) ([]byte, error) {
	if err, ok := f.failFor[d.Number]; ok {
		return nil, err
	}
	if f.missing[d.Number] {
		return nil, nil
	}
	return []byte("%PDF-1.4 " + d.Number), nil
}

func decl(number, tenant string, channel declaration.Channel) declaration.Declaration {
	return declaration.Declaration{
		TenantCode: tenant,
		Number:     number,
		Date:       time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		Channel:    channel,
		StatusCode: "Cleared",
	}
}

func newOrchestrator(t *testing.T, src *fakeSource, retriever barcode.Retriever) (*orchestrator.Orchestrator, *events.Bus) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	bus := events.NewBus(64)
	t.Cleanup(bus.Close)

	orch := orchestrator.New(
		cfg, st, src, retriever,
		barcode.NewFileSaver(cfg.Paths.OutputDir),
		bus,
		notifications.NewService(cfg),
		logging.NewNop(),
	)
	return orch, bus
}

func TestExecuteProcessesEligibleAndCountsFailures(t *testing.T) {
	src := &fakeSource{items: []declaration.Declaration{
		decl("D-100", "T1", declaration.ChannelGreen),
		decl("D-200", "T1", declaration.ChannelRed),
		decl("D-300", "T2", declaration.ChannelYellow),
	}}
	retriever := &fakeRetriever{failFor: map[string]error{
		"D-100": errors.New("portal unavailable"),
	}}
	orch, _ := newOrchestrator(t, src, retriever)

	result, err := orch.Execute(context.Background(), orchestrator.Request{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.TotalFetched != 3 {
		t.Fatalf("fetched = %d, want 3", result.TotalFetched)
	}
	if result.TotalEligible != 2 {
		t.Fatalf("eligible = %d, want 2 (red channel is not eligible)", result.TotalEligible)
	}
	if result.Success != 1 || result.Errors != 1 {
		t.Fatalf("success/errors = %d/%d, want 1/1", result.Success, result.Errors)
	}
}

func TestExecuteSkipsAlreadyProcessed(t *testing.T) {
	src := &fakeSource{items: []declaration.Declaration{
		decl("D-100", "T1", declaration.ChannelGreen),
	}}
	orch, _ := newOrchestrator(t, src, &fakeRetriever{})

	first, err := orch.Execute(context.Background(), orchestrator.Request{})
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if first.Success != 1 || first.Skipped != 0 {
		t.Fatalf("first run success/skipped = %d/%d, want 1/0", first.Success, first.Skipped)
	}

	second, err := orch.Execute(context.Background(), orchestrator.Request{})
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if second.Success != 0 || second.Skipped != 1 {
		t.Fatalf("second run success/skipped = %d/%d, want 0/1", second.Success, second.Skipped)
	}

	forced, err := orch.Execute(context.Background(), orchestrator.Request{ForceRedownload: true})
	if err != nil {
		t.Fatalf("forced execute: %v", err)
	}
	if forced.Success != 1 || forced.Skipped != 0 {
		t.Fatalf("forced run success/skipped = %d/%d, want 1/0", forced.Success, forced.Skipped)
	}
}

func TestExecuteOverlappingCallReturnsEmptyImmediately(t *testing.T) {
	block := make(chan struct{})
	src := &fakeSource{
		items: []declaration.Declaration{decl("D-100", "T1", declaration.ChannelGreen)},
		block: block,
	}
	orch, _ := newOrchestrator(t, src, &fakeRetriever{})

	leaderDone := make(chan orchestrator.Result, 1)
	go func() {
		result, err := orch.Execute(context.Background(), orchestrator.Request{})
		if err != nil {
			t.Errorf("leader execute: %v", err)
		}
		leaderDone <- result
	}()

	// Wait for the leader to reach the blocked fetch.
	deadline := time.Now().Add(2 * time.Second)
	for src.fetchCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("leader never reached the fetch stage")
		}
		time.Sleep(5 * time.Millisecond)
	}

	secondDone := make(chan orchestrator.Result, 1)
	go func() {
		result, err := orch.Execute(context.Background(), orchestrator.Request{})
		if err != nil {
			t.Errorf("overlapping execute: %v", err)
		}
		secondDone <- result
	}()

	select {
	case result := <-secondDone:
		if result.RunID != uuid.Nil || result.TotalFetched != 0 || result.Success != 0 {
			t.Fatalf("overlapping call must return an empty result, got %+v", result)
		}
	case <-time.After(time.Second):
		t.Fatal("overlapping call blocked instead of returning immediately")
	}

	close(block)
	leader := <-leaderDone
	if leader.Success != 1 {
		t.Fatalf("leader success = %d, want 1", leader.Success)
	}
	if got := src.fetchCount(); got != 1 {
		t.Fatalf("fetch count = %d, want 1 (only one pipeline may run)", got)
	}

	// With the leader finished, a fresh call starts a new run.
	again, err := orch.Execute(context.Background(), orchestrator.Request{})
	if err != nil {
		t.Fatalf("follow-up execute: %v", err)
	}
	if again.RunID == uuid.Nil {
		t.Fatal("follow-up run must not be suppressed")
	}
}

func TestExecuteCancellation(t *testing.T) {
	items := make([]declaration.Declaration, 5)
	for i := range items {
		items[i] = decl("D-10"+string(rune('0'+i)), "T1", declaration.ChannelGreen)
	}
	src := &fakeSource{items: items}
	orch, bus := newOrchestrator(t, src, &fakeRetriever{})

	ch, cancelSub := bus.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := orch.Execute(ctx, orchestrator.Request{})
	if err == nil {
		t.Fatal("expected error from cancelled run")
	}
	if result.Success != 0 {
		t.Fatalf("success = %d, want 0 after immediate cancellation", result.Success)
	}

	var sawCancelled atomic.Bool
	deadline := time.After(time.Second)
	for !sawCancelled.Load() {
		select {
		case event := <-ch:
			if event.Kind() == events.KindCancelled {
				sawCancelled.Store(true)
			}
		case <-deadline:
			t.Fatal("no cancelled event observed")
		}
	}
}

func TestExecutePreselectedBypassesFetch(t *testing.T) {
	src := &fakeSource{err: errors.New("must not be called")}
	orch, _ := newOrchestrator(t, src, &fakeRetriever{})

	result, err := orch.Execute(context.Background(), orchestrator.Request{
		Preselected:     []declaration.Declaration{decl("D-900", "T9", declaration.ChannelGreen)},
		ForceRedownload: true,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Success != 1 {
		t.Fatalf("success = %d, want 1", result.Success)
	}
	if src.fetchCount() != 0 {
		t.Fatal("fetch must not run when declarations are preselected")
	}
}

func TestExecuteMissingBarcodeIsPerItemFailure(t *testing.T) {
	src := &fakeSource{items: []declaration.Declaration{
		decl("D-100", "T1", declaration.ChannelGreen),
		decl("D-200", "T1", declaration.ChannelGreen),
	}}
	retriever := &fakeRetriever{missing: map[string]bool{"D-100": true}}
	orch, _ := newOrchestrator(t, src, retriever)

	result, err := orch.Execute(context.Background(), orchestrator.Request{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Success != 1 || result.Errors != 1 {
		t.Fatalf("success/errors = %d/%d, want 1/1", result.Success, result.Errors)
	}
}
