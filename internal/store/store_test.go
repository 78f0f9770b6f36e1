package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"clearwatch/internal/declaration"
	"clearwatch/internal/store"
	"clearwatch/internal/testsupport"
)

func identity(number string) declaration.Identity {
	return declaration.Identity{
		TenantCode: "0312345678",
		Number:     number,
		Date:       time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestAddProcessedIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id := identity("104558812345")
	if err := st.AddProcessed(ctx, id, "/tmp/a.pdf"); err != nil {
		t.Fatalf("AddProcessed failed: %v", err)
	}
	first, err := st.GetProcessed(ctx, id)
	if err != nil || first == nil {
		t.Fatalf("GetProcessed failed: %v (%v)", first, err)
	}

	time.Sleep(5 * time.Millisecond)
	if err := st.AddProcessed(ctx, id, "/tmp/b.pdf"); err != nil {
		t.Fatalf("second AddProcessed failed: %v", err)
	}

	count, err := st.CountProcessed(ctx)
	if err != nil {
		t.Fatalf("CountProcessed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 processed row, got %d", count)
	}

	second, err := st.GetProcessed(ctx, id)
	if err != nil || second == nil {
		t.Fatalf("GetProcessed after upsert failed: %v (%v)", second, err)
	}
	if !second.ProcessedAt.Equal(first.ProcessedAt) {
		t.Fatalf("processed_at moved on upsert: %v -> %v", first.ProcessedAt, second.ProcessedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("updated_at did not advance: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
	if second.FilePath != "/tmp/b.pdf" {
		t.Fatalf("expected refreshed file path, got %q", second.FilePath)
	}
}

func TestIsProcessedAndIdentitySet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	done, err := st.IsProcessed(ctx, identity("100000000001"))
	if err != nil {
		t.Fatalf("IsProcessed failed: %v", err)
	}
	if done {
		t.Fatal("expected unprocessed identity")
	}

	for i := 0; i < 3; i++ {
		if err := st.AddProcessed(ctx, identity(fmt.Sprintf("10000000000%d", i)), ""); err != nil {
			t.Fatalf("AddProcessed failed: %v", err)
		}
	}

	set, err := st.AllProcessedIdentities(ctx)
	if err != nil {
		t.Fatalf("AllProcessedIdentities failed: %v", err)
	}
	if len(set) != 3 {
		t.Fatalf("expected 3 identities, got %d", len(set))
	}
	if !set.Contains(identity("100000000001")) {
		t.Fatal("expected identity in set")
	}
	if set.Contains(identity("999999999999")) {
		t.Fatal("unexpected identity in set")
	}
}

func TestAddTrackingSilentDuplicate(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id := identity("104558812345")
	firstID, created, err := st.AddTracking(ctx, id, "ACME Imports", "02CV")
	if err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}
	if !created || firstID == 0 {
		t.Fatalf("expected created record, got id=%d created=%v", firstID, created)
	}

	secondID, created, err := st.AddTracking(ctx, id, "ACME Imports", "02CV")
	if err != nil {
		t.Fatalf("duplicate AddTracking failed: %v", err)
	}
	if created {
		t.Fatal("duplicate declaration number must not create a second observation")
	}
	if secondID != firstID {
		t.Fatalf("expected existing id %d, got %d", firstID, secondID)
	}

	record, err := st.GetTracking(ctx, firstID)
	if err != nil || record == nil {
		t.Fatalf("GetTracking failed: %v (%v)", record, err)
	}
	if record.Status != store.StatusPending {
		t.Fatalf("new tracking record should be pending, got %s", record.Status)
	}
	if record.Notified {
		t.Fatal("new tracking record should not be notified")
	}
}

func TestUpdateStatusAppendsHistoryAndSetsClearedAt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id, _, err := st.AddTracking(ctx, identity("104558812345"), "ACME", "02CV")
	if err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}

	if err := st.UpdateStatus(ctx, id, store.StatusPending, "still waiting"); err != nil {
		t.Fatalf("UpdateStatus pending failed: %v", err)
	}
	record, err := st.GetTracking(ctx, id)
	if err != nil {
		t.Fatalf("GetTracking failed: %v", err)
	}
	if record.LastCheckedAt == nil {
		t.Fatal("expected last_checked_at to be stamped")
	}
	if record.ClearedAt != nil {
		t.Fatal("pending record must not have cleared_at")
	}

	if err := st.UpdateStatus(ctx, id, store.StatusCleared, `{"status":"cleared"}`); err != nil {
		t.Fatalf("UpdateStatus cleared failed: %v", err)
	}
	record, err = st.GetTracking(ctx, id)
	if err != nil {
		t.Fatalf("GetTracking failed: %v", err)
	}
	if record.Status != store.StatusCleared {
		t.Fatalf("expected cleared, got %s", record.Status)
	}
	if record.ClearedAt == nil {
		t.Fatal("cleared record must have cleared_at")
	}

	history, err := st.History(ctx, id)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	if history[0].Status != store.StatusPending || history[1].Status != store.StatusCleared {
		t.Fatalf("unexpected history order: %v %v", history[0].Status, history[1].Status)
	}
	if history[1].RawResponse != `{"status":"cleared"}` {
		t.Fatalf("raw response snapshot lost: %q", history[1].RawResponse)
	}
}

func TestUpdateStatusNeverReopensTerminalRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id, _, err := st.AddTracking(ctx, identity("104558812345"), "ACME", "02CV")
	if err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}
	if err := st.UpdateStatus(ctx, id, store.StatusTransfer, "transfer approved"); err != nil {
		t.Fatalf("UpdateStatus transfer failed: %v", err)
	}

	if err := st.UpdateStatus(ctx, id, store.StatusPending, "portal glitch"); err != nil {
		t.Fatalf("UpdateStatus pending failed: %v", err)
	}

	record, err := st.GetTracking(ctx, id)
	if err != nil {
		t.Fatalf("GetTracking failed: %v", err)
	}
	if record.Status != store.StatusTransfer {
		t.Fatalf("terminal status reopened: %s", record.Status)
	}

	// The attempt is still recorded in history.
	history, err := st.History(ctx, id)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
}

func TestUpdateStatusErrorKeepsRecordPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id, _, err := st.AddTracking(ctx, identity("104558812345"), "ACME", "02CV")
	if err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}

	if err := st.UpdateStatus(ctx, id, store.StatusError, "dial tcp: connection refused"); err != nil {
		t.Fatalf("UpdateStatus error failed: %v", err)
	}

	record, err := st.GetTracking(ctx, id)
	if err != nil {
		t.Fatalf("GetTracking failed: %v", err)
	}
	if record.Status != store.StatusPending {
		t.Fatalf("status = %s, want pending after a failed check", record.Status)
	}
	if record.LastCheckedAt == nil {
		t.Fatal("failed check must still stamp last_checked_at")
	}

	pending, err := st.GetPending(ctx)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("record left the pending rotation: %#v", pending)
	}

	history, err := st.History(ctx, id)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || history[0].Status != store.StatusError {
		t.Fatalf("expected one error history row, got %#v", history)
	}
}

func TestDeleteTrackingCascadesHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	id, _, err := st.AddTracking(ctx, identity("104558812345"), "ACME", "02CV")
	if err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}
	if err := st.UpdateStatus(ctx, id, store.StatusPending, "checked"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	removed, err := st.DeleteTracking(ctx, id)
	if err != nil || !removed {
		t.Fatalf("DeleteTracking failed: removed=%v err=%v", removed, err)
	}

	history, err := st.History(ctx, id)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected cascaded history delete, got %d rows", len(history))
	}
}

func TestPruneOlderThanKeepsUnresolved(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	oldCleared, _, err := st.AddTracking(ctx, identity("100000000001"), "A", "")
	if err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}
	pending, _, err := st.AddTracking(ctx, identity("100000000002"), "B", "")
	if err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}
	errored, _, err := st.AddTracking(ctx, identity("100000000003"), "C", "")
	if err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}
	freshCleared, _, err := st.AddTracking(ctx, identity("100000000004"), "D", "")
	if err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}

	if err := st.UpdateStatus(ctx, oldCleared, store.StatusCleared, ""); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if err := st.UpdateStatus(ctx, errored, store.StatusError, "timeout"); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if err := st.UpdateStatus(ctx, freshCleared, store.StatusCleared, ""); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	// Backdate the old cleared record past the retention cutoff.
	backdate(t, st, oldCleared, time.Now().UTC().AddDate(0, 0, -60))

	pruned, err := st.PruneOlderThan(ctx, 30)
	if err != nil {
		t.Fatalf("PruneOlderThan failed: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected exactly 1 pruned record, got %d", pruned)
	}

	for _, tc := range []struct {
		id   int64
		want bool
	}{
		{oldCleared, false},
		{pending, true},
		{errored, true},
		{freshCleared, true},
	} {
		record, err := st.GetTracking(ctx, tc.id)
		if err != nil {
			t.Fatalf("GetTracking failed: %v", err)
		}
		if (record != nil) != tc.want {
			t.Fatalf("record %d: present=%v, want %v", tc.id, record != nil, tc.want)
		}
	}
}

func TestGetPendingOnlyReturnsPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a, _, err := st.AddTracking(ctx, identity("100000000001"), "A", "")
	if err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}
	b, _, err := st.AddTracking(ctx, identity("100000000002"), "B", "")
	if err != nil {
		t.Fatalf("AddTracking failed: %v", err)
	}
	if err := st.UpdateStatus(ctx, b, store.StatusCleared, ""); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	pendingRecords, err := st.GetPending(ctx)
	if err != nil {
		t.Fatalf("GetPending failed: %v", err)
	}
	if len(pendingRecords) != 1 || pendingRecords[0].ID != a {
		t.Fatalf("unexpected pending set: %#v", pendingRecords)
	}

	all, err := st.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 records, got %d", len(all))
	}
}

func TestCompanyCacheAndRecents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := st.UpsertCompany(ctx, "0312345678", "ACME  IMPORT   EXPORT"); err != nil {
		t.Fatalf("UpsertCompany failed: %v", err)
	}
	name, ok, err := st.LookupCompany(ctx, "0312345678")
	if err != nil || !ok {
		t.Fatalf("LookupCompany failed: ok=%v err=%v", ok, err)
	}
	if name != "Acme Import Export" {
		t.Fatalf("expected normalized name, got %q", name)
	}

	// Refresh overwrites the cached name.
	if err := st.UpsertCompany(ctx, "0312345678", "Acme Import Export Co"); err != nil {
		t.Fatalf("UpsertCompany refresh failed: %v", err)
	}
	name, _, err = st.LookupCompany(ctx, "0312345678")
	if err != nil {
		t.Fatalf("LookupCompany failed: %v", err)
	}
	if name != "Acme Import Export Co" {
		t.Fatalf("expected refreshed name, got %q", name)
	}

	if err := st.TouchRecentCompany(ctx, "0312345678"); err != nil {
		t.Fatalf("TouchRecentCompany failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := st.TouchRecentCompany(ctx, "0399999999"); err != nil {
		t.Fatalf("TouchRecentCompany failed: %v", err)
	}

	recents, err := st.RecentCompanies(ctx, 5)
	if err != nil {
		t.Fatalf("RecentCompanies failed: %v", err)
	}
	if len(recents) != 2 || recents[0].TenantCode != "0399999999" {
		t.Fatalf("unexpected recents: %#v", recents)
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	health, err := st.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable {
		t.Fatalf("expected healthy database: %#v", health)
	}
	if len(health.MissingTables) != 0 {
		t.Fatalf("missing tables: %v", health.MissingTables)
	}
	if !health.IntegrityCheck {
		t.Fatal("integrity check failed")
	}
}

// backdate rewrites cleared_at directly; the store API deliberately offers no
// way to do this.
func backdate(t *testing.T, st *store.Store, id int64, to time.Time) {
	t.Helper()

	db, err := sql.Open("sqlite", st.Path())
	if err != nil {
		t.Fatalf("open db for backdate: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(
		`UPDATE tracking_declarations SET cleared_at = ? WHERE id = ?`,
		to.Format(time.RFC3339Nano), id,
	); err != nil {
		t.Fatalf("backdate: %v", err)
	}
}
