package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clearwatch/internal/declaration"
)

// AddTracking places a declaration under clearance observation. Re-adding an
// already tracked declaration number is a common, harmless user action, so it
// reports created=false instead of erroring and returns the existing id.
func (s *Store) AddTracking(ctx context.Context, id declaration.Identity, companyName, customsCode string) (int64, bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO tracking_declarations (
            declaration_number, tenant_code, declaration_date, customs_code,
            company_name, status, added_at, notified
        ) VALUES (?, ?, ?, ?, ?, ?, ?, 0)
        ON CONFLICT (declaration_number) DO NOTHING`,
		id.Number,
		id.TenantCode,
		declaration.FormatDate(id.Date),
		nullableString(customsCode),
		nullableString(companyName),
		StatusPending,
		now,
	)
	if err != nil {
		return 0, false, fmt.Errorf("add tracking: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		newID, err := res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("last insert id: %w", err)
		}
		return newID, true, nil
	}

	var existingID int64
	err = s.db.QueryRowContext(
		ctx,
		`SELECT id FROM tracking_declarations WHERE declaration_number = ?`,
		id.Number,
	).Scan(&existingID)
	if err != nil {
		return 0, false, fmt.Errorf("lookup existing tracking: %w", err)
	}
	return existingID, false, nil
}

// GetTracking fetches one tracking record by id, or nil when absent.
func (s *Store) GetTracking(ctx context.Context, id int64) (*TrackingRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackingColumns+` FROM tracking_declarations WHERE id = ?`, id)
	record, err := scanTracking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tracking: %w", err)
	}
	return record, nil
}

// GetPending returns all records still awaiting clearance, oldest first.
func (s *Store) GetPending(ctx context.Context) ([]*TrackingRecord, error) {
	return s.listTracking(ctx, `WHERE status = ?`, StatusPending)
}

// GetAll returns every tracking record, oldest first.
func (s *Store) GetAll(ctx context.Context) ([]*TrackingRecord, error) {
	return s.listTracking(ctx, ``)
}

// GetByIDs returns the tracking records matching the given ids.
func (s *Store) GetByIDs(ctx context.Context, ids []int64) ([]*TrackingRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.listTracking(ctx, `WHERE id IN (`+makePlaceholders(len(ids))+`)`, args...)
}

func (s *Store) listTracking(ctx context.Context, where string, args ...any) ([]*TrackingRecord, error) {
	query := `SELECT ` + trackingColumns + ` FROM tracking_declarations`
	if where != "" {
		query += ` ` + where
	}
	query += ` ORDER BY added_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tracking: %w", err)
	}
	defer rows.Close()

	var records []*TrackingRecord
	for rows.Next() {
		record, err := scanTracking(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// UpdateStatus records the outcome of one status check: it appends a
// check-history entry, stamps last_checked_at and, on a transition into
// cleared or transfer, sets cleared_at. A record already in a terminal state
// keeps it; the monitor never moves cleared or transfer back to pending.
// An error outcome is recorded in history only: a failed check must leave a
// pending record pending so the next pass re-checks it.
func (s *Store) UpdateStatus(ctx context.Context, id int64, newStatus TrackingStatus, rawResponse string) error {
	if _, ok := statusSet[newStatus]; !ok {
		return fmt.Errorf("update status: unknown status %q", newStatus)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var currentRaw string
	err = tx.QueryRowContext(ctx, `SELECT status FROM tracking_declarations WHERE id = ?`, id).Scan(&currentRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update status: tracking record %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("read current status: %w", err)
	}

	current := TrackingStatus(currentRaw)
	effective := newStatus
	if newStatus == StatusError || (current.IsTerminal() && !newStatus.IsTerminal()) {
		effective = current
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if effective.IsTerminal() && !current.IsTerminal() {
		_, err = tx.ExecContext(
			ctx,
			`UPDATE tracking_declarations SET status = ?, last_checked_at = ?, cleared_at = ? WHERE id = ?`,
			effective, now, now, id,
		)
	} else {
		_, err = tx.ExecContext(
			ctx,
			`UPDATE tracking_declarations SET status = ?, last_checked_at = ? WHERE id = ?`,
			effective, now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO check_history (tracking_id, checked_at, status, raw_response) VALUES (?, ?, ?, ?)`,
		id, now, newStatus, nullableString(rawResponse),
	)
	if err != nil {
		return fmt.Errorf("append check history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit status: %w", err)
	}
	return nil
}

// MarkNotified records that the clearance notification for a record was sent.
func (s *Store) MarkNotified(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tracking_declarations SET notified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark notified: %w", err)
	}
	return nil
}

// DeleteTracking removes a tracking record and cascades to its history rows.
func (s *Store) DeleteTracking(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tracking_declarations WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete tracking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// History returns the check-history entries of one tracking record, oldest
// first.
func (s *Store) History(ctx context.Context, trackingID int64) ([]*CheckHistoryEntry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, tracking_id, checked_at, status, raw_response
         FROM check_history WHERE tracking_id = ? ORDER BY checked_at, id`,
		trackingID,
	)
	if err != nil {
		return nil, fmt.Errorf("query check history: %w", err)
	}
	defer rows.Close()

	var entries []*CheckHistoryEntry
	for rows.Next() {
		var (
			entry      CheckHistoryEntry
			checkedRaw string
			statusRaw  string
			rawResp    sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.TrackingID, &checkedRaw, &statusRaw, &rawResp); err != nil {
			return nil, err
		}
		if checked, err := parseTimeString(checkedRaw); err == nil {
			entry.CheckedAt = checked
		}
		entry.Status = TrackingStatus(statusRaw)
		entry.RawResponse = rawResp.String
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// PruneOlderThan removes cleared tracking records whose cleared_at is older
// than the cutoff, along with their history. Pending records are never
// auto-pruned: unresolved items must not silently disappear.
func (s *Store) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM tracking_declarations
         WHERE status = ? AND cleared_at IS NOT NULL AND cleared_at < ?`,
		StatusCleared, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("prune tracking: %w", err)
	}
	return res.RowsAffected()
}

const trackingColumns = "id, declaration_number, tenant_code, declaration_date, customs_code, company_name, status, last_checked_at, cleared_at, added_at, notified"

func scanTracking(scanner interface{ Scan(dest ...any) error }) (*TrackingRecord, error) {
	var (
		id             int64
		number         string
		tenant         string
		dateRaw        string
		customsCode    sql.NullString
		companyName    sql.NullString
		statusRaw      string
		lastCheckedRaw sql.NullString
		clearedRaw     sql.NullString
		addedRaw       string
		notified       sql.NullInt64
	)
	if err := scanner.Scan(
		&id, &number, &tenant, &dateRaw, &customsCode, &companyName,
		&statusRaw, &lastCheckedRaw, &clearedRaw, &addedRaw, &notified,
	); err != nil {
		return nil, err
	}

	record := &TrackingRecord{
		ID:                id,
		DeclarationNumber: number,
		TenantCode:        tenant,
		DeclarationDate:   declaration.ParseDate(dateRaw),
		CustomsCode:       customsCode.String,
		CompanyName:       companyName.String,
		Status:            TrackingStatus(statusRaw),
	}
	if lastCheckedRaw.Valid {
		if t, err := parseTimeString(lastCheckedRaw.String); err == nil {
			record.LastCheckedAt = &t
		}
	}
	if clearedRaw.Valid {
		if t, err := parseTimeString(clearedRaw.String); err == nil {
			record.ClearedAt = &t
		}
	}
	if added, err := parseTimeString(addedRaw); err == nil {
		record.AddedAt = added
	}
	if notified.Valid {
		record.Notified = notified.Int64 != 0
	}
	return record, nil
}
