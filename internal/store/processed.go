package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"clearwatch/internal/declaration"
)

// IdentitySet is a snapshot of processed declaration identities, used by the
// orchestrator to skip already-done work in one pass.
type IdentitySet map[string]struct{}

// Contains reports whether the identity has already been processed.
func (s IdentitySet) Contains(id declaration.Identity) bool {
	_, ok := s[id.Key()]
	return ok
}

// IsProcessed reports whether a declaration has already been processed.
func (s *Store) IsProcessed(ctx context.Context, id declaration.Identity) (bool, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM processed_declarations
         WHERE declaration_number = ? AND tenant_code = ? AND declaration_date = ?`,
		id.Number, id.TenantCode, declaration.FormatDate(id.Date),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query processed: %w", err)
	}
	return count > 0, nil
}

// AddProcessed records a successfully processed declaration. Writing the same
// identity twice never duplicates the row: the second write refreshes
// updated_at (and the file path) while processed_at keeps its original value.
func (s *Store) AddProcessed(ctx context.Context, id declaration.Identity, filePath string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO processed_declarations (
            declaration_number, tenant_code, declaration_date, file_path, processed_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT (declaration_number, tenant_code, declaration_date)
        DO UPDATE SET file_path = excluded.file_path, updated_at = excluded.updated_at`,
		id.Number,
		id.TenantCode,
		declaration.FormatDate(id.Date),
		nullableString(filePath),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("add processed: %w", err)
	}
	return nil
}

// AllProcessedIdentities returns the full processed-identity set.
func (s *Store) AllProcessedIdentities(ctx context.Context) (IdentitySet, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT declaration_number, tenant_code, declaration_date FROM processed_declarations`,
	)
	if err != nil {
		return nil, fmt.Errorf("query processed identities: %w", err)
	}
	defer rows.Close()

	set := make(IdentitySet)
	for rows.Next() {
		var number, tenant, dateRaw string
		if err := rows.Scan(&number, &tenant, &dateRaw); err != nil {
			return nil, err
		}
		date := declaration.ParseDate(dateRaw)
		set[declaration.Identity{TenantCode: tenant, Number: number, Date: date}.Key()] = struct{}{}
	}
	return set, rows.Err()
}

// GetProcessed fetches one processed record by identity, or nil when absent.
func (s *Store) GetProcessed(ctx context.Context, id declaration.Identity) (*ProcessedRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, declaration_number, tenant_code, declaration_date, file_path, processed_at, updated_at
         FROM processed_declarations
         WHERE declaration_number = ? AND tenant_code = ? AND declaration_date = ?`,
		id.Number, id.TenantCode, declaration.FormatDate(id.Date),
	)
	record, err := scanProcessed(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get processed: %w", err)
	}
	return record, nil
}

// CountProcessed returns the number of processed declarations.
func (s *Store) CountProcessed(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM processed_declarations`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count processed: %w", err)
	}
	return count, nil
}

func scanProcessed(scanner interface{ Scan(dest ...any) error }) (*ProcessedRecord, error) {
	var (
		id           int64
		number       string
		tenant       string
		dateRaw      string
		filePath     sql.NullString
		processedRaw string
		updatedRaw   string
	)
	if err := scanner.Scan(&id, &number, &tenant, &dateRaw, &filePath, &processedRaw, &updatedRaw); err != nil {
		return nil, err
	}

	record := &ProcessedRecord{
		ID:                id,
		DeclarationNumber: number,
		TenantCode:        tenant,
		FilePath:          filePath.String,
	}
	record.DeclarationDate = declaration.ParseDate(dateRaw)
	if processed, err := parseTimeString(processedRaw); err == nil {
		record.ProcessedAt = processed
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}
