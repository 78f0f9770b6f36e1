package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var companyTitleCaser = cases.Title(language.Und, cases.NoLower)

// NormalizeCompanyName cleans up a raw company name for display: collapsed
// whitespace, all-caps names folded to title case.
func NormalizeCompanyName(raw string) string {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return ""
	}
	if name == strings.ToUpper(name) {
		return companyTitleCaser.String(strings.ToLower(name))
	}
	return name
}

// UpsertCompany refreshes the tenant-code to display-name cache. Populated
// opportunistically; failures here are never fatal to the caller.
func (s *Store) UpsertCompany(ctx context.Context, tenantCode, name string) error {
	tenantCode = strings.TrimSpace(tenantCode)
	name = NormalizeCompanyName(name)
	if tenantCode == "" || name == "" {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO companies (tenant_code, name, last_seen) VALUES (?, ?, ?)
         ON CONFLICT (tenant_code) DO UPDATE SET name = excluded.name, last_seen = excluded.last_seen`,
		tenantCode, name, now,
	)
	if err != nil {
		return fmt.Errorf("upsert company: %w", err)
	}
	return nil
}

// LookupCompany returns the cached display name for a tenant code.
func (s *Store) LookupCompany(ctx context.Context, tenantCode string) (string, bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM companies WHERE tenant_code = ?`, tenantCode).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup company: %w", err)
	}
	return name, true, nil
}

// Companies returns the cached companies ordered by tenant code.
func (s *Store) Companies(ctx context.Context) ([]*Company, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tenant_code, name, last_seen FROM companies ORDER BY tenant_code`)
	if err != nil {
		return nil, fmt.Errorf("query companies: %w", err)
	}
	defer rows.Close()

	var companies []*Company
	for rows.Next() {
		var (
			company Company
			seenRaw string
		)
		if err := rows.Scan(&company.TenantCode, &company.Name, &seenRaw); err != nil {
			return nil, err
		}
		if seen, err := parseTimeString(seenRaw); err == nil {
			company.LastSeen = seen
		}
		companies = append(companies, &company)
	}
	return companies, rows.Err()
}

// TouchRecentCompany records a tenant selection in the recently-used LRU.
func (s *Store) TouchRecentCompany(ctx context.Context, tenantCode string) error {
	tenantCode = strings.TrimSpace(tenantCode)
	if tenantCode == "" {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO recent_companies (tenant_code, last_used) VALUES (?, ?)
         ON CONFLICT (tenant_code) DO UPDATE SET last_used = excluded.last_used`,
		tenantCode, now,
	)
	if err != nil {
		return fmt.Errorf("touch recent company: %w", err)
	}
	return nil
}

// RecentCompanies returns the most recently selected tenants, newest first.
func (s *Store) RecentCompanies(ctx context.Context, limit int) ([]*RecentCompany, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT tenant_code, last_used FROM recent_companies ORDER BY last_used DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent companies: %w", err)
	}
	defer rows.Close()

	var recents []*RecentCompany
	for rows.Next() {
		var (
			recent  RecentCompany
			usedRaw string
		)
		if err := rows.Scan(&recent.TenantCode, &usedRaw); err != nil {
			return nil, err
		}
		if used, err := parseTimeString(usedRaw); err == nil {
			recent.LastUsed = used
		}
		recents = append(recents, &recent)
	}
	return recents, rows.Err()
}
