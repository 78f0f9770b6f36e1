package status

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clearwatch/internal/config"
	"clearwatch/internal/services"
)

const statusQuery = `
SELECT status, company_name
FROM declarations d
LEFT JOIN companies c USING (tenant_code)
WHERE d.tenant_code = $1 AND d.declaration_number = $2 AND d.declaration_date = $3`

// DatabaseSource is the secondary status source: a direct query against the
// external declarations database. It only distinguishes cleared from
// pending; the transfer sub-state is not recorded there.
type DatabaseSource struct {
	pool         *pgxpool.Pool
	clearedCode  string
	queryTimeout time.Duration
}

// NewDatabaseSource builds the DB-fallback status source.
func NewDatabaseSource(ctx context.Context, cfg *config.Config) (*DatabaseSource, error) {
	dsn := strings.TrimSpace(cfg.Declarations.DSN)
	if dsn == "" {
		return nil, services.Wrap(services.ErrConfiguration, "status", "init", "declarations.dsn is not configured", nil)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "status", "init", "parse dsn", err)
	}
	timeout := time.Duration(cfg.Declarations.QueryTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DatabaseSource{
		pool:         pool,
		clearedCode:  cfg.Filter.ClearedStatus,
		queryTimeout: timeout,
	}, nil
}

// Close releases the connection pool.
func (s *DatabaseSource) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Name implements Source.
func (s *DatabaseSource) Name() string { return "database" }

// Query implements Source.
func (s *DatabaseSource) Query(ctx context.Context, q Query) (Result, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	var (
		statusRaw   *string
		companyName *string
	)
	err := s.pool.QueryRow(queryCtx, statusQuery, q.TenantCode, q.DeclarationNumber, q.Date.UTC()).
		Scan(&statusRaw, &companyName)
	if errors.Is(err, pgx.ErrNoRows) {
		return Result{
			IsValid:   true,
			HasError:  true,
			ErrorText: "declaration not found",
			Raw:       "not found",
		}, nil
	}
	if err != nil {
		return Result{}, services.Wrap(services.ErrConnectivity, "status", "db query", q.DeclarationNumber, err)
	}

	result := Result{IsValid: true}
	if statusRaw != nil {
		raw := strings.TrimSpace(*statusRaw)
		result.Raw = raw
		if raw == s.clearedCode {
			result.StatusText = "cleared"
		} else {
			// Not cleared yet. Leave StatusText non-empty so the
			// classifier reports pending rather than inconclusive.
			result.StatusText = "processing"
		}
	}
	if companyName != nil {
		result.CompanyName = strings.TrimSpace(*companyName)
	}
	return result, nil
}
