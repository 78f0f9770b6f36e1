package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clearwatch/internal/config"
	"clearwatch/internal/declaration"
	"clearwatch/internal/logging"
	"clearwatch/internal/services"
)

const fetchQuery = `
SELECT tenant_code, declaration_number, declaration_date, customs_office,
       transport_method, channel, status, goods_description,
       invoice_number, bill_of_lading, file_number
FROM declarations
WHERE declaration_date >= $1 AND declaration_date <= $2
  AND ($3::text[] IS NULL OR tenant_code = ANY($3))
  AND ($4 OR status = $5)
ORDER BY declaration_date, declaration_number`

const companyQuery = `SELECT company_name FROM companies WHERE tenant_code = $1`

// PostgresSource fetches declarations from the external customs database.
type PostgresSource struct {
	pool         *pgxpool.Pool
	logger       *slog.Logger
	queryTimeout time.Duration
	maxRetries   int
	backoff      time.Duration
	clearedCode  string
}

// NewPostgres connects a declaration source to the configured database. The
// pool is lazy; connectivity problems surface on first query, not here.
func NewPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*PostgresSource, error) {
	dsn := strings.TrimSpace(cfg.Declarations.DSN)
	if dsn == "" {
		return nil, services.Wrap(services.ErrConfiguration, "source", "connect", "declarations.dsn is not configured", nil)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "source", "connect", "parse dsn", err)
	}

	retries := cfg.Declarations.MaxRetries
	if retries < 0 {
		retries = 0
	}
	backoff := time.Duration(cfg.Declarations.RetryBackoffMilli) * time.Millisecond
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	queryTimeout := time.Duration(cfg.Declarations.QueryTimeout) * time.Second
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}

	return &PostgresSource{
		pool:         pool,
		logger:       logging.WithComponent(logger, "source"),
		queryTimeout: queryTimeout,
		maxRetries:   retries,
		backoff:      backoff,
		clearedCode:  cfg.Filter.ClearedStatus,
	}, nil
}

// Close releases the connection pool.
func (s *PostgresSource) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Fetch implements Source with a bounded retry and fixed backoff on
// connectivity failures.
func (s *PostgresSource) Fetch(ctx context.Context, from, to time.Time, tenantCodes []string, includePending bool) ([]declaration.Declaration, error) {
	var result []declaration.Declaration
	err := s.withRetry(ctx, "fetch", func(attemptCtx context.Context) error {
		rows, err := s.pool.Query(
			attemptCtx, fetchQuery,
			from.UTC(), to.UTC(), tenantArray(tenantCodes), includePending, s.clearedCode,
		)
		if err != nil {
			return services.Wrap(services.ErrConnectivity, "source", "fetch", "query declarations", err)
		}
		defer rows.Close()

		var fetched []declaration.Declaration
		for rows.Next() {
			d, err := scanDeclaration(rows)
			if err != nil {
				return services.Wrap(services.ErrData, "source", "fetch", "scan declaration", err)
			}
			fetched = append(fetched, d)
		}
		if err := rows.Err(); err != nil {
			return services.Wrap(services.ErrConnectivity, "source", "fetch", "iterate declarations", err)
		}
		result = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LookupCompanyName implements Source.
func (s *PostgresSource) LookupCompanyName(ctx context.Context, tenantCode string) (string, error) {
	var name string
	err := s.withRetry(ctx, "lookup company", func(attemptCtx context.Context) error {
		err := s.pool.QueryRow(attemptCtx, companyQuery, tenantCode).Scan(&name)
		if errors.Is(err, pgx.ErrNoRows) {
			name = ""
			return nil
		}
		if err != nil {
			return services.Wrap(services.ErrConnectivity, "source", "lookup company", tenantCode, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(name), nil
}

func (s *PostgresSource) withRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("retrying external database operation",
				logging.String("operation", operation),
				logging.Int("attempt", attempt+1),
				logging.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !services.IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("%s: retries exhausted: %w", operation, lastErr)
}

func tenantArray(tenantCodes []string) any {
	cleaned := make([]string, 0, len(tenantCodes))
	for _, code := range tenantCodes {
		if trimmed := strings.TrimSpace(code); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

func scanDeclaration(rows pgx.Rows) (declaration.Declaration, error) {
	var (
		tenant, number                  string
		dateRaw                         time.Time
		customsOffice, transport        *string
		channelRaw, statusRaw           *string
		goods, invoice, bol, fileNumber *string
	)
	if err := rows.Scan(
		&tenant, &number, &dateRaw, &customsOffice, &transport,
		&channelRaw, &statusRaw, &goods, &invoice, &bol, &fileNumber,
	); err != nil {
		return declaration.Declaration{}, err
	}

	d := declaration.Declaration{
		TenantCode: strings.TrimSpace(tenant),
		Number:     strings.TrimSpace(number),
		Date:       dateRaw.UTC(),
	}
	if customsOffice != nil {
		d.CustomsOffice = strings.TrimSpace(*customsOffice)
	}
	if transport != nil {
		d.TransportMethod = strings.TrimSpace(*transport)
	}
	if channelRaw != nil {
		d.Channel = declaration.ParseChannel(*channelRaw)
	}
	if statusRaw != nil {
		d.StatusCode = strings.TrimSpace(*statusRaw)
	}
	if goods != nil {
		d.GoodsDescription = *goods
	}
	if invoice != nil {
		d.InvoiceNumber = strings.TrimSpace(*invoice)
	}
	if bol != nil {
		d.BillOfLading = strings.TrimSpace(*bol)
	}
	if fileNumber != nil {
		d.FileNumber = strings.TrimSpace(*fileNumber)
	}
	return d, nil
}
