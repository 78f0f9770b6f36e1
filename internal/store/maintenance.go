package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var expectedTables = []string{
	"processed_declarations",
	"tracking_declarations",
	"check_history",
	"companies",
	"recent_companies",
}

// CheckHealth returns diagnostic information about the tracking database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("tracking database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			health.DatabaseExists = false
			return health, nil
		}
		return health, fmt.Errorf("stat tracking database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("tracking database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("tracking database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping tracking database: %w", err)
	}
	health.DatabaseReadable = true

	present := map[string]struct{}{}
	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("scan table name: %w", err)
		}
		present[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("iterate tables: %w", err)
	}

	for _, table := range expectedTables {
		if _, ok := present[table]; ok {
			health.TablesPresent = append(health.TablesPresent, table)
		} else {
			health.MissingTables = append(health.MissingTables, table)
		}
	}

	if len(health.MissingTables) == 0 {
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM tracking_declarations").Scan(&health.TrackedItems); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count tracking items: %w", err)
		}
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM processed_declarations").Scan(&health.ProcessedItems); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count processed items: %w", err)
		}
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

// Stats returns a count of tracking records grouped by status.
func (s *Store) Stats(ctx context.Context) (map[TrackingStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM tracking_declarations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("tracking stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[TrackingStatus]int)
	for rows.Next() {
		var (
			statusRaw string
			count     int
		)
		if err := rows.Scan(&statusRaw, &count); err != nil {
			return nil, err
		}
		stats[TrackingStatus(statusRaw)] = count
	}
	return stats, rows.Err()
}
