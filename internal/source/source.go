// Package source connects to the external customs declarations database.
package source

import (
	"context"
	"time"

	"clearwatch/internal/declaration"
)

// Source returns newly registered declarations for a date range.
type Source interface {
	// Fetch returns declarations registered in [from, to], optionally
	// restricted to the given tenant codes. includePending also returns
	// declarations that have not cleared yet.
	Fetch(ctx context.Context, from, to time.Time, tenantCodes []string, includePending bool) ([]declaration.Declaration, error)

	// LookupCompanyName resolves a tenant code to its registered company
	// name. An empty string means unknown.
	LookupCompanyName(ctx context.Context, tenantCode string) (string, error)
}
