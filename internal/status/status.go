// Package status queries external clearance-status sources and classifies
// their responses.
package status

import (
	"context"
	"time"
)

// Result is the normalized response of a status source.
type Result struct {
	IsValid          bool
	StatusText       string
	HasError         bool
	ErrorText        string
	CompanyName      string
	HasBarcodeImages bool
	Raw              string
}

// Query identifies the declaration whose clearance status is requested. Date
// is already normalized to the canonical form.
type Query struct {
	TenantCode        string
	DeclarationNumber string
	CustomsCode       string
	Date              time.Time
}

// Source answers clearance-status queries. Implementations carry their own
// transport and timeout; callers supply cancellation via ctx.
type Source interface {
	Name() string
	Query(ctx context.Context, q Query) (Result, error)
}

// Outcome is the classified clearance state of one response.
type Outcome string

const (
	OutcomeCleared      Outcome = "cleared"
	OutcomeTransfer     Outcome = "transfer"
	OutcomePending      Outcome = "pending"
	OutcomeInconclusive Outcome = "inconclusive"
)
