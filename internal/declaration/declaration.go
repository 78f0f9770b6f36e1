// Package declaration defines the customs declaration model and the pure
// eligibility rules applied before barcode retrieval.
package declaration

import (
	"fmt"
	"strings"
	"time"
)

// Channel is the coarse customs routing outcome assigned to a declaration.
type Channel string

const (
	ChannelGreen  Channel = "green"
	ChannelYellow Channel = "yellow"
	ChannelRed    Channel = "red"
)

// ParseChannel normalizes a raw channel value. Unknown values are returned
// as-is so they can be logged; they are simply never eligible.
func ParseChannel(value string) Channel {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "green", "1":
		return ChannelGreen
	case "yellow", "2":
		return ChannelYellow
	case "red", "3":
		return ChannelRed
	default:
		return Channel(strings.ToLower(strings.TrimSpace(value)))
	}
}

// Identity uniquely identifies a declaration. It never changes once fetched.
type Identity struct {
	TenantCode string
	Number     string
	Date       time.Time
}

// Key returns a stable string form used for map keys and log output.
func (id Identity) Key() string {
	return fmt.Sprintf("%s|%s|%s", id.TenantCode, id.Number, id.Date.Format(DateLayout))
}

// Declaration is one customs filing as returned by the declaration source.
// Immutable once fetched.
type Declaration struct {
	TenantCode       string
	Number           string
	Date             time.Time
	CustomsOffice    string
	TransportMethod  string
	Channel          Channel
	StatusCode       string
	GoodsDescription string

	// Optional structured fields.
	InvoiceNumber string
	BillOfLading  string
	FileNumber    string
}

// Identity returns the declaration's identity triple.
func (d Declaration) Identity() Identity {
	return Identity{TenantCode: d.TenantCode, Number: d.Number, Date: d.Date}
}

// DateLayout is the canonical date form used in storage and status queries.
const DateLayout = "2006-01-02"

// dateLayouts lists the raw forms the external source has been observed to
// emit, tried in order.
var dateLayouts = []string{
	DateLayout,
	"02/01/2006",
	"02-01-2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// ParseDate parses a raw declaration date with best effort. Unparseable
// values fall back to now rather than aborting the batch.
func ParseDate(raw string) time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Now().UTC().Truncate(24 * time.Hour)
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC().Truncate(24 * time.Hour)
}

// FormatDate renders a date in the canonical form expected by status sources.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}
