package store

import (
	"strings"
	"time"
)

// TrackingStatus represents the clearance-observation lifecycle of a tracked
// declaration.
type TrackingStatus string

const (
	StatusPending  TrackingStatus = "pending"
	StatusCleared  TrackingStatus = "cleared"
	StatusTransfer TrackingStatus = "transfer"
	// StatusError only ever appears in check history; a failed check leaves
	// the record itself in its previous state.
	StatusError TrackingStatus = "error"
)

var allStatuses = []TrackingStatus{
	StatusPending,
	StatusCleared,
	StatusTransfer,
	StatusError,
}

var statusSet = func() map[TrackingStatus]struct{} {
	set := make(map[TrackingStatus]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known tracking statuses.
func AllStatuses() []TrackingStatus {
	cp := make([]TrackingStatus, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known TrackingStatus.
func ParseStatus(value string) (TrackingStatus, bool) {
	normalized := TrackingStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether the monitor considers a status final. Terminal
// records are skipped by automatic checks and never move back to pending.
func (s TrackingStatus) IsTerminal() bool {
	return s == StatusCleared || s == StatusTransfer
}

// ProcessedRecord is one successfully processed declaration.
type ProcessedRecord struct {
	ID                int64
	DeclarationNumber string
	TenantCode        string
	DeclarationDate   time.Time
	FilePath          string
	ProcessedAt       time.Time
	UpdatedAt         time.Time
}

// TrackingRecord is a declaration placed under clearance observation.
type TrackingRecord struct {
	ID                int64
	DeclarationNumber string
	TenantCode        string
	DeclarationDate   time.Time
	CustomsCode       string
	CompanyName       string
	Status            TrackingStatus
	LastCheckedAt     *time.Time
	ClearedAt         *time.Time
	AddedAt           time.Time
	Notified          bool
}

// CheckHistoryEntry is one append-only status-check log row.
type CheckHistoryEntry struct {
	ID          int64
	TrackingID  int64
	CheckedAt   time.Time
	Status      TrackingStatus
	RawResponse string
}

// Company is a cached tenant-code to display-name mapping. Never a source of
// truth, purely a lookup optimization.
type Company struct {
	TenantCode string
	Name       string
	LastSeen   time.Time
}

// RecentCompany is one entry of the recently-selected-tenant LRU.
type RecentCompany struct {
	TenantCode string
	LastUsed   time.Time
}

// DatabaseHealth captures diagnostic information about the tracking database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TrackedItems     int
	ProcessedItems   int
	Error            string
}
