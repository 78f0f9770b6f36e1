// Package events carries the typed progress stream emitted by the workflow
// and the clearance monitor. The core never assumes a particular UI threading
// model; consumers drain a channel from whatever event loop they own.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates event payloads.
type Kind string

const (
	KindStarted             Kind = "started"
	KindProgress            Kind = "progress"
	KindItemProcessed       Kind = "item_processed"
	KindCompleted           Kind = "completed"
	KindError               Kind = "error"
	KindCancelled           Kind = "cancelled"
	KindStatusCheckFinished Kind = "status_check_finished"
)

// Event is implemented by every payload in the stream.
type Event interface {
	Kind() Kind
}

// Started announces a new workflow run and its eligible count.
type Started struct {
	RunID uuid.UUID
	Total int
}

func (Started) Kind() Kind { return KindStarted }

// Progress reports position within the current batch.
type Progress struct {
	RunID             uuid.UUID
	Current           int
	Total             int
	DeclarationNumber string
}

func (Progress) Kind() Kind { return KindProgress }

// ItemProcessed reports the outcome of one declaration.
type ItemProcessed struct {
	RunID             uuid.UUID
	DeclarationNumber string
	Success           bool
	FilePath          string
	Reason            string
}

func (ItemProcessed) Kind() Kind { return KindItemProcessed }

// Completed carries the aggregate outcome of a finished run.
type Completed struct {
	RunID    uuid.UUID
	Success  int
	Errors   int
	Duration time.Duration
}

func (Completed) Kind() Kind { return KindCompleted }

// Error reports a batch-level failure.
type Error struct {
	RunID             uuid.UUID
	Message           string
	DeclarationNumber string
}

func (Error) Kind() Kind { return KindError }

// Cancelled reports that a run stopped on request before finishing.
type Cancelled struct {
	RunID uuid.UUID
}

func (Cancelled) Kind() Kind { return KindCancelled }

// StatusCheckFinished fires once per monitor invocation, whether or not
// anything changed, so UI countdowns can reset.
type StatusCheckFinished struct {
	Checked int
	Cleared int
}

func (StatusCheckFinished) Kind() Kind { return KindStatusCheckFinished }
