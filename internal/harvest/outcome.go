package harvest

import (
	"time"

	"github.com/JakeFAU/repo-harvester/internal/audit"
	"github.com/JakeFAU/repo-harvester/internal/listing"
)

// Kind classifies an iteration.
type Kind string

// Outcome kinds.
const (
	KindCloned  Kind = "cloned"
	KindSkipped Kind = "skipped"
	KindFailed  Kind = "failed"
)

// Outcome is the result of one iteration.
type Outcome struct {
	Kind       Kind
	Cursor     int64
	Descriptor listing.Descriptor
	Dir        string
	Started    time.Time
	Finished   time.Time
	// ExitCode is set once a clone process has terminated.
	ExitCode        *int
	MaxWaitExceeded bool
	Err             error
	// Stack is the textual stack of Err or of a recovered panic.
	Stack string
}

// Record converts o into an audit record.
func (o Outcome) Record(runID string) audit.Record {
	rec := audit.Record{
		Cursor:      o.Cursor,
		RunID:       runID,
		ID:          o.Descriptor.ID,
		Description: o.Descriptor.Description,
		URI:         o.Descriptor.URL,
		Dir:         o.Dir,
		MaxWait:     o.MaxWaitExceeded,
		ExitCode:    o.ExitCode,
		Finished:    o.Finished,
	}
	if o.Descriptor.ID != nil {
		rec.Started = o.Started
	}
	if o.Kind == KindFailed {
		rec.Err = audit.FailureMessage(o.Cursor)
		rec.Stack = o.Stack
	}
	return rec
}
