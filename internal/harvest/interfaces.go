// Package harvest runs the resumable crawl: read the cursor, list the
// next repository, clone it, record the outcome and advance.
package harvest

import (
	"context"
	"time"

	"github.com/JakeFAU/repo-harvester/internal/audit"
	"github.com/JakeFAU/repo-harvester/internal/listing"
)

// CursorStore persists the next repository ID to query.
type CursorStore interface {
	Read() (int64, error)
	Write(cursor int64) error
}

// Lister fetches one listing page.
type Lister interface {
	FetchPage(ctx context.Context, sinceID int64) (listing.Page, error)
}

// Process is a running clone.
type Process interface {
	Running() bool
	ExitCode() int
}

// Cloner dispatches an asynchronous clone and returns the process and
// its destination directory.
type Cloner interface {
	Clone(ctx context.Context, url string) (Process, string, error)
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// AuditLog receives one record per iteration.
type AuditLog interface {
	Append(rec audit.Record) error
}
