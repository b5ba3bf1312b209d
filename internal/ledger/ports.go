// Package ledger declares the storage ports for entries and edit requests.
// Implementations: ledger/memory (in-process, for tests and the memory
// backend) and storage (SQLite).
package ledger

import (
	"context"
	"time"

	"roiboard/internal/core"
)

// Ports for outbound storage adapters.
type (
	// EntryStore is the document store holding ROI entries.
	EntryStore interface {
		CreateEntry(ctx context.Context, e core.Entry) error
		GetEntry(ctx context.Context, id string) (core.Entry, error)
		// UpdateEntry replaces the stored document wholesale.
		UpdateEntry(ctx context.Context, e core.Entry) error
		// ListEntries returns entries whose date falls in [from, to],
		// newest first. Zero bounds are open.
		ListEntries(ctx context.Context, from, to time.Time) ([]core.Entry, error)
	}

	// RequestLedger stores edit requests keyed by (entry, field path,
	// requester) and owns every state transition. Decide and Consume are
	// atomic check-and-set operations: two concurrent calls on the same
	// request yield exactly one success and one ErrInvalidTransition.
	RequestLedger interface {
		// CreateRequest persists a new PENDING request. Fails with
		// core.ErrValidation when a blocking request (pending, or approved
		// and unconsumed) already exists for the same key.
		CreateRequest(ctx context.Context, r core.EditRequest) error

		GetRequest(ctx context.Context, id string) (core.EditRequest, error)

		// ListRequests returns a filtered page, newest first by CreatedAt.
		ListRequests(ctx context.Context, f RequestFilter) (RequestPage, error)

		// CountPending counts PENDING requests, optionally scoped to one
		// requester.
		CountPending(ctx context.Context, requesterID string) (int, error)

		// Decide transitions PENDING to the given terminal decision. On
		// approval, any prior approved-unconsumed request for the same key
		// is retired to SUPERSEDED in the same atomic step.
		Decide(ctx context.Context, id string, d core.Decision, deciderID string) (core.EditRequest, error)

		// Consume marks an APPROVED, unconsumed request as used. Any other
		// prior state fails with core.ErrInvalidTransition.
		Consume(ctx context.Context, id string) (core.EditRequest, error)

		// FindActiveApproval returns the approved, unconsumed request for
		// the key. Fails with core.ErrStaleApproval when the key once held
		// an approval that is now consumed or superseded, and with
		// core.ErrNotFound when no approval ever existed.
		FindActiveApproval(ctx context.Context, entryID, fieldPath, requesterID string) (core.EditRequest, error)
	}
)

// RequestFilter selects and paginates the request queue. Zero fields are
// ignored; Status "ALL" (or empty) matches every status. StartDate and
// EndDate are inclusive day boundaries on CreatedAt.
type RequestFilter struct {
	Status      string
	EntryID     string
	RequesterID string
	StartDate   time.Time
	EndDate     time.Time
	Page        int
	PageSize    int
}

// DefaultPageSize is the fallback page size for callers that skip Normalize.
const DefaultPageSize = 20

// Normalize clamps pagination to sane values.
func (f RequestFilter) Normalize(defaultPageSize, maxPageSize int) RequestFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return f
}

// Matches reports whether a request passes the filter's selection fields
// (pagination excluded).
func (f RequestFilter) Matches(r core.EditRequest) bool {
	if f.Status != "" && f.Status != "ALL" && string(r.Status) != f.Status {
		return false
	}
	if f.EntryID != "" && r.EntryID != f.EntryID {
		return false
	}
	if f.RequesterID != "" && r.RequestedBy != f.RequesterID {
		return false
	}
	if !f.StartDate.IsZero() && r.CreatedAt.Before(dayStart(f.StartDate)) {
		return false
	}
	if !f.EndDate.IsZero() && !r.CreatedAt.Before(dayStart(f.EndDate).AddDate(0, 0, 1)) {
		return false
	}
	return true
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// RequestPage is one page of the request queue plus the totals the UI needs
// for pagination controls.
type RequestPage struct {
	Items      []core.EditRequest
	Page       int
	PageSize   int
	Total      int
	TotalPages int
}

// PageCount computes the number of pages for a total at a page size. An
// empty result still has one (empty) page, so Page never exceeds TotalPages.
func PageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 1
	}
	return (total + pageSize - 1) / pageSize
}
