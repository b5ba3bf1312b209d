package core

import (
	"fmt"
	"strings"
	"time"
)

// RequestStatus is the lifecycle state of an edit request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusApproved RequestStatus = "APPROVED"
	StatusRejected RequestStatus = "REJECTED"
	// StatusSuperseded retires an approved, unconsumed request when a newer
	// approval lands on the same (entry, field, requester) key. Terminal,
	// never usable for a write.
	StatusSuperseded RequestStatus = "SUPERSEDED"
)

// Decision is the owner's verdict on a pending request.
type Decision = RequestStatus

// ParseDecision validates an incoming decision string.
func ParseDecision(s string) (Decision, error) {
	switch RequestStatus(s) {
	case StatusApproved, StatusRejected:
		return RequestStatus(s), nil
	}
	return "", fmt.Errorf("%w: decision must be APPROVED or REJECTED, got %q", ErrValidation, s)
}

// EditRequest is a proposal, with justification, to change one field of one
// entry. Created PENDING by a STAFF actor, decided once by an OWNER, and, if
// approved, consumed by exactly one write.
type EditRequest struct {
	ID            string        `json:"id"`
	EntryID       string        `json:"entryId"`
	FieldPath     string        `json:"fieldPath"`
	OldValue      Value         `json:"oldValue"`
	NewValue      Value         `json:"newValue"`
	Reason        string        `json:"reason"`
	RequestedBy   string        `json:"requestedBy"`
	RequesterName string        `json:"requesterName,omitempty"`
	Status        RequestStatus `json:"status"`
	Consumed      bool          `json:"consumed"`
	CreatedAt     time.Time     `json:"createdAt"`
	DecidedAt     *time.Time    `json:"decidedAt,omitempty"`
	DecidedBy     string        `json:"decidedBy,omitempty"`
}

// Validate checks the invariants of a request at creation time.
func (r EditRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: empty request id", ErrValidation)
	}
	if strings.TrimSpace(r.EntryID) == "" {
		return fmt.Errorf("%w: empty entry id", ErrValidation)
	}
	if strings.TrimSpace(r.FieldPath) == "" {
		return fmt.Errorf("%w: empty field path", ErrValidation)
	}
	if strings.TrimSpace(r.Reason) == "" {
		return fmt.Errorf("%w: reason is required", ErrValidation)
	}
	if strings.TrimSpace(r.RequestedBy) == "" {
		return fmt.Errorf("%w: empty requester id", ErrValidation)
	}
	if r.Status != StatusPending {
		return fmt.Errorf("%w: new requests start PENDING", ErrValidation)
	}
	if r.Consumed {
		return fmt.Errorf("%w: new requests cannot be consumed", ErrValidation)
	}
	return nil
}

// Active reports whether the request currently unlocks its field: approved
// and not yet used.
func (r EditRequest) Active() bool {
	return r.Status == StatusApproved && !r.Consumed
}

// Blocking reports whether the request blocks a new submission for the same
// (entry, field, requester) key: still pending, or approved but unused.
func (r EditRequest) Blocking() bool {
	return r.Status == StatusPending || r.Active()
}
