package auth

import (
	"context"
	"errors"
	"fmt"

	"roiboard/internal/core"
	"roiboard/internal/fieldpath"
)

// ApprovalReader is the slice of the request ledger the field resolver
// needs: the current approved-unconsumed request for a key, if any.
type ApprovalReader interface {
	FindActiveApproval(ctx context.Context, entryID, fieldPath, requesterID string) (core.EditRequest, error)
}

// FieldAuthorizer decides whether an actor may write one field of one entry
// right now. It is pure with respect to the ledger: it reads, never writes,
// and callers must re-invoke it at the moment of write rather than cache an
// earlier answer.
type FieldAuthorizer struct {
	approvals ApprovalReader
}

func NewFieldAuthorizer(approvals ApprovalReader) *FieldAuthorizer {
	return &FieldAuthorizer{approvals: approvals}
}

// CanWrite implements the write rule: OWNER always; STAFF iff an approved,
// unconsumed request exists for (entry, path, actor); any other role never.
func (f *FieldAuthorizer) CanWrite(ctx context.Context, actor Actor, entryID string, path fieldpath.Path) (bool, error) {
	switch actor.Role {
	case RoleOwner:
		return true, nil
	case RoleStaff:
		_, err := f.approvals.FindActiveApproval(ctx, entryID, path.String(), actor.ID)
		if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrStaleApproval) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("look up approval for %s: %w", path, err)
		}
		return true, nil
	default:
		return false, nil
	}
}
