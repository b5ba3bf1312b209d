// Package changeset diffs an actor's edited entry against the stored
// baseline and keeps only the changes that are both non-trivial and
// permitted. The result is what the apply path actually writes.
package changeset

import (
	"context"
	"fmt"
	"sort"

	"roiboard/internal/auth"
	"roiboard/internal/core"
	"roiboard/internal/fieldpath"
)

// Change is one field write: the normalized path and the new value.
type Change struct {
	Path  fieldpath.Path
	Value core.Value
}

// Build walks every leaf present in both records and emits the changes where
// the edited value differs from the baseline and the actor may write the
// path. Changed-but-forbidden leaves are dropped silently: the policy is
// best-effort partial apply, not all-or-nothing. The result is ordered
// lexicographically by path, and an empty result is a valid no-op.
func Build(ctx context.Context, baseline, edited core.Entry, actor auth.Actor, fields *auth.FieldAuthorizer) ([]Change, error) {
	editedLeaves := make(map[string]struct{})
	for _, p := range edited.Leaves() {
		editedLeaves[p.String()] = struct{}{}
	}

	var out []Change
	for _, p := range baseline.Leaves() {
		if _, shared := editedLeaves[p.String()]; !shared {
			continue
		}

		oldVal, err := baseline.Resolve(p)
		if err != nil {
			return nil, fmt.Errorf("resolve baseline %s: %w", p, err)
		}
		newVal, err := edited.Resolve(p)
		if err != nil {
			return nil, fmt.Errorf("resolve edited %s: %w", p, err)
		}
		if oldVal.Equal(newVal) {
			continue
		}

		ok, err := fields.CanWrite(ctx, actor, baseline.ID, p)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		out = append(out, Change{Path: p, Value: newVal})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Path.String() < out[j].Path.String()
	})
	return out, nil
}

// RejectionReason distinguishes "never had permission" from "had it, but it
// was used or revoked first".
type RejectionReason string

const (
	ReasonForbidden     RejectionReason = "FORBIDDEN"
	ReasonStaleApproval RejectionReason = "STALE_APPROVAL"
	ReasonInvalidPath   RejectionReason = "INVALID_PATH"
	ReasonInvalidValue  RejectionReason = "INVALID_VALUE"
)

// Rejection is one change the apply operation refused.
type Rejection struct {
	Path   string          `json:"path"`
	Reason RejectionReason `json:"reason"`
	Detail string          `json:"detail,omitempty"`
}

// Report is the outcome of applying a change-set. Partial success is a
// normal outcome: applied and rejected paths are listed side by side.
type Report struct {
	EntryID  string      `json:"entryId"`
	Applied  []string    `json:"applied"`
	Rejected []Rejection `json:"rejected"`
}
