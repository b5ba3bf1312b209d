package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"roiboard/internal/amqp"
	"roiboard/internal/auth"
	"roiboard/internal/changeset"
	"roiboard/internal/core"
	"roiboard/internal/ledger"
	applog "roiboard/internal/log"
)

// Period filter names accepted by ListEntries.
const (
	PeriodLifetime  = "lifetime"
	PeriodToday     = "today"
	PeriodThisMonth = "thisMonth"
	PeriodThisYear  = "thisYear"
	PeriodCustom    = "custom"
)

type EntryService struct {
	entries  ledger.EntryStore
	requests ledger.RequestLedger
	fields   *auth.FieldAuthorizer
	events   EventPublisher
	now      func() time.Time
}

func NewEntryService(entries ledger.EntryStore, requests ledger.RequestLedger, events EventPublisher) *EntryService {
	return &EntryService{
		entries:  entries,
		requests: requests,
		fields:   auth.NewFieldAuthorizer(requests),
		events:   events,
		now:      time.Now,
	}
}

// Create validates and stores a new entry owned by actor.
func (s *EntryService) Create(ctx context.Context, actor auth.Actor, e core.Entry) (core.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.now().UTC()
	e.CreatedBy = actor.ID
	e.CreatedAt = now
	e.UpdatedAt = now
	if err := e.Validate(); err != nil {
		return core.Entry{}, err
	}
	if err := s.entries.CreateEntry(ctx, e); err != nil {
		return core.Entry{}, err
	}

	slog.InfoContext(ctx, "entry created",
		applog.FieldComponent, applog.ComponentEntry,
		applog.FieldEntryID, e.ID,
		applog.FieldEntryDate, e.Date.Format("2006-01-02"),
		applog.FieldActorID, actor.ID,
	)
	return e, nil
}

// Get returns one entry by ID.
func (s *EntryService) Get(ctx context.Context, id string) (core.Entry, error) {
	return s.entries.GetEntry(ctx, id)
}

// List returns entries in the named period, newest first. Custom periods
// need explicit bounds; named periods ignore them.
func (s *EntryService) List(ctx context.Context, period string, start, end time.Time) ([]core.Entry, error) {
	from, to, err := periodRange(period, start, end, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return s.entries.ListEntries(ctx, from, to)
}

// Replace overwrites an entry wholesale. Owner-only by policy; the route
// guard enforces that, this method just preserves the immutable fields and
// logs the field-level diff it is about to commit.
func (s *EntryService) Replace(ctx context.Context, actor auth.Actor, id string, edited core.Entry) (core.Entry, error) {
	baseline, err := s.entries.GetEntry(ctx, id)
	if err != nil {
		return core.Entry{}, err
	}

	edited.ID = baseline.ID
	edited.CreatedBy = baseline.CreatedBy
	edited.CreatedAt = baseline.CreatedAt
	edited.UpdatedAt = s.now().UTC()
	if err := edited.Validate(); err != nil {
		return core.Entry{}, err
	}

	changes, err := changeset.Build(ctx, baseline, edited, actor, s.fields)
	if err != nil {
		return core.Entry{}, err
	}
	for _, c := range changes {
		slog.InfoContext(ctx, "entry field replaced",
			applog.FieldComponent, applog.ComponentEntry,
			applog.FieldEntryID, id,
			applog.FieldFieldPath, c.Path.String(),
			applog.FieldActorID, actor.ID,
		)
	}

	if err := s.entries.UpdateEntry(ctx, edited); err != nil {
		return core.Entry{}, err
	}
	return edited, nil
}

// ApplyEdited diffs the actor's edited copy of the entry against the stored
// baseline and applies the permitted changes. This is the submit path for
// staff edits: the server decides what changed, never the client.
func (s *EntryService) ApplyEdited(ctx context.Context, actor auth.Actor, id string, edited core.Entry) (core.Entry, changeset.Report, error) {
	baseline, err := s.entries.GetEntry(ctx, id)
	if err != nil {
		return core.Entry{}, changeset.Report{}, err
	}
	changes, err := changeset.Build(ctx, baseline, edited, actor, s.fields)
	if err != nil {
		return core.Entry{}, changeset.Report{}, err
	}
	return s.applyChanges(ctx, actor, baseline, changes)
}

// ApplyChanges applies an explicit list of field writes to an entry. Changes
// the actor may not make, or whose approval was consumed first, end up in
// the report's rejected list; the rest are committed in one update.
func (s *EntryService) ApplyChanges(ctx context.Context, actor auth.Actor, id string, changes []changeset.Change) (core.Entry, changeset.Report, error) {
	baseline, err := s.entries.GetEntry(ctx, id)
	if err != nil {
		return core.Entry{}, changeset.Report{}, err
	}
	return s.applyChanges(ctx, actor, baseline, changes)
}

// applyChanges is the single write path for field-level edits. For each
// change: validate the write on a scratch copy, then for STAFF consume the
// approval (the atomic step that loses ties), and only then commit the value.
// A change that fails any step is rejected without blocking the others.
func (s *EntryService) applyChanges(ctx context.Context, actor auth.Actor, baseline core.Entry, changes []changeset.Change) (core.Entry, changeset.Report, error) {
	report := changeset.Report{
		EntryID:  baseline.ID,
		Applied:  []string{},
		Rejected: []changeset.Rejection{},
	}

	current := baseline
	var consumed []core.EditRequest
	for _, c := range changes {
		pathStr := c.Path.String()

		next, err := current.Apply(c.Path, c.Value)
		if errors.Is(err, core.ErrValidation) {
			report.Rejected = append(report.Rejected, changeset.Rejection{
				Path: pathStr, Reason: changeset.ReasonInvalidValue, Detail: err.Error(),
			})
			continue
		}
		if err != nil {
			report.Rejected = append(report.Rejected, changeset.Rejection{
				Path: pathStr, Reason: changeset.ReasonInvalidPath, Detail: err.Error(),
			})
			continue
		}

		if actor.Role != auth.RoleOwner {
			approval, err := s.requests.FindActiveApproval(ctx, baseline.ID, pathStr, actor.ID)
			if errors.Is(err, core.ErrStaleApproval) {
				report.Rejected = append(report.Rejected, changeset.Rejection{
					Path: pathStr, Reason: changeset.ReasonStaleApproval,
					Detail: "approval was already used or revoked",
				})
				continue
			}
			if errors.Is(err, core.ErrNotFound) {
				report.Rejected = append(report.Rejected, changeset.Rejection{
					Path: pathStr, Reason: changeset.ReasonForbidden,
					Detail: "no approved request for this field",
				})
				continue
			}
			if err != nil {
				return core.Entry{}, changeset.Report{}, fmt.Errorf("look up approval for %s: %w", pathStr, err)
			}

			used, err := s.requests.Consume(ctx, approval.ID)
			if errors.Is(err, core.ErrInvalidTransition) || errors.Is(err, core.ErrNotFound) {
				report.Rejected = append(report.Rejected, changeset.Rejection{
					Path: pathStr, Reason: changeset.ReasonStaleApproval,
					Detail: "approval was already used or revoked",
				})
				continue
			}
			if err != nil {
				return core.Entry{}, changeset.Report{}, fmt.Errorf("consume approval %s: %w", approval.ID, err)
			}
			consumed = append(consumed, used)
		}

		current = next
		report.Applied = append(report.Applied, pathStr)
	}

	if len(report.Applied) > 0 {
		current.UpdatedAt = s.now().UTC()
		if err := s.entries.UpdateEntry(ctx, current); err != nil {
			return core.Entry{}, changeset.Report{}, err
		}
	}

	slog.InfoContext(ctx, "change-set applied",
		applog.FieldComponent, applog.ComponentEntry,
		applog.FieldEntryID, baseline.ID,
		applog.FieldActorID, actor.ID,
		"applied", len(report.Applied),
		"rejected", len(report.Rejected),
	)
	for _, req := range consumed {
		s.publishConsumed(ctx, req)
	}
	return current, report, nil
}

func (s *EntryService) publishConsumed(ctx context.Context, req core.EditRequest) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRequestEvent(ctx, amqp.EventRequestConsumed, req); err != nil {
		slog.WarnContext(ctx, "failed to publish request event",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldEditRequestID, req.ID,
			applog.FieldError, err.Error(),
		)
	}
}

// periodRange translates a period name into inclusive date bounds. Zero
// bounds mean unbounded on that side.
func periodRange(period string, start, end, now time.Time) (time.Time, time.Time, error) {
	switch period {
	case "", PeriodLifetime:
		return time.Time{}, time.Time{}, nil
	case PeriodToday:
		day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return day, day, nil
	case PeriodThisMonth:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return first, first.AddDate(0, 1, -1), nil
	case PeriodThisYear:
		first := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return first, time.Date(now.Year(), time.December, 31, 0, 0, 0, 0, time.UTC), nil
	case PeriodCustom:
		if start.IsZero() && end.IsZero() {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: custom period needs a start or end date", core.ErrValidation)
		}
		return start, end, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown period %q", core.ErrValidation, period)
	}
}
