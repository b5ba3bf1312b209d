package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"roiboard/internal/amqp"
	"roiboard/internal/auth"
	"roiboard/internal/core"
	"roiboard/internal/fieldpath"
	"roiboard/internal/ledger"
	applog "roiboard/internal/log"
)

// EventPublisher pushes request lifecycle events to the message broker.
// A nil publisher disables eventing without changing request semantics.
type EventPublisher interface {
	PublishRequestEvent(ctx context.Context, event string, req core.EditRequest) error
}

// CreateRequestInput carries the caller-supplied portion of a new edit request.
// The old value sent by the client is advisory only; the service re-reads the
// current value from the stored entry so the approval snapshot is authoritative.
type CreateRequestInput struct {
	EntryID   string
	FieldPath string
	OldValue  core.Value
	NewValue  core.Value
	Reason    string
}

type RequestService struct {
	entries  ledger.EntryStore
	requests ledger.RequestLedger
	events   EventPublisher
}

func NewRequestService(entries ledger.EntryStore, requests ledger.RequestLedger, events EventPublisher) *RequestService {
	return &RequestService{entries: entries, requests: requests, events: events}
}

// Create validates and records a new PENDING edit request on behalf of actor.
func (s *RequestService) Create(ctx context.Context, actor auth.Actor, in CreateRequestInput) (core.EditRequest, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return core.EditRequest{}, fmt.Errorf("%w: reason is required", core.ErrValidation)
	}
	path, err := fieldpath.Parse(in.FieldPath)
	if err != nil {
		return core.EditRequest{}, fmt.Errorf("%w: %v", core.ErrValidation, err)
	}

	entry, err := s.entries.GetEntry(ctx, in.EntryID)
	if err != nil {
		return core.EditRequest{}, fmt.Errorf("load entry %s: %w", in.EntryID, err)
	}
	current, err := entry.Resolve(path)
	if err != nil {
		return core.EditRequest{}, fmt.Errorf("%w: field %s does not exist on entry", core.ErrValidation, path)
	}

	now := time.Now().UTC()
	req := core.EditRequest{
		ID:            uuid.NewString(),
		EntryID:       entry.ID,
		FieldPath:     path.String(),
		OldValue:      current,
		NewValue:      in.NewValue,
		Reason:        strings.TrimSpace(in.Reason),
		RequestedBy:   actor.ID,
		RequesterName: actor.Name,
		Status:        core.StatusPending,
		CreatedAt:     now,
	}
	if err := req.Validate(); err != nil {
		return core.EditRequest{}, err
	}

	if err := s.requests.CreateRequest(ctx, req); err != nil {
		return core.EditRequest{}, err
	}

	slog.InfoContext(ctx, "edit request created",
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldEditRequestID, req.ID,
		applog.FieldEntryID, req.EntryID,
		applog.FieldFieldPath, req.FieldPath,
		applog.FieldActorID, actor.ID,
	)
	s.publish(ctx, amqp.EventRequestCreated, req)
	return req, nil
}

// Get returns a single request by ID.
func (s *RequestService) Get(ctx context.Context, id string) (core.EditRequest, error) {
	return s.requests.GetRequest(ctx, id)
}

// List returns a page of requests. STAFF callers are always scoped to their
// own requests regardless of the filter they send.
func (s *RequestService) List(ctx context.Context, actor auth.Actor, filter ledger.RequestFilter) (ledger.RequestPage, error) {
	if actor.Role == auth.RoleStaff {
		filter.RequesterID = actor.ID
	}
	return s.requests.ListRequests(ctx, filter)
}

// CountPending returns the number of PENDING requests, optionally scoped to a
// requester. STAFF callers only ever see their own count.
func (s *RequestService) CountPending(ctx context.Context, actor auth.Actor, requesterID string) (int, error) {
	if actor.Role == auth.RoleStaff {
		requesterID = actor.ID
	}
	return s.requests.CountPending(ctx, requesterID)
}

// Decide transitions a PENDING request to APPROVED or REJECTED. The HTTP
// layer enforces that only owners reach this method; the ledger enforces the
// state machine itself.
func (s *RequestService) Decide(ctx context.Context, actor auth.Actor, requestID string, decision core.Decision) (core.EditRequest, error) {
	req, err := s.requests.Decide(ctx, requestID, decision, actor.ID)
	if err != nil {
		return core.EditRequest{}, err
	}

	slog.InfoContext(ctx, "edit request decided",
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldEditRequestID, req.ID,
		applog.FieldEntryID, req.EntryID,
		applog.FieldStatus, string(req.Status),
		applog.FieldActorID, actor.ID,
	)
	s.publish(ctx, amqp.EventRequestDecided, req)
	return req, nil
}

func (s *RequestService) publish(ctx context.Context, event string, req core.EditRequest) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRequestEvent(ctx, event, req); err != nil {
		slog.WarnContext(ctx, "failed to publish request event",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldEditRequestID, req.ID,
			applog.FieldError, err.Error(),
		)
	}
}
