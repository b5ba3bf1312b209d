// Package memory is the in-process implementation of the ledger ports. It
// backs the memory data backend and the test suites.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"roiboard/internal/core"
	"roiboard/internal/ledger"
)

// Store holds entries and edit requests behind one mutex. All transition
// operations are check-and-set under the lock, which gives the same
// one-success-one-failure guarantee the SQLite backend gets from
// conditional updates.
type Store struct {
	mu       sync.Mutex
	entries  map[string]core.Entry
	requests map[string]core.EditRequest
}

func New() *Store {
	return &Store{
		entries:  make(map[string]core.Entry),
		requests: make(map[string]core.EditRequest),
	}
}

// CreateEntry stores a validated entry.
func (s *Store) CreateEntry(_ context.Context, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[e.ID]; exists {
		return fmt.Errorf("%w: entry %s already exists", core.ErrValidation, e.ID)
	}
	s.entries[e.ID] = e.Clone()
	return nil
}

func (s *Store) GetEntry(_ context.Context, id string) (core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return core.Entry{}, fmt.Errorf("%w: entry %s", core.ErrNotFound, id)
	}
	return e.Clone(), nil
}

func (s *Store) UpdateEntry(_ context.Context, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; !ok {
		return fmt.Errorf("%w: entry %s", core.ErrNotFound, e.ID)
	}
	s.entries[e.ID] = e.Clone()
	return nil
}

func (s *Store) ListEntries(_ context.Context, from, to time.Time) ([]core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !from.IsZero() && e.Date.Before(from) {
			continue
		}
		if !to.IsZero() && e.Date.After(to) {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

// CreateRequest enforces the duplicate-submission guard: one blocking
// request per (entry, field, requester) key at a time.
func (s *Store) CreateRequest(_ context.Context, r core.EditRequest) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.requests {
		if existing.EntryID == r.EntryID &&
			existing.FieldPath == r.FieldPath &&
			existing.RequestedBy == r.RequestedBy &&
			existing.Blocking() {
			return fmt.Errorf("%w: a %s request for %s already exists",
				core.ErrValidation, existing.Status, r.FieldPath)
		}
	}

	s.requests[r.ID] = r
	return nil
}

func (s *Store) GetRequest(_ context.Context, id string) (core.EditRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return core.EditRequest{}, fmt.Errorf("%w: request %s", core.ErrNotFound, id)
	}
	return r, nil
}

func (s *Store) ListRequests(_ context.Context, f ledger.RequestFilter) (ledger.RequestPage, error) {
	// Guard direct callers that skip filter normalization; a zero-value
	// filter means page 1 at the default size, never a negative slice bound.
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = ledger.DefaultPageSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]core.EditRequest, 0, len(s.requests))
	for _, r := range s.requests {
		if f.Matches(r) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (f.Page - 1) * f.PageSize
	if start > total {
		start = total
	}
	end := start + f.PageSize
	if end > total {
		end = total
	}

	return ledger.RequestPage{
		Items:      matched[start:end],
		Page:       f.Page,
		PageSize:   f.PageSize,
		Total:      total,
		TotalPages: ledger.PageCount(total, f.PageSize),
	}, nil
}

func (s *Store) CountPending(_ context.Context, requesterID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.requests {
		if r.Status != core.StatusPending {
			continue
		}
		if requesterID != "" && r.RequestedBy != requesterID {
			continue
		}
		n++
	}
	return n, nil
}

// Decide is the PENDING -> APPROVED|REJECTED transition. The prior-state
// check and the write happen under one lock acquisition, so a concurrent
// second call observes the terminal state and fails.
func (s *Store) Decide(_ context.Context, id string, d core.Decision, deciderID string) (core.EditRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return core.EditRequest{}, fmt.Errorf("%w: request %s", core.ErrNotFound, id)
	}
	if r.Status != core.StatusPending {
		return core.EditRequest{}, fmt.Errorf("%w: request %s is %s", core.ErrInvalidTransition, id, r.Status)
	}

	if d == core.StatusApproved {
		// Retire any prior live approval for the same key so at most one
		// unconsumed APPROVED request exists per (entry, field, requester).
		for prevID, prev := range s.requests {
			if prevID != id &&
				prev.EntryID == r.EntryID &&
				prev.FieldPath == r.FieldPath &&
				prev.RequestedBy == r.RequestedBy &&
				prev.Active() {
				prev.Status = core.StatusSuperseded
				s.requests[prevID] = prev
			}
		}
	}

	now := time.Now()
	r.Status = d
	r.DecidedAt = &now
	r.DecidedBy = deciderID
	s.requests[id] = r
	return r, nil
}

// Consume is the one-time use of an approval. Re-validates consumed=false at
// call time; a request already used, superseded, or never approved fails
// with ErrInvalidTransition.
func (s *Store) Consume(_ context.Context, id string) (core.EditRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.requests[id]
	if !ok {
		return core.EditRequest{}, fmt.Errorf("%w: request %s", core.ErrNotFound, id)
	}
	if !r.Active() {
		return core.EditRequest{}, fmt.Errorf("%w: request %s is %s (consumed=%t)",
			core.ErrInvalidTransition, id, r.Status, r.Consumed)
	}

	r.Consumed = true
	s.requests[id] = r
	return r, nil
}

func (s *Store) FindActiveApproval(_ context.Context, entryID, fieldPath, requesterID string) (core.EditRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	spent := false
	for _, r := range s.requests {
		if r.EntryID != entryID || r.FieldPath != fieldPath || r.RequestedBy != requesterID {
			continue
		}
		if r.Active() {
			return r, nil
		}
		if (r.Status == core.StatusApproved && r.Consumed) || r.Status == core.StatusSuperseded {
			spent = true
		}
	}
	if spent {
		return core.EditRequest{}, fmt.Errorf("%w: approval for %s on %s",
			core.ErrStaleApproval, requesterID, fieldPath)
	}
	return core.EditRequest{}, fmt.Errorf("%w: no active approval for %s on %s",
		core.ErrNotFound, requesterID, fieldPath)
}
