package core

import (
	"errors"
	"testing"
	"time"
)

func validRequest() EditRequest {
	return EditRequest{
		ID:          "r1",
		EntryID:     "e1",
		FieldPath:   "expenses.rent",
		OldValue:    NumberFromInt(100),
		NewValue:    NumberFromInt(150),
		Reason:      "rent went up",
		RequestedBy: "staff-1",
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
}

func TestEditRequest_Validate(t *testing.T) {
	if err := validRequest().Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*EditRequest)
	}{
		{"empty id", func(r *EditRequest) { r.ID = "" }},
		{"empty entry id", func(r *EditRequest) { r.EntryID = " " }},
		{"empty field path", func(r *EditRequest) { r.FieldPath = "" }},
		{"blank reason", func(r *EditRequest) { r.Reason = "   " }},
		{"empty requester", func(r *EditRequest) { r.RequestedBy = "" }},
		{"non-pending status", func(r *EditRequest) { r.Status = StatusApproved }},
		{"pre-consumed", func(r *EditRequest) { r.Consumed = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRequest()
			tt.mutate(&r)
			if err := r.Validate(); !errors.Is(err, ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestEditRequest_ActiveAndBlocking(t *testing.T) {
	tests := []struct {
		name     string
		status   RequestStatus
		consumed bool
		active   bool
		blocking bool
	}{
		{"pending", StatusPending, false, false, true},
		{"approved unconsumed", StatusApproved, false, true, true},
		{"approved consumed", StatusApproved, true, false, false},
		{"rejected", StatusRejected, false, false, false},
		{"superseded", StatusSuperseded, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := EditRequest{Status: tt.status, Consumed: tt.consumed}
			if got := r.Active(); got != tt.active {
				t.Errorf("Active() = %t, want %t", got, tt.active)
			}
			if got := r.Blocking(); got != tt.blocking {
				t.Errorf("Blocking() = %t, want %t", got, tt.blocking)
			}
		})
	}
}

func TestParseDecision(t *testing.T) {
	for _, ok := range []string{"APPROVED", "REJECTED"} {
		if _, err := ParseDecision(ok); err != nil {
			t.Errorf("ParseDecision(%s): %v", ok, err)
		}
	}
	for _, bad := range []string{"PENDING", "SUPERSEDED", "approved", "", "MAYBE"} {
		if _, err := ParseDecision(bad); !errors.Is(err, ErrValidation) {
			t.Errorf("ParseDecision(%q) error = %v, want ErrValidation", bad, err)
		}
	}
}
