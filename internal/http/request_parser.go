// Package http exposes the REST surface of the dashboard: entry CRUD for
// the owner, the edit-request queue, and the gated staff apply path.
//
// This file holds the wire DTOs and the parsing helpers that turn request
// bodies and query strings into domain inputs.
package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"roiboard/internal/core"
	"roiboard/internal/ledger"
)

const apiDateLayout = "2006-01-02"

// entryPayload is the inbound entry document. Dates travel as YYYY-MM-DD
// strings; amounts as JSON numbers or numeric strings, both accepted by
// decimal.Decimal.
type entryPayload struct {
	Date         string              `json:"date"`
	TotalRevenue decimal.Decimal     `json:"totalRevenue"`
	PurchaseCost []core.PurchaseItem `json:"purchaseCost"`
	Expenses     core.Expenses       `json:"expenses"`
}

func (p entryPayload) toEntry() (core.Entry, error) {
	date, err := time.ParseInLocation(apiDateLayout, strings.TrimSpace(p.Date), time.UTC)
	if err != nil {
		return core.Entry{}, fmt.Errorf("%w: date must be YYYY-MM-DD", core.ErrValidation)
	}
	return core.Entry{
		Date:         date,
		TotalRevenue: p.TotalRevenue,
		PurchaseCost: p.PurchaseCost,
		Expenses:     p.Expenses,
	}, nil
}

// entryView is the outbound entry document.
type entryView struct {
	ID           string              `json:"id"`
	Date         string              `json:"date"`
	TotalRevenue decimal.Decimal     `json:"totalRevenue"`
	PurchaseCost []core.PurchaseItem `json:"purchaseCost"`
	Expenses     core.Expenses       `json:"expenses"`
	CreatedBy    string              `json:"createdBy"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

func viewOfEntry(e core.Entry) entryView {
	return entryView{
		ID:           e.ID,
		Date:         e.Date.Format(apiDateLayout),
		TotalRevenue: e.TotalRevenue,
		PurchaseCost: e.PurchaseCost,
		Expenses:     e.Expenses,
		CreatedBy:    e.CreatedBy,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

// createRequestPayload is the STAFF edit-request submission. The oldValue is
// advisory; the server snapshots the stored value itself.
type createRequestPayload struct {
	EntryID   string     `json:"entryId"`
	FieldPath string     `json:"fieldPath"`
	OldValue  core.Value `json:"oldValue"`
	NewValue  core.Value `json:"newValue"`
	Reason    string     `json:"reason"`
}

// decidePayload carries the owner's verdict on a pending request.
type decidePayload struct {
	Status string `json:"status"`
}

// changePayload is one explicit field write in a staff-update body.
type changePayload struct {
	Path  string     `json:"path"`
	Value core.Value `json:"value"`
}

// applyPayload is the staff-update body. Either an explicit change list or a
// full edited record to diff server-side; sending both is rejected.
type applyPayload struct {
	Changes []changePayload `json:"changes"`
	Record  *entryPayload   `json:"record"`
}

// requestView is the outbound edit request.
type requestView struct {
	ID            string     `json:"id"`
	EntryID       string     `json:"entryId"`
	FieldPath     string     `json:"fieldPath"`
	OldValue      core.Value `json:"oldValue"`
	NewValue      core.Value `json:"newValue"`
	Reason        string     `json:"reason"`
	RequestedBy   string     `json:"requestedBy"`
	RequesterName string     `json:"requesterName,omitempty"`
	Status        string     `json:"status"`
	Consumed      bool       `json:"consumed"`
	CreatedAt     time.Time  `json:"createdAt"`
	DecidedAt     *time.Time `json:"decidedAt,omitempty"`
	DecidedBy     string     `json:"decidedBy,omitempty"`
}

func viewOfRequest(r core.EditRequest) requestView {
	return requestView{
		ID:            r.ID,
		EntryID:       r.EntryID,
		FieldPath:     r.FieldPath,
		OldValue:      r.OldValue,
		NewValue:      r.NewValue,
		Reason:        r.Reason,
		RequestedBy:   r.RequestedBy,
		RequesterName: r.RequesterName,
		Status:        string(r.Status),
		Consumed:      r.Consumed,
		CreatedAt:     r.CreatedAt,
		DecidedAt:     r.DecidedAt,
		DecidedBy:     r.DecidedBy,
	}
}

func viewOfRequests(rs []core.EditRequest) []requestView {
	views := make([]requestView, 0, len(rs))
	for _, r := range rs {
		views = append(views, viewOfRequest(r))
	}
	return views
}

// decodeJSON strictly decodes the request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", core.ErrValidation, err)
	}
	return nil
}

// parseRequestFilter builds a queue filter from query parameters. Unknown
// statuses are rejected rather than silently matching nothing.
func parseRequestFilter(r *http.Request) (ledger.RequestFilter, error) {
	q := r.URL.Query()
	f := ledger.RequestFilter{
		Status:      strings.ToUpper(strings.TrimSpace(q.Get("status"))),
		EntryID:     strings.TrimSpace(q.Get("entryId")),
		RequesterID: strings.TrimSpace(q.Get("requesterId")),
	}

	switch f.Status {
	case "", "ALL",
		string(core.StatusPending), string(core.StatusApproved),
		string(core.StatusRejected), string(core.StatusSuperseded):
	default:
		return ledger.RequestFilter{}, fmt.Errorf("%w: unknown status %q", core.ErrValidation, f.Status)
	}

	var err error
	if f.StartDate, err = parseDateParam(q.Get("start")); err != nil {
		return ledger.RequestFilter{}, err
	}
	if f.EndDate, err = parseDateParam(q.Get("end")); err != nil {
		return ledger.RequestFilter{}, err
	}

	if v := strings.TrimSpace(q.Get("page")); v != "" {
		if f.Page, err = strconv.Atoi(v); err != nil {
			return ledger.RequestFilter{}, fmt.Errorf("%w: page must be an integer", core.ErrValidation)
		}
	}
	if v := strings.TrimSpace(q.Get("pageSize")); v != "" {
		if f.PageSize, err = strconv.Atoi(v); err != nil {
			return ledger.RequestFilter{}, fmt.Errorf("%w: pageSize must be an integer", core.ErrValidation)
		}
	}

	return f, nil
}

// parseDateParam parses an optional YYYY-MM-DD query value.
func parseDateParam(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(apiDateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD, got %q", core.ErrValidation, v)
	}
	return t, nil
}
