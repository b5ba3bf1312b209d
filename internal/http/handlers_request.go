package http

import (
	"net/http"
	"strings"

	"roiboard/internal/auth"
	"roiboard/internal/core"
	"roiboard/internal/ledger"
	applog "roiboard/internal/log"
	"roiboard/internal/services"
)

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	if !s.authz.Can(actor, auth.ObjectRequest, auth.ActionCreate) {
		writeForbidden(w)
		return
	}

	var payload createRequestPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	req, err := s.requests.Create(r.Context(), actor, services.CreateRequestInput{
		EntryID:   payload.EntryID,
		FieldPath: payload.FieldPath,
		OldValue:  payload.OldValue,
		NewValue:  payload.NewValue,
		Reason:    payload.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogEditRequest(r.Context(), applog.OpCreate, req.ID, req.EntryID, req.FieldPath, string(req.Status))
	writeJSON(w, http.StatusCreated, viewOfRequest(req))
}

// requestPageView is the paginated queue response.
type requestPageView struct {
	Items      []requestView `json:"items"`
	Page       int           `json:"page"`
	PageSize   int           `json:"pageSize"`
	Total      int           `json:"total"`
	TotalPages int           `json:"totalPages"`
}

func viewOfPage(p ledger.RequestPage) requestPageView {
	return requestPageView{
		Items:      viewOfRequests(p.Items),
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      p.Total,
		TotalPages: p.TotalPages,
	}
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	if !s.authz.Can(actor, auth.ObjectRequest, auth.ActionList) {
		writeForbidden(w)
		return
	}

	filter, err := parseRequestFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}
	filter = filter.Normalize(s.defaultPageSize, s.maxPageSize)

	page, err := s.requests.List(r.Context(), actor, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOfPage(page))
}

func (s *Server) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	if !s.authz.Can(actor, auth.ObjectRequest, auth.ActionCount) {
		writeForbidden(w)
		return
	}

	requesterID := strings.TrimSpace(r.URL.Query().Get("requesterId"))
	count, err := s.requests.CountPending(r.Context(), actor, requesterID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (s *Server) handleDecideRequest(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	if !s.authz.Can(actor, auth.ObjectRequest, auth.ActionDecide) {
		writeForbidden(w)
		return
	}

	var payload decidePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	decision, err := core.ParseDecision(strings.ToUpper(strings.TrimSpace(payload.Status)))
	if err != nil {
		writeError(w, err)
		return
	}

	req, err := s.requests.Decide(r.Context(), actor, r.PathValue("id"), decision)
	if err != nil {
		writeError(w, err)
		return
	}

	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogEditRequest(r.Context(), applog.OpDecide, req.ID, req.EntryID, req.FieldPath, string(req.Status))
	writeJSON(w, http.StatusOK, viewOfRequest(req))
}
