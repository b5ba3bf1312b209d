package http

import (
	"fmt"
	"net/http"
	"strings"

	"roiboard/internal/auth"
	"roiboard/internal/changeset"
	"roiboard/internal/core"
	"roiboard/internal/fieldpath"
)

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	if !s.authz.Can(actor, auth.ObjectEntry, auth.ActionCreate) {
		writeForbidden(w)
		return
	}

	var payload entryPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	entry, err := payload.toEntry()
	if err != nil {
		writeError(w, err)
		return
	}

	created, err := s.entries.Create(r.Context(), actor, entry)
	if err != nil {
		writeError(w, err)
		return
	}

	s.listCache.Purge()
	writeJSON(w, http.StatusCreated, viewOfEntry(created))
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	if !s.authz.Can(actor, auth.ObjectEntry, auth.ActionList) {
		writeForbidden(w)
		return
	}

	q := r.URL.Query()
	period := strings.TrimSpace(q.Get("period"))
	start, err := parseDateParam(q.Get("start"))
	if err != nil {
		writeError(w, err)
		return
	}
	end, err := parseDateParam(q.Get("end"))
	if err != nil {
		writeError(w, err)
		return
	}

	cacheKey := period + "|" + q.Get("start") + "|" + q.Get("end")
	if cached, found := s.listCache.Get(cacheKey); found {
		views := make([]entryView, 0, len(cached))
		for _, e := range cached {
			views = append(views, viewOfEntry(e))
		}
		writeJSON(w, http.StatusOK, views)
		return
	}

	entries, err := s.entries.List(r.Context(), period, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	s.listCache.Set(cacheKey, entries)

	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, viewOfEntry(e))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	if !s.authz.Can(actor, auth.ObjectEntry, auth.ActionRead) {
		writeForbidden(w)
		return
	}

	id := r.PathValue("id")
	if cached, found := s.entryCache.Get(id); found {
		writeJSON(w, http.StatusOK, viewOfEntry(cached))
		return
	}

	entry, err := s.entries.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	s.entryCache.Set(id, entry)
	writeJSON(w, http.StatusOK, viewOfEntry(entry))
}

func (s *Server) handleReplaceEntry(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	if !s.authz.Can(actor, auth.ObjectEntry, auth.ActionReplace) {
		writeForbidden(w)
		return
	}

	var payload entryPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	edited, err := payload.toEntry()
	if err != nil {
		writeError(w, err)
		return
	}

	id := r.PathValue("id")
	updated, err := s.entries.Replace(r.Context(), actor, id, edited)
	if err != nil {
		writeError(w, err)
		return
	}

	s.invalidateEntry(id)
	writeJSON(w, http.StatusOK, viewOfEntry(updated))
}

// staffUpdateResponse pairs the post-apply document with the per-field
// outcome report.
type staffUpdateResponse struct {
	Entry  entryView        `json:"entry"`
	Report changeset.Report `json:"report"`
}

func (s *Server) handleStaffUpdate(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	if !s.authz.Can(actor, auth.ObjectEntry, auth.ActionApply) {
		writeForbidden(w)
		return
	}

	var payload applyPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	if payload.Record != nil && len(payload.Changes) > 0 {
		writeError(w, fmt.Errorf("%w: send either changes or record, not both", core.ErrValidation))
		return
	}

	id := r.PathValue("id")

	var (
		entry  core.Entry
		report changeset.Report
		err    error
	)
	if payload.Record != nil {
		var edited core.Entry
		edited, err = payload.Record.toEntry()
		if err != nil {
			writeError(w, err)
			return
		}
		edited.ID = id
		entry, report, err = s.entries.ApplyEdited(r.Context(), actor, id, edited)
	} else {
		changes, rejected := parseChanges(payload.Changes)
		entry, report, err = s.entries.ApplyChanges(r.Context(), actor, id, changes)
		if err == nil {
			report.Rejected = append(report.Rejected, rejected...)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}

	s.invalidateEntry(id)
	writeJSON(w, http.StatusOK, staffUpdateResponse{Entry: viewOfEntry(entry), Report: report})
}

// parseChanges converts wire changes into domain changes, diverting the
// unparseable ones into rejections so one bad path does not fail the batch.
func parseChanges(payloads []changePayload) ([]changeset.Change, []changeset.Rejection) {
	var (
		changes  []changeset.Change
		rejected []changeset.Rejection
	)
	for _, p := range payloads {
		path, err := fieldpath.Parse(p.Path)
		if err != nil {
			rejected = append(rejected, changeset.Rejection{
				Path:   p.Path,
				Reason: changeset.ReasonInvalidPath,
				Detail: err.Error(),
			})
			continue
		}
		changes = append(changes, changeset.Change{Path: path, Value: p.Value})
	}
	return changes, rejected
}
