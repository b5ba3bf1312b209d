package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"roiboard/internal/auth"
	"roiboard/internal/ledger/memory"
	"roiboard/internal/services"
)

type identityHeaders struct {
	id   string
	role string
	name string
}

var (
	asOwner = identityHeaders{id: "owner-1", role: "OWNER", name: "Priya"}
	asStaff = identityHeaders{id: "staff-1", role: "STAFF", name: "Ravi"}
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memory.New()
	authz, err := auth.NewAuthorizer()
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}
	srv := NewServer(":0",
		services.NewEntryService(store, store, nil),
		services.NewRequestService(store, store, nil),
		authz, HeaderIdentityProvider{}, Options{DefaultPageSize: 20, MaxPageSize: 100})
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	return srv
}

func do(t *testing.T, srv *Server, method, path string, who *identityHeaders, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if who != nil {
		req.Header.Set("X-Actor-Id", who.id)
		req.Header.Set("X-Actor-Role", who.role)
		req.Header.Set("X-Actor-Name", who.name)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

const entryBody = `{
	"date": "2026-08-30",
	"totalRevenue": 5000,
	"purchaseCost": [{"item": "rice", "amount": 300}],
	"expenses": {"rent": 100, "electricity": 75}
}`

func createEntry(t *testing.T, srv *Server) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/roi", &asOwner, entryBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create entry status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &created)
	return created.ID
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/healthz", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
}

func TestServer_Identity(t *testing.T) {
	srv := newTestServer(t)

	t.Run("no headers", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/roi", nil, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("unknown role", func(t *testing.T) {
		bad := identityHeaders{id: "x", role: "WIZARD"}
		rec := do(t, srv, http.MethodGet, "/api/roi", &bad, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})
}

func TestServer_RBAC(t *testing.T) {
	srv := newTestServer(t)
	entryID := createEntry(t, srv)

	tests := []struct {
		name   string
		method string
		path   string
		who    identityHeaders
		body   string
	}{
		{"staff cannot create entries", http.MethodPost, "/api/roi", asStaff, entryBody},
		{"staff cannot replace entries", http.MethodPut, "/api/roi/" + entryID, asStaff, entryBody},
		{"staff cannot decide", http.MethodPatch, "/api/roi/edit-request/r1", asStaff, `{"status":"APPROVED"}`},
		{"owner cannot file requests", http.MethodPost, "/api/roi/edit-request", asOwner,
			`{"entryId":"` + entryID + `","fieldPath":"expenses.rent","newValue":150,"reason":"x"}`},
		{"owner cannot staff-update", http.MethodPatch, "/api/roi/" + entryID + "/staff-update", asOwner,
			`{"changes":[{"path":"expenses.rent","value":150}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, tt.method, tt.path, &tt.who, tt.body)
			if rec.Code != http.StatusForbidden {
				t.Errorf("status = %d, want 403, body %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestServer_EntryCRUD(t *testing.T) {
	srv := newTestServer(t)
	entryID := createEntry(t, srv)

	t.Run("get", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/roi/"+entryID, &asStaff, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var view struct {
			Date      string `json:"date"`
			CreatedBy string `json:"createdBy"`
		}
		decodeBody(t, rec, &view)
		if view.Date != "2026-08-30" || view.CreatedBy != asOwner.id {
			t.Errorf("view = %+v", view)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/roi/nope", &asOwner, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("list", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/roi?period=thisYear", &asOwner, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		var list []json.RawMessage
		decodeBody(t, rec, &list)
		if len(list) != 1 {
			t.Errorf("list len = %d, want 1", len(list))
		}
	})

	t.Run("list unknown period", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/roi?period=fortnight", &asOwner, "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})

	t.Run("replace", func(t *testing.T) {
		body := strings.Replace(entryBody, `"totalRevenue": 5000`, `"totalRevenue": 6000`, 1)
		rec := do(t, srv, http.MethodPut, "/api/roi/"+entryID, &asOwner, body)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}

		// replaced value visible on a fresh read despite the entry cache
		rec = do(t, srv, http.MethodGet, "/api/roi/"+entryID, &asOwner, "")
		var view struct {
			TotalRevenue string `json:"totalRevenue"`
		}
		decodeBody(t, rec, &view)
		if view.TotalRevenue != "6000" {
			t.Errorf("totalRevenue = %s, want 6000", view.TotalRevenue)
		}
	})

	t.Run("invalid date", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/roi", &asOwner,
			`{"date":"30-08-2026","totalRevenue":1}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})

	t.Run("unknown body field", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/roi", &asOwner,
			`{"date":"2026-08-30","totalRevenue":1,"profit":9}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})
}

func TestServer_EditRequestFlow(t *testing.T) {
	srv := newTestServer(t)
	entryID := createEntry(t, srv)

	// staff files the request; the server snapshots the stored old value
	rec := do(t, srv, http.MethodPost, "/api/roi/edit-request", &asStaff, fmt.Sprintf(
		`{"entryId":%q,"fieldPath":"expenses.rent","oldValue":999,"newValue":150,"reason":"misread the receipt"}`,
		entryID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create request status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID       string      `json:"id"`
		Status   string      `json:"status"`
		OldValue json.Number `json:"oldValue"`
	}
	decodeBody(t, rec, &created)
	if created.Status != "PENDING" {
		t.Errorf("status = %s, want PENDING", created.Status)
	}
	if created.OldValue.String() != "100" {
		t.Errorf("oldValue = %s, want server snapshot 100", created.OldValue)
	}

	// owner sees one pending request
	rec = do(t, srv, http.MethodGet, "/api/roi/edit-requests/pending-count", &asOwner, "")
	var count struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &count)
	if count.Count != 1 {
		t.Errorf("pending count = %d, want 1", count.Count)
	}

	rec = do(t, srv, http.MethodGet, "/api/roi/edit-requests?status=PENDING", &asOwner, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list requests status = %d", rec.Code)
	}
	var page struct {
		Items      []json.RawMessage `json:"items"`
		Total      int               `json:"total"`
		TotalPages int               `json:"totalPages"`
	}
	decodeBody(t, rec, &page)
	if page.Total != 1 || len(page.Items) != 1 {
		t.Errorf("page = %+v", page)
	}

	// owner approves
	rec = do(t, srv, http.MethodPatch, "/api/roi/edit-request/"+created.ID, &asOwner, `{"status":"approved"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("decide status = %d, body %s", rec.Code, rec.Body.String())
	}

	t.Run("re-decide conflicts", func(t *testing.T) {
		rec := do(t, srv, http.MethodPatch, "/api/roi/edit-request/"+created.ID, &asOwner, `{"status":"REJECTED"}`)
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	// staff applies the approved change
	rec = do(t, srv, http.MethodPatch, "/api/roi/"+entryID+"/staff-update", &asStaff,
		`{"changes":[{"path":"expenses.rent","value":150}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("staff-update status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Entry struct {
			Expenses struct {
				Rent string `json:"rent"`
			} `json:"expenses"`
		} `json:"entry"`
		Report struct {
			Applied  []string          `json:"applied"`
			Rejected []json.RawMessage `json:"rejected"`
		} `json:"report"`
	}
	decodeBody(t, rec, &result)
	if len(result.Report.Applied) != 1 || result.Report.Applied[0] != "expenses.rent" {
		t.Errorf("applied = %v", result.Report.Applied)
	}
	if result.Entry.Expenses.Rent != "150" {
		t.Errorf("rent = %s, want 150", result.Entry.Expenses.Rent)
	}

	t.Run("approval is single use", func(t *testing.T) {
		rec := do(t, srv, http.MethodPatch, "/api/roi/"+entryID+"/staff-update", &asStaff,
			`{"changes":[{"path":"expenses.rent","value":175}]}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var second struct {
			Report struct {
				Applied  []string `json:"applied"`
				Rejected []struct {
					Path   string `json:"path"`
					Reason string `json:"reason"`
				} `json:"rejected"`
			} `json:"report"`
		}
		decodeBody(t, rec, &second)
		if len(second.Report.Applied) != 0 {
			t.Errorf("applied = %v, want none", second.Report.Applied)
		}
		if len(second.Report.Rejected) != 1 || second.Report.Rejected[0].Reason != "STALE_APPROVAL" {
			t.Errorf("rejected = %+v", second.Report.Rejected)
		}
	})

	t.Run("entry cache dropped after apply", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/roi/"+entryID, &asStaff, "")
		var view struct {
			Expenses struct {
				Rent string `json:"rent"`
			} `json:"expenses"`
		}
		decodeBody(t, rec, &view)
		if view.Expenses.Rent != "150" {
			t.Errorf("rent = %s, want 150", view.Expenses.Rent)
		}
	})
}

func TestServer_StaffUpdate_Record(t *testing.T) {
	srv := newTestServer(t)
	entryID := createEntry(t, srv)

	// approve a rent change for staff
	rec := do(t, srv, http.MethodPost, "/api/roi/edit-request", &asStaff, fmt.Sprintf(
		`{"entryId":%q,"fieldPath":"expenses.rent","newValue":150,"reason":"correction"}`, entryID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create request status = %d", rec.Code)
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &created)
	if rec := do(t, srv, http.MethodPatch, "/api/roi/edit-request/"+created.ID, &asOwner, `{"status":"APPROVED"}`); rec.Code != http.StatusOK {
		t.Fatalf("decide status = %d", rec.Code)
	}

	// full edited record: rent changed and approved, electricity changed but not
	body := `{"record": {
		"date": "2026-08-30",
		"totalRevenue": 5000,
		"purchaseCost": [{"item": "rice", "amount": 300}],
		"expenses": {"rent": 150, "electricity": 90}
	}}`
	rec = do(t, srv, http.MethodPatch, "/api/roi/"+entryID+"/staff-update", &asStaff, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("staff-update status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Entry struct {
			Expenses struct {
				Rent        string `json:"rent"`
				Electricity string `json:"electricity"`
			} `json:"expenses"`
		} `json:"entry"`
		Report struct {
			Applied []string `json:"applied"`
		} `json:"report"`
	}
	decodeBody(t, rec, &result)
	if len(result.Report.Applied) != 1 || result.Report.Applied[0] != "expenses.rent" {
		t.Errorf("applied = %v, want only expenses.rent", result.Report.Applied)
	}
	if result.Entry.Expenses.Rent != "150" {
		t.Errorf("rent = %s", result.Entry.Expenses.Rent)
	}
	if result.Entry.Expenses.Electricity != "75" {
		t.Errorf("electricity = %s, want untouched 75", result.Entry.Expenses.Electricity)
	}

	t.Run("changes and record together rejected", func(t *testing.T) {
		rec := do(t, srv, http.MethodPatch, "/api/roi/"+entryID+"/staff-update", &asStaff,
			`{"changes":[{"path":"expenses.rent","value":1}],"record":{"date":"2026-08-30","totalRevenue":1}}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})
}

func TestServer_BadRequestInputs(t *testing.T) {
	srv := newTestServer(t)
	entryID := createEntry(t, srv)

	t.Run("malformed field path", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/api/roi/edit-request", &asStaff, fmt.Sprintf(
			`{"entryId":%q,"fieldPath":"expenses..rent","newValue":1,"reason":"x"}`, entryID))
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422, body %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("unknown status filter", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/api/roi/edit-requests?status=MAYBE", &asOwner, "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})

	t.Run("bad decision verdict", func(t *testing.T) {
		rec := do(t, srv, http.MethodPatch, "/api/roi/edit-request/whatever", &asOwner, `{"status":"MAYBE"}`)
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})

	t.Run("decide missing request", func(t *testing.T) {
		rec := do(t, srv, http.MethodPatch, "/api/roi/edit-request/nope", &asOwner, `{"status":"APPROVED"}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}
