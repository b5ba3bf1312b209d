package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"roiboard/internal/core"
	"roiboard/internal/ledger"
)

// SQLiteRepository is the durable implementation of both ledger ports:
// entries live as JSON documents, edit requests as rows whose status and
// consumed columns only change through conditional updates.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateEntry implements ledger.EntryStore.
func (r *SQLiteRepository) CreateEntry(ctx context.Context, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	row, err := entryToRow(e)
	if err != nil {
		return err
	}
	if err := r.queries.InsertEntry(ctx, row); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	slog.InfoContext(ctx, "Entry saved",
		"entry_id", e.ID,
		"entry_date", e.Date.Format("2006-01-02"),
		"created_by", e.CreatedBy)
	return nil
}

// GetEntry implements ledger.EntryStore.
func (r *SQLiteRepository) GetEntry(ctx context.Context, id string) (core.Entry, error) {
	row, err := r.queries.GetEntry(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, fmt.Errorf("%w: entry %s", core.ErrNotFound, id)
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry: %w", err)
	}
	return rowToEntry(row)
}

// UpdateEntry implements ledger.EntryStore.
func (r *SQLiteRepository) UpdateEntry(ctx context.Context, e core.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry doc: %w", err)
	}

	n, err := r.queries.UpdateEntry(ctx, e.ID,
		e.Date.UTC().Format("2006-01-02"), string(doc), time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: entry %s", core.ErrNotFound, e.ID)
	}
	return nil
}

// ListEntries implements ledger.EntryStore.
func (r *SQLiteRepository) ListEntries(ctx context.Context, from, to time.Time) ([]core.Entry, error) {
	fromStr, toStr := "", ""
	if !from.IsZero() {
		fromStr = from.UTC().Format("2006-01-02")
	}
	if !to.IsZero() {
		toStr = to.UTC().Format("2006-01-02")
	}

	rows, err := r.queries.ListEntries(ctx, fromStr, toStr)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	out := make([]core.Entry, 0, len(rows))
	for _, row := range rows {
		e, err := rowToEntry(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// CreateRequest implements ledger.RequestLedger. The duplicate guard and the
// insert run in one transaction so two simultaneous submissions cannot both
// pass the check.
func (r *SQLiteRepository) CreateRequest(ctx context.Context, req core.EditRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create request: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)

	blocking, err := q.CountBlockingRequests(ctx, req.EntryID, req.FieldPath, req.RequestedBy)
	if err != nil {
		return fmt.Errorf("check duplicate request: %w", err)
	}
	if blocking > 0 {
		return fmt.Errorf("%w: a pending or approved request for %s already exists",
			core.ErrValidation, req.FieldPath)
	}

	row, err := requestToRow(req)
	if err != nil {
		return err
	}
	if err := q.InsertRequest(ctx, row); err != nil {
		return fmt.Errorf("insert request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create request: %w", err)
	}

	slog.InfoContext(ctx, "Edit request created",
		"request_id", req.ID,
		"entry_id", req.EntryID,
		"field_path", req.FieldPath,
		"requested_by", req.RequestedBy)
	return nil
}

// GetRequest implements ledger.RequestLedger.
func (r *SQLiteRepository) GetRequest(ctx context.Context, id string) (core.EditRequest, error) {
	row, err := r.queries.GetRequest(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.EditRequest{}, fmt.Errorf("%w: request %s", core.ErrNotFound, id)
	}
	if err != nil {
		return core.EditRequest{}, fmt.Errorf("get request: %w", err)
	}
	return rowToRequest(row)
}

// ListRequests implements ledger.RequestLedger.
func (r *SQLiteRepository) ListRequests(ctx context.Context, f ledger.RequestFilter) (ledger.RequestPage, error) {
	// Same guard as the memory store: a zero-value filter reads page 1 at
	// the default size instead of issuing a negative OFFSET.
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = ledger.DefaultPageSize
	}

	createdFrom, createdBefore := "", ""
	if !f.StartDate.IsZero() {
		createdFrom = dayStartUTC(f.StartDate).Format(timeLayout)
	}
	if !f.EndDate.IsZero() {
		createdBefore = dayStartUTC(f.EndDate).AddDate(0, 0, 1).Format(timeLayout)
	}

	offset := (f.Page - 1) * f.PageSize
	rows, total, err := r.queries.ListRequests(ctx,
		f.Status, f.EntryID, f.RequesterID, createdFrom, createdBefore, f.PageSize, offset)
	if err != nil {
		return ledger.RequestPage{}, fmt.Errorf("list requests: %w", err)
	}

	items := make([]core.EditRequest, 0, len(rows))
	for _, row := range rows {
		req, err := rowToRequest(row)
		if err != nil {
			return ledger.RequestPage{}, err
		}
		items = append(items, req)
	}

	return ledger.RequestPage{
		Items:      items,
		Page:       f.Page,
		PageSize:   f.PageSize,
		Total:      int(total),
		TotalPages: ledger.PageCount(int(total), f.PageSize),
	}, nil
}

// CountPending implements ledger.RequestLedger.
func (r *SQLiteRepository) CountPending(ctx context.Context, requesterID string) (int, error) {
	n, err := r.queries.CountPending(ctx, requesterID)
	if err != nil {
		return 0, fmt.Errorf("count pending requests: %w", err)
	}
	return int(n), nil
}

// Decide implements ledger.RequestLedger. The status change is a conditional
// update guarded by status = PENDING; of two concurrent decisions exactly one
// sees a row to update.
func (r *SQLiteRepository) Decide(ctx context.Context, id string, d core.Decision, deciderID string) (core.EditRequest, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.EditRequest{}, fmt.Errorf("begin decide: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)

	row, err := q.GetRequest(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.EditRequest{}, fmt.Errorf("%w: request %s", core.ErrNotFound, id)
	}
	if err != nil {
		return core.EditRequest{}, fmt.Errorf("load request: %w", err)
	}

	n, err := q.DecideRequest(ctx, id, string(d), time.Now().UTC().Format(timeLayout), deciderID)
	if err != nil {
		return core.EditRequest{}, fmt.Errorf("decide request: %w", err)
	}
	if n == 0 {
		return core.EditRequest{}, fmt.Errorf("%w: request %s is %s",
			core.ErrInvalidTransition, id, row.Status)
	}

	if d == core.StatusApproved {
		if err := q.SupersedePriorApprovals(ctx, row.EntryID, row.FieldPath, row.RequestedBy, id); err != nil {
			return core.EditRequest{}, fmt.Errorf("supersede prior approvals: %w", err)
		}
	}

	updated, err := q.GetRequest(ctx, id)
	if err != nil {
		return core.EditRequest{}, fmt.Errorf("reload request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.EditRequest{}, fmt.Errorf("commit decide: %w", err)
	}

	slog.InfoContext(ctx, "Edit request decided",
		"request_id", id,
		"decision", string(d),
		"decided_by", deciderID)
	return rowToRequest(updated)
}

// Consume implements ledger.RequestLedger. The consumed flag flips through a
// conditional update that re-checks APPROVED and consumed = 0 at write time.
func (r *SQLiteRepository) Consume(ctx context.Context, id string) (core.EditRequest, error) {
	n, err := r.queries.ConsumeRequest(ctx, id)
	if err != nil {
		return core.EditRequest{}, fmt.Errorf("consume request: %w", err)
	}
	if n == 0 {
		row, err := r.queries.GetRequest(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return core.EditRequest{}, fmt.Errorf("%w: request %s", core.ErrNotFound, id)
		}
		if err != nil {
			return core.EditRequest{}, fmt.Errorf("load request: %w", err)
		}
		return core.EditRequest{}, fmt.Errorf("%w: request %s is %s (consumed=%t)",
			core.ErrInvalidTransition, id, row.Status, row.Consumed != 0)
	}

	row, err := r.queries.GetRequest(ctx, id)
	if err != nil {
		return core.EditRequest{}, fmt.Errorf("reload request: %w", err)
	}
	return rowToRequest(row)
}

// FindActiveApproval implements ledger.RequestLedger.
func (r *SQLiteRepository) FindActiveApproval(ctx context.Context, entryID, fieldPath, requesterID string) (core.EditRequest, error) {
	row, err := r.queries.FindActiveApproval(ctx, entryID, fieldPath, requesterID)
	if errors.Is(err, sql.ErrNoRows) {
		spent, err := r.queries.CountSpentApprovals(ctx, entryID, fieldPath, requesterID)
		if err != nil {
			return core.EditRequest{}, fmt.Errorf("check spent approvals: %w", err)
		}
		if spent > 0 {
			return core.EditRequest{}, fmt.Errorf("%w: approval for %s on %s",
				core.ErrStaleApproval, requesterID, fieldPath)
		}
		return core.EditRequest{}, fmt.Errorf("%w: no active approval for %s on %s",
			core.ErrNotFound, requesterID, fieldPath)
	}
	if err != nil {
		return core.EditRequest{}, fmt.Errorf("find active approval: %w", err)
	}
	return rowToRequest(row)
}

func entryToRow(e core.Entry) (entryRow, error) {
	doc, err := json.Marshal(e)
	if err != nil {
		return entryRow{}, fmt.Errorf("marshal entry doc: %w", err)
	}
	return entryRow{
		ID:        e.ID,
		EntryDate: e.Date.UTC().Format("2006-01-02"),
		Doc:       string(doc),
		CreatedBy: e.CreatedBy,
		CreatedAt: e.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt: e.UpdatedAt.UTC().Format(timeLayout),
	}, nil
}

func rowToEntry(row entryRow) (core.Entry, error) {
	var e core.Entry
	if err := json.Unmarshal([]byte(row.Doc), &e); err != nil {
		return core.Entry{}, fmt.Errorf("unmarshal entry doc %s: %w", row.ID, err)
	}
	return e, nil
}

func requestToRow(r core.EditRequest) (requestRow, error) {
	oldVal, err := json.Marshal(r.OldValue)
	if err != nil {
		return requestRow{}, fmt.Errorf("marshal old value: %w", err)
	}
	newVal, err := json.Marshal(r.NewValue)
	if err != nil {
		return requestRow{}, fmt.Errorf("marshal new value: %w", err)
	}
	return requestRow{
		ID:            r.ID,
		EntryID:       r.EntryID,
		FieldPath:     r.FieldPath,
		OldValue:      string(oldVal),
		NewValue:      string(newVal),
		Reason:        r.Reason,
		RequestedBy:   r.RequestedBy,
		RequesterName: r.RequesterName,
		Status:        string(r.Status),
		CreatedAt:     r.CreatedAt.UTC().Format(timeLayout),
	}, nil
}

func rowToRequest(row requestRow) (core.EditRequest, error) {
	req := core.EditRequest{
		ID:            row.ID,
		EntryID:       row.EntryID,
		FieldPath:     row.FieldPath,
		Reason:        row.Reason,
		RequestedBy:   row.RequestedBy,
		RequesterName: row.RequesterName,
		Status:        core.RequestStatus(row.Status),
		Consumed:      row.Consumed != 0,
		DecidedBy:     row.DecidedBy,
	}

	if err := json.Unmarshal([]byte(row.OldValue), &req.OldValue); err != nil {
		return core.EditRequest{}, fmt.Errorf("unmarshal old value for %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.NewValue), &req.NewValue); err != nil {
		return core.EditRequest{}, fmt.Errorf("unmarshal new value for %s: %w", row.ID, err)
	}

	createdAt, err := time.Parse(timeLayout, row.CreatedAt)
	if err != nil {
		return core.EditRequest{}, fmt.Errorf("parse created_at for %s: %w", row.ID, err)
	}
	req.CreatedAt = createdAt

	if row.DecidedAt.Valid && row.DecidedAt.String != "" {
		decidedAt, err := time.Parse(timeLayout, row.DecidedAt.String)
		if err != nil {
			return core.EditRequest{}, fmt.Errorf("parse decided_at for %s: %w", row.ID, err)
		}
		req.DecidedAt = &decidedAt
	}

	return req, nil
}

func dayStartUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
