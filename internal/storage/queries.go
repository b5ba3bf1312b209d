package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// Queries wraps hand-written SQL for the entries and edit_requests tables.
// Methods accept either the pooled DB or a transaction via DBTX.
type Queries struct {
	db DBTX
}

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const timeLayout = time.RFC3339Nano

type entryRow struct {
	ID        string
	EntryDate string
	Doc       string
	CreatedBy string
	CreatedAt string
	UpdatedAt string
}

type requestRow struct {
	ID            string
	EntryID       string
	FieldPath     string
	OldValue      string
	NewValue      string
	Reason        string
	RequestedBy   string
	RequesterName string
	Status        string
	Consumed      int64
	CreatedAt     string
	DecidedAt     sql.NullString
	DecidedBy     string
}

const insertEntry = `
INSERT INTO entries (id, entry_date, doc, created_by, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertEntry(ctx context.Context, row entryRow) error {
	_, err := q.db.ExecContext(ctx, insertEntry,
		row.ID, row.EntryDate, row.Doc, row.CreatedBy, row.CreatedAt, row.UpdatedAt)
	return err
}

const getEntry = `
SELECT id, entry_date, doc, created_by, created_at, updated_at
FROM entries WHERE id = ?
`

func (q *Queries) GetEntry(ctx context.Context, id string) (entryRow, error) {
	var row entryRow
	err := q.db.QueryRowContext(ctx, getEntry, id).Scan(
		&row.ID, &row.EntryDate, &row.Doc, &row.CreatedBy, &row.CreatedAt, &row.UpdatedAt)
	return row, err
}

const updateEntry = `
UPDATE entries SET entry_date = ?, doc = ?, updated_at = ? WHERE id = ?
`

func (q *Queries) UpdateEntry(ctx context.Context, id, entryDate, doc, updatedAt string) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateEntry, entryDate, doc, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listEntries = `
SELECT id, entry_date, doc, created_by, created_at, updated_at
FROM entries
WHERE (? = '' OR entry_date >= ?) AND (? = '' OR entry_date <= ?)
ORDER BY entry_date DESC, id DESC
`

func (q *Queries) ListEntries(ctx context.Context, from, to string) ([]entryRow, error) {
	rows, err := q.db.QueryContext(ctx, listEntries, from, from, to, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entryRow
	for rows.Next() {
		var row entryRow
		if err := rows.Scan(&row.ID, &row.EntryDate, &row.Doc, &row.CreatedBy, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const insertRequest = `
INSERT INTO edit_requests
    (id, entry_id, field_path, old_value, new_value, reason,
     requested_by, requester_name, status, consumed, created_at, decided_by)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, '')
`

func (q *Queries) InsertRequest(ctx context.Context, row requestRow) error {
	_, err := q.db.ExecContext(ctx, insertRequest,
		row.ID, row.EntryID, row.FieldPath, row.OldValue, row.NewValue, row.Reason,
		row.RequestedBy, row.RequesterName, row.Status, row.CreatedAt)
	return err
}

const getRequest = `
SELECT id, entry_id, field_path, old_value, new_value, reason,
       requested_by, requester_name, status, consumed, created_at, decided_at, decided_by
FROM edit_requests WHERE id = ?
`

func (q *Queries) GetRequest(ctx context.Context, id string) (requestRow, error) {
	return q.scanRequest(q.db.QueryRowContext(ctx, getRequest, id))
}

const countBlockingRequests = `
SELECT COUNT(*) FROM edit_requests
WHERE entry_id = ? AND field_path = ? AND requested_by = ?
  AND (status = 'PENDING' OR (status = 'APPROVED' AND consumed = 0))
`

func (q *Queries) CountBlockingRequests(ctx context.Context, entryID, fieldPath, requesterID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countBlockingRequests, entryID, fieldPath, requesterID).Scan(&n)
	return n, err
}

// DecideRequest is the conditional update behind the PENDING -> decided
// transition. Zero rows affected means the request was missing or already
// decided.
const decideRequest = `
UPDATE edit_requests SET status = ?, decided_at = ?, decided_by = ?
WHERE id = ? AND status = 'PENDING'
`

func (q *Queries) DecideRequest(ctx context.Context, id, status, decidedAt, deciderID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, decideRequest, status, decidedAt, deciderID, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const supersedePriorApprovals = `
UPDATE edit_requests SET status = 'SUPERSEDED'
WHERE entry_id = ? AND field_path = ? AND requested_by = ?
  AND status = 'APPROVED' AND consumed = 0 AND id <> ?
`

func (q *Queries) SupersedePriorApprovals(ctx context.Context, entryID, fieldPath, requesterID, keepID string) error {
	_, err := q.db.ExecContext(ctx, supersedePriorApprovals, entryID, fieldPath, requesterID, keepID)
	return err
}

// ConsumeRequest re-checks consumed = 0 in the same statement that sets it,
// so two concurrent consumers get exactly one success.
const consumeRequest = `
UPDATE edit_requests SET consumed = 1
WHERE id = ? AND status = 'APPROVED' AND consumed = 0
`

func (q *Queries) ConsumeRequest(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, consumeRequest, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const findActiveApproval = `
SELECT id, entry_id, field_path, old_value, new_value, reason,
       requested_by, requester_name, status, consumed, created_at, decided_at, decided_by
FROM edit_requests
WHERE entry_id = ? AND field_path = ? AND requested_by = ?
  AND status = 'APPROVED' AND consumed = 0
ORDER BY created_at DESC LIMIT 1
`

func (q *Queries) FindActiveApproval(ctx context.Context, entryID, fieldPath, requesterID string) (requestRow, error) {
	return q.scanRequest(q.db.QueryRowContext(ctx, findActiveApproval, entryID, fieldPath, requesterID))
}

const countSpentApprovals = `
SELECT COUNT(*) FROM edit_requests
WHERE entry_id = ? AND field_path = ? AND requested_by = ?
  AND ((status = 'APPROVED' AND consumed = 1) OR status = 'SUPERSEDED')
`

func (q *Queries) CountSpentApprovals(ctx context.Context, entryID, fieldPath, requesterID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countSpentApprovals, entryID, fieldPath, requesterID).Scan(&n)
	return n, err
}

const countPending = `
SELECT COUNT(*) FROM edit_requests
WHERE status = 'PENDING' AND (? = '' OR requested_by = ?)
`

func (q *Queries) CountPending(ctx context.Context, requesterID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countPending, requesterID, requesterID).Scan(&n)
	return n, err
}

// ListRequests builds the filter dynamically; every clause is parameterized.
func (q *Queries) ListRequests(ctx context.Context, status, entryID, requesterID, createdFrom, createdBefore string, limit, offset int) ([]requestRow, int64, error) {
	var conds []string
	var args []any

	if status != "" && status != "ALL" {
		conds = append(conds, "status = ?")
		args = append(args, status)
	}
	if entryID != "" {
		conds = append(conds, "entry_id = ?")
		args = append(args, entryID)
	}
	if requesterID != "" {
		conds = append(conds, "requested_by = ?")
		args = append(args, requesterID)
	}
	if createdFrom != "" {
		conds = append(conds, "created_at >= ?")
		args = append(args, createdFrom)
	}
	if createdBefore != "" {
		conds = append(conds, "created_at < ?")
		args = append(args, createdBefore)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM edit_requests"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, entry_id, field_path, old_value, new_value, reason,
       requested_by, requester_name, status, consumed, created_at, decided_at, decided_by
FROM edit_requests` + where + ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []requestRow
	for rows.Next() {
		var row requestRow
		if err := rows.Scan(&row.ID, &row.EntryID, &row.FieldPath, &row.OldValue, &row.NewValue,
			&row.Reason, &row.RequestedBy, &row.RequesterName, &row.Status, &row.Consumed,
			&row.CreatedAt, &row.DecidedAt, &row.DecidedBy); err != nil {
			return nil, 0, err
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (q *Queries) scanRequest(r rowScanner) (requestRow, error) {
	var row requestRow
	err := r.Scan(&row.ID, &row.EntryID, &row.FieldPath, &row.OldValue, &row.NewValue,
		&row.Reason, &row.RequestedBy, &row.RequesterName, &row.Status, &row.Consumed,
		&row.CreatedAt, &row.DecidedAt, &row.DecidedBy)
	return row, err
}
