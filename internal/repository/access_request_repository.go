package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/document-access-gate/internal/model"
)

// AccessRequestRepo provides persistence for access requests and their
// previous-status memory.  All timestamps are stored in UTC.
type AccessRequestRepo struct {
	db *sql.DB
}

// NewAccessRequestRepo returns a new AccessRequestRepo bound to the given database.
func NewAccessRequestRepo(db *sql.DB) *AccessRequestRepo { return &AccessRequestRepo{db: db} }

// DB exposes the underlying handle for callers that need transactions.
func (r *AccessRequestRepo) DB() *sql.DB { return r.db }

const selectRequest = `SELECT r.id, r.document_id, r.requester_name, r.requester_email, r.status,
       p.status, r.secure_hash, r.created_at, r.updated_at
FROM access_requests r
LEFT JOIN access_request_previous_status p ON p.request_id = r.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (model.AccessRequest, error) {
	var (
		req      model.AccessRequest
		status   string
		previous sql.NullString
		hash     sql.NullString
	)
	err := row.Scan(&req.ID, &req.DocumentID, &req.RequesterName, &req.RequesterEmail, &status,
		&previous, &hash, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return model.AccessRequest{}, err
	}
	if req.Status, err = model.ParseStatus(status); err != nil {
		return model.AccessRequest{}, err
	}
	if previous.Valid {
		ps, err := model.ParseStatus(previous.String)
		if err != nil {
			return model.AccessRequest{}, err
		}
		req.PreviousStatus = &ps
	}
	if hash.Valid && hash.String != "" {
		h := hash.String
		req.SecureHash = &h
	}
	return req, nil
}

// Create inserts a new request in the given initial status and returns its
// id.  The duplicate guard runs inside the same transaction: an existing
// request for the pair that is not declined yields ErrDuplicateRequest.  A
// hidden request whose remembered status is declined does not block.
func (r *AccessRequestRepo) Create(ctx context.Context, documentID uint64, name, email string, initial model.Status) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var existing uint64
	err = tx.QueryRowContext(ctx,
		`SELECT r.id FROM access_requests r
		 LEFT JOIN access_request_previous_status p ON p.request_id = r.id
		 WHERE r.document_id = ? AND r.requester_email = ? AND r.status <> 'declined'
		   AND NOT (r.status = 'inactive' AND p.status <=> 'declined')
		 LIMIT 1 FOR UPDATE`,
		documentID, email).Scan(&existing)
	switch {
	case err == nil:
		return 0, ErrDuplicateRequest
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("duplicate check: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO access_requests (document_id, requester_name, requester_email, status) VALUES (?, ?, ?, ?)`,
		documentID, name, email, string(initial))
	if err != nil {
		return 0, fmt.Errorf("insert request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return uint64(id), nil
}

// Get fetches a request by id.  It returns ErrRequestNotFound when absent.
func (r *AccessRequestRepo) Get(ctx context.Context, id uint64) (model.AccessRequest, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, selectRequest+` WHERE r.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.AccessRequest{}, ErrRequestNotFound
	}
	return req, err
}

// GetByHash fetches the request currently holding hash, provided its status
// is accessible (accepted or pending).
func (r *AccessRequestRepo) GetByHash(ctx context.Context, hash string) (model.AccessRequest, error) {
	if hash == "" {
		return model.AccessRequest{}, ErrRequestNotFound
	}
	req, err := scanRequest(r.db.QueryRowContext(ctx,
		selectRequest+` WHERE r.secure_hash = ? AND r.status IN ('accepted','pending') LIMIT 1`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return model.AccessRequest{}, ErrRequestNotFound
	}
	return req, err
}

// FindByCredentials returns the request bound to the hash, email and
// document (and id when requestID is non-zero) whatever its status, so the
// caller can tell a deactivated grant from an unknown one.
func (r *AccessRequestRepo) FindByCredentials(ctx context.Context, hash, email string, documentID, requestID uint64) (model.AccessRequest, error) {
	if hash == "" {
		return model.AccessRequest{}, ErrRequestNotFound
	}
	q := selectRequest + ` WHERE r.secure_hash = ? AND r.requester_email = ? AND r.document_id = ?`
	args := []any{hash, strings.ToLower(strings.TrimSpace(email)), documentID}
	if requestID != 0 {
		q += ` AND r.id = ?`
		args = append(args, requestID)
	}
	req, err := scanRequest(r.db.QueryRowContext(ctx, q+` LIMIT 1`, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return model.AccessRequest{}, ErrRequestNotFound
	}
	return req, err
}

// List returns one page of requests, newest first.  Pages start at 1.
func (r *AccessRequestRepo) List(ctx context.Context, page, perPage int) ([]model.AccessRequest, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	rows, err := r.db.QueryContext(ctx, selectRequest+` ORDER BY r.id DESC LIMIT ? OFFSET ?`,
		perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.AccessRequest, 0, perPage)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Count returns the total number of requests.
func (r *AccessRequestRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM access_requests`).Scan(&n)
	return n, err
}

// IsAccessible reports whether the request exists and is not inactive.
func (r *AccessRequestRepo) IsAccessible(ctx context.Context, id uint64) (bool, error) {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM access_requests WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrRequestNotFound
	}
	if err != nil {
		return false, err
	}
	return model.Status(status) != model.StatusInactive, nil
}

// Mutate locks the request row, lets decide compute the change from the
// current state and persists that change in the same transaction.  When
// decide returns an error nothing is written.  It returns the state before
// and after the change.
func (r *AccessRequestRepo) Mutate(ctx context.Context, id uint64, decide func(model.AccessRequest) (model.Mutation, error)) (model.AccessRequest, model.AccessRequest, error) {
	var zero model.AccessRequest
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return zero, zero, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	before, err := scanRequest(tx.QueryRowContext(ctx, selectRequest+` WHERE r.id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return zero, zero, ErrRequestNotFound
	}
	if err != nil {
		return zero, zero, err
	}

	m, err := decide(before)
	if err != nil {
		return zero, zero, err
	}

	now := time.Now().UTC()
	switch m.Hash {
	case model.HashReplace:
		_, err = tx.ExecContext(ctx,
			`UPDATE access_requests SET status = ?, secure_hash = ?, updated_at = ? WHERE id = ?`,
			string(m.Status), m.NewHash, now, id)
	case model.HashClear:
		_, err = tx.ExecContext(ctx,
			`UPDATE access_requests SET status = ?, secure_hash = NULL, updated_at = ? WHERE id = ?`,
			string(m.Status), now, id)
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE access_requests SET status = ?, updated_at = ? WHERE id = ?`,
			string(m.Status), now, id)
	}
	if err != nil {
		return zero, zero, fmt.Errorf("update request: %w", err)
	}

	switch m.Memory {
	case model.MemoryStash:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO access_request_previous_status (request_id, status) VALUES (?, ?) ON DUPLICATE KEY UPDATE status = VALUES(status)`,
			id, string(m.Stash))
	case model.MemoryPurge:
		_, err = tx.ExecContext(ctx, `DELETE FROM access_request_previous_status WHERE request_id = ?`, id)
	}
	if err != nil {
		return zero, zero, fmt.Errorf("update previous status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return zero, zero, err
	}
	committed = true
	return before, m.Apply(before, now), nil
}

// Remove hard-deletes a request together with its previous-status memory
// and returns the deleted row.
func (r *AccessRequestRepo) Remove(ctx context.Context, id uint64) (model.AccessRequest, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.AccessRequest{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	before, err := scanRequest(tx.QueryRowContext(ctx, selectRequest+` WHERE r.id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.AccessRequest{}, ErrRequestNotFound
	}
	if err != nil {
		return model.AccessRequest{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM access_request_previous_status WHERE request_id = ?`, id); err != nil {
		return model.AccessRequest{}, fmt.Errorf("purge previous status: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM access_requests WHERE id = ?`, id); err != nil {
		return model.AccessRequest{}, fmt.Errorf("delete request: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.AccessRequest{}, err
	}
	committed = true
	return before, nil
}
