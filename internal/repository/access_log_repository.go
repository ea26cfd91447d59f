package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/document-access-gate/internal/model"
)

// AccessLogRepo appends file releases to document_access_log.
type AccessLogRepo struct{ db *sql.DB }

func NewAccessLogRepo(db *sql.DB) *AccessLogRepo { return &AccessLogRepo{db: db} }

// Record stores one access event.
func (r *AccessLogRepo) Record(ctx context.Context, ev model.AccessEvent) error {
	var rid sql.NullInt64
	if ev.RequestID != nil {
		rid = sql.NullInt64{Int64: int64(*ev.RequestID), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO document_access_log (document_id, request_id, email, via, ip, user_agent, accessed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.DocumentID, rid, ev.Email, ev.Via, ev.IP, ev.UserAgent, ev.AccessedAt.UTC())
	return err
}
