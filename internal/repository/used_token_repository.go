package repository

import (
	"context"
	"database/sql"
	"time"
)

// UsedTokenRepo records consumed action tokens in MySQL.  The primary key on
// token_hash makes MarkUsed an atomic insert-if-absent.
type UsedTokenRepo struct{ DB *sql.DB }

func NewUsedTokenRepo(db *sql.DB) *UsedTokenRepo { return &UsedTokenRepo{DB: db} }

// MarkUsed inserts the marker and reports whether this call created it.
// A duplicate key means another request already consumed the token.  That
// holds for rows past expires_at that PurgeExpired has not dropped yet: the
// token they mark has expired too, and Verify rejects expiry before it
// reaches the marker.
func (r *UsedTokenRepo) MarkUsed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO used_action_tokens (token_hash, expires_at) VALUES (?,?)",
		key, time.Now().UTC().Add(ttl))
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PurgeExpired drops markers whose tokens can no longer verify anyway.
func (r *UsedTokenRepo) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM used_action_tokens WHERE expires_at <= UTC_TIMESTAMP()")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
