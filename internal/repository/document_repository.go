package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/document-access-gate/internal/model"
)

// DocumentRepo reads and registers documents.
type DocumentRepo struct{ db *sql.DB }

func NewDocumentRepo(db *sql.DB) *DocumentRepo { return &DocumentRepo{db: db} }

// Create inserts a document and returns its id.
func (r *DocumentRepo) Create(ctx context.Context, d model.Document) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO documents (title, file_name, file_path, restricted) VALUES (?,?,?,?)",
		strings.TrimSpace(d.Title), d.FileName, d.FilePath, d.Restricted)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByID fetches a document by id.
func (r *DocumentRepo) GetByID(ctx context.Context, id uint64) (model.Document, error) {
	var d model.Document
	err := r.db.QueryRowContext(ctx,
		"SELECT id,title,file_name,file_path,restricted,created_at FROM documents WHERE id=? LIMIT 1",
		id).Scan(&d.ID, &d.Title, &d.FileName, &d.FilePath, &d.Restricted, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, ErrDocumentNotFound
	}
	return d, err
}
