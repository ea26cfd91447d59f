package model

import "time"

// Document mirrors the `documents` table.  FilePath is relative to the
// configured storage directory.
type Document struct {
	ID         uint64
	Title      string
	FileName   string
	FilePath   string
	Restricted bool
	CreatedAt  time.Time
}

// AccessEvent is one successful file release, appended to
// `document_access_log` for audit.
type AccessEvent struct {
	DocumentID uint64
	RequestID  *uint64
	Email      string
	Via        string // "hash" or "file_token"
	IP         string
	UserAgent  string
	AccessedAt time.Time
}
