package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema lists the tables the service owns.  Statements are idempotent so
// Migrate can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		title       VARCHAR(255)    NOT NULL,
		file_name   VARCHAR(255)    NOT NULL,
		file_path   VARCHAR(1024)   NOT NULL,
		restricted  TINYINT(1)      NOT NULL DEFAULT 1,
		created_at  DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS access_requests (
		id              BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		document_id     BIGINT UNSIGNED NOT NULL,
		requester_name  VARCHAR(255)    NOT NULL,
		requester_email VARCHAR(255)    NOT NULL,
		status          ENUM('pending','accepted','declined','inactive') NOT NULL,
		secure_hash     CHAR(64)        NULL,
		created_at      DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at      DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY idx_access_requests_doc_email (document_id, requester_email),
		UNIQUE KEY uq_access_requests_hash (secure_hash)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS access_request_previous_status (
		request_id  BIGINT UNSIGNED NOT NULL PRIMARY KEY,
		status      ENUM('pending','accepted','declined') NOT NULL,
		created_at  DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS used_action_tokens (
		token_hash  CHAR(64)  NOT NULL PRIMARY KEY,
		expires_at  DATETIME  NOT NULL,
		KEY idx_used_action_tokens_expires (expires_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS document_access_log (
		id           BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		document_id  BIGINT UNSIGNED NOT NULL,
		request_id   BIGINT UNSIGNED NULL,
		email        VARCHAR(255)    NOT NULL DEFAULT '',
		via          VARCHAR(16)     NOT NULL,
		ip           VARCHAR(64)     NOT NULL DEFAULT '',
		user_agent   TEXT            NULL,
		accessed_at  DATETIME        NOT NULL,
		KEY idx_document_access_log_doc (document_id, accessed_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate creates missing tables.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
