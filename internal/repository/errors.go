// Package repository defines the MySQL data access layer and the sentinel
// errors handlers use to tell failure scenarios apart.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrDuplicateRequest is returned when an active (not declined) request
// already exists for the same document and email.  Handlers translate it
// into HTTP 409 with a friendly message.
var ErrDuplicateRequest = errors.New("duplicate access request")

// ErrRequestNotFound is returned when no access request has the given id.
var ErrRequestNotFound = errors.New("access request not found")

// ErrDocumentNotFound is returned when no document has the given id.
var ErrDocumentNotFound = errors.New("document not found")

// isDuplicateKey reports whether err is a MySQL unique-key violation (1062).
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return err != nil && strings.Contains(err.Error(), "1062")
}
