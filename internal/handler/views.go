package handler

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/document-access-gate/internal/model"
)

// requestView is the admin-facing JSON shape of a request.  The secure hash
// itself is never returned, only whether one exists.
type requestView struct {
	ID             uint64    `json:"id"`
	DocumentID     uint64    `json:"document_id"`
	RequesterName  string    `json:"requester_name"`
	RequesterEmail string    `json:"requester_email"`
	Status         string    `json:"status"`
	PreviousStatus *string   `json:"previous_status,omitempty"`
	HasHash        bool      `json:"has_secure_hash"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toRequestView(r model.AccessRequest) requestView {
	v := requestView{
		ID:             r.ID,
		DocumentID:     r.DocumentID,
		RequesterName:  r.RequesterName,
		RequesterEmail: r.RequesterEmail,
		Status:         string(r.Status),
		HasHash:        r.HasHash(),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.PreviousStatus != nil {
		s := string(*r.PreviousStatus)
		v.PreviousStatus = &s
	}
	return v
}

type documentView struct {
	ID         uint64    `json:"id"`
	Title      string    `json:"title"`
	FileName   string    `json:"file_name"`
	Restricted bool      `json:"restricted"`
	CreatedAt  time.Time `json:"created_at"`
}

func toDocumentView(d model.Document) documentView {
	return documentView{ID: d.ID, Title: d.Title, FileName: d.FileName, Restricted: d.Restricted, CreatedAt: d.CreatedAt}
}

func parseID(s string) (uint64, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	return id, err == nil && id > 0
}

func paramID(c echo.Context) (uint64, bool) { return parseID(c.Param("id")) }
