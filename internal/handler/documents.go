package handler

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/document-access-gate/internal/admission"
	"github.com/iliyamo/document-access-gate/internal/model"
	"github.com/iliyamo/document-access-gate/internal/repository"
	"github.com/iliyamo/document-access-gate/internal/workflow"
)

// DocumentStore registers and reads documents.
type DocumentStore interface {
	Create(ctx context.Context, d model.Document) (uint64, error)
	GetByID(ctx context.Context, id uint64) (model.Document, error)
}

// Submitter creates access requests.
type Submitter interface {
	Submit(ctx context.Context, documentID uint64, name, email string) (workflow.Submission, error)
}

// DocumentHandler serves document metadata and access request submission.
type DocumentHandler struct {
	Docs    DocumentStore
	Machine Submitter
	Gate    admission.Gate
}

func NewDocumentHandler(docs DocumentStore, machine Submitter, gate admission.Gate) *DocumentHandler {
	if gate == nil {
		gate = admission.Open{}
	}
	return &DocumentHandler{Docs: docs, Machine: machine, Gate: gate}
}

type createDocumentReq struct {
	Title      string `json:"title"`
	FileName   string `json:"file_name"`
	FilePath   string `json:"file_path"`
	Restricted *bool  `json:"restricted"`
}

// Create registers a document whose file already sits under the storage
// directory.  FilePath is relative to that directory.
func (h *DocumentHandler) Create(c echo.Context) error {
	var req createDocumentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	rel := filepath.ToSlash(filepath.Clean(strings.TrimSpace(req.FilePath)))
	if req.Title == "" || req.FilePath == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title and file_path required"})
	}
	if filepath.IsAbs(rel) || rel == "." || strings.HasPrefix(rel, "../") || rel == ".." {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "file_path must be relative to the storage directory"})
	}
	if req.FileName == "" {
		req.FileName = filepath.Base(rel)
	}
	restricted := true
	if req.Restricted != nil {
		restricted = *req.Restricted
	}

	doc := model.Document{Title: req.Title, FileName: req.FileName, FilePath: rel, Restricted: restricted}
	id, err := h.Docs.Create(c.Request().Context(), doc)
	if err != nil {
		c.Logger().Errorf("create document: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create document"})
	}
	doc.ID = id
	return c.JSON(http.StatusCreated, toDocumentView(doc))
}

// Get returns public metadata for a document.
func (h *DocumentHandler) Get(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	d, err := h.Docs.GetByID(c.Request().Context(), id)
	if errors.Is(err, repository.ErrDocumentNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "document not found"})
	}
	if err != nil {
		c.Logger().Errorf("get document %d: %v", id, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load document"})
	}
	return c.JSON(http.StatusOK, toDocumentView(d))
}

type submitReq struct {
	Name  string `json:"name" form:"name"`
	Email string `json:"email" form:"email"`
}

const maxNameLen = 200

// Submit records a visitor's request for access to a document.
func (h *DocumentHandler) Submit(c echo.Context) error {
	docID, ok := paramID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid document id"})
	}
	var req submitReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil || addr.Name != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "a valid email address is required"})
	}
	email := strings.ToLower(addr.Address)

	ctx := c.Request().Context()
	if _, err := h.Docs.GetByID(ctx, docID); err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "document not found"})
		}
		c.Logger().Errorf("submit: load document %d: %v", docID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not submit request"})
	}

	decision, err := h.Gate.Check(ctx, admission.RequestContext{IP: c.RealIP(), DocumentID: docID, Email: email})
	if err != nil {
		c.Logger().Errorf("submit: admission: %v", err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "requests cannot be accepted right now, try again later"})
	}
	if !decision.Allowed {
		c.Response().Header().Set("Retry-After", admission.RetryAfterSeconds(decision.RetryAfter))
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": decision.Reason})
	}

	sub, err := h.Machine.Submit(ctx, docID, name, email)
	if errors.Is(err, repository.ErrDuplicateRequest) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "you already have an open request for this document; check your email for updates"})
	}
	if err != nil {
		c.Logger().Errorf("submit request for document %d: %v", docID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not submit request"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"id":      sub.ID,
		"status":  string(sub.Status),
		"message": "your request has been received; you will be notified by email",
	})
}
