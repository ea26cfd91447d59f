package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/document-access-gate/internal/access"
	"github.com/iliyamo/document-access-gate/internal/repository"
	"github.com/iliyamo/document-access-gate/internal/token"
	"github.com/iliyamo/document-access-gate/internal/workflow"
)

// Gatekeeper runs the access validation pipeline.
type Gatekeeper interface {
	Authorize(ctx context.Context, c access.Credentials) (access.Grant, error)
	Release(ctx context.Context, c access.Credentials) (access.Grant, error)
}

// ActionVerifier checks and consumes emailed action tokens.
type ActionVerifier interface {
	Verify(ctx context.Context, requestID uint64, action token.Action, tok string) error
}

// FileTokens issues and checks viewer file tokens.
type FileTokens interface {
	Issue(documentID uint64) (string, time.Time, error)
	Verify(raw string, documentID uint64) error
}

// VisitorLinks builds the URLs the viewer page embeds.
type VisitorLinks interface {
	FileURL(documentID uint64, fileToken string) string
	DownloadURL(documentID uint64, hash, email string, requestID uint64) string
}

// VisitorHandler serves the anonymous, link-driven entry points: gated
// download, viewer, viewer file fetch and emailed action links.  Every
// failure renders the standard error page.
type VisitorHandler struct {
	Pipeline   Gatekeeper
	Machine    Transitioner
	Actions    ActionVerifier
	FileTokens FileTokens
	Links      VisitorLinks
}

func NewVisitorHandler(p Gatekeeper, m Transitioner, a ActionVerifier, ft FileTokens, l VisitorLinks) *VisitorHandler {
	return &VisitorHandler{Pipeline: p, Machine: m, Actions: a, FileTokens: ft, Links: l}
}

// Entry dispatches GET / on its query keys.
func (h *VisitorHandler) Entry(c echo.Context) error {
	q := c.QueryParams()
	switch {
	case q.Has("download"):
		return h.Download(c)
	case q.Has("action-link"):
		return h.ActionLink(c)
	case q.Has("viewer"):
		return h.Viewer(c)
	}
	return renderPage(c, http.StatusOK, page{
		Title:   "Document access",
		Message: "Open the link from your email to view a document.",
	})
}

// documentParam reads the document id from ?download= or ?document_id=.
func documentParam(c echo.Context) uint64 {
	if id, ok := parseID(c.QueryParam("download")); ok {
		return id
	}
	id, _ := parseID(c.QueryParam("document_id"))
	return id
}

func hashCredentials(c echo.Context) access.Credentials {
	rid, _ := strconv.ParseUint(c.QueryParam("request_id"), 10, 64)
	return access.Credentials{
		DocumentID: documentParam(c),
		Hash:       c.QueryParam("hash"),
		Email:      c.QueryParam("email"),
		RequestID:  rid,
		IP:         c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	}
}

// Download is the primary gated download.  The file is served inline.
func (h *VisitorHandler) Download(c echo.Context) error {
	creds := hashCredentials(c)
	if creds.DocumentID == 0 {
		return errorPage(c, http.StatusNotFound, access.ReasonUnknownDocument, nil)
	}
	g, err := h.Pipeline.Release(c.Request().Context(), creds)
	if err != nil {
		return h.denied(c, err)
	}
	return c.Inline(g.Path, g.Document.FileName)
}

// Viewer re-validates the hash credentials and renders a page embedding
// the file through a short-lived file token.  An expired emailed token is
// replaced rather than refused, since the hash was just checked.
func (h *VisitorHandler) Viewer(c echo.Context) error {
	creds := hashCredentials(c)
	if creds.DocumentID == 0 {
		return errorPage(c, http.StatusNotFound, access.ReasonUnknownDocument, nil)
	}
	g, err := h.Pipeline.Authorize(c.Request().Context(), creds)
	if err != nil {
		return h.denied(c, err)
	}

	fileTok := c.QueryParam("token")
	if fileTok == "" || h.FileTokens.Verify(fileTok, creds.DocumentID) != nil {
		fileTok, _, err = h.FileTokens.Issue(creds.DocumentID)
		if err != nil {
			c.Logger().Errorf("viewer: issue file token for document %d: %v", creds.DocumentID, err)
			return errorPage(c, http.StatusInternalServerError, "the viewer could not be opened", &g.Document)
		}
	}
	return renderPage(c, http.StatusOK, page{
		Title:       g.Document.Title,
		Document:    docForPage(&g.Document),
		FrameURL:    h.Links.FileURL(creds.DocumentID, fileTok),
		DownloadURL: h.Links.DownloadURL(creds.DocumentID, creds.Hash, g.Request.RequesterEmail, g.Request.ID),
	})
}

// ViewerFile serves the bytes behind the viewer's frame.  It only accepts
// the file token.
func (h *VisitorHandler) ViewerFile(c echo.Context) error {
	docID, _ := parseID(c.QueryParam("document_id"))
	tok := c.QueryParam("token")
	if docID == 0 || tok == "" {
		return errorPage(c, http.StatusForbidden, access.ReasonInvalidFileToken, nil)
	}
	g, err := h.Pipeline.Release(c.Request().Context(), access.Credentials{
		DocumentID: docID,
		FileToken:  tok,
		IP:         c.RealIP(),
		UserAgent:  c.Request().UserAgent(),
	})
	if err != nil {
		return h.denied(c, err)
	}
	c.Response().Header().Set("Cache-Control", "private, no-store")
	return c.Inline(g.Path, g.Document.FileName)
}

// ActionLink verifies an emailed action token and grants the request.
func (h *VisitorHandler) ActionLink(c echo.Context) error {
	rid, ok := parseID(c.QueryParam("rid"))
	rawAction := c.QueryParam("action")
	tok := c.QueryParam("token")
	if !ok || tok == "" {
		c.Logger().Warnf("action link rejected: missing rid or token (ip=%s)", c.RealIP())
		return errorPage(c, http.StatusForbidden, "invalid link", nil)
	}
	action, err := token.ParseAction(rawAction)
	if err != nil {
		c.Logger().Warnf("action link rejected: rid=%d unknown action %q (ip=%s)", rid, rawAction, c.RealIP())
		return errorPage(c, http.StatusForbidden, "invalid link", nil)
	}

	ctx := c.Request().Context()
	if err := h.Actions.Verify(ctx, rid, action, tok); err != nil {
		return h.tokenRejected(c, rid, action, err)
	}

	res, err := h.Machine.Apply(ctx, rid, workflow.ActionAccept, "link:"+string(action))
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrRequestNotFound):
		return errorPage(c, http.StatusNotFound, "this request no longer exists", nil)
	case errors.Is(err, workflow.ErrIllegalTransition):
		return errorPage(c, http.StatusConflict, "this request cannot be approved in its current state", nil)
	default:
		c.Logger().Errorf("action link: accept request %d: %v", rid, err)
		return errorPage(c, http.StatusInternalServerError, "the request could not be updated, nothing was changed", nil)
	}

	verb := "granted"
	if action == token.ActionReaccept || res.Before.Status == res.After.Status {
		verb = "granted again with a new link"
	}
	return renderPage(c, http.StatusOK, page{
		Title:   "Request approved",
		Message: fmt.Sprintf("Access for %s <%s> has been %s.", res.After.RequesterName, res.After.RequesterEmail, verb),
		Warning: res.Warning,
	})
}

func (h *VisitorHandler) tokenRejected(c echo.Context, rid uint64, action token.Action, err error) error {
	reason := "invalid link"
	switch {
	case errors.Is(err, token.ErrExpiredToken):
		reason = "this link has expired"
	case errors.Is(err, token.ErrTokenAlreadyUsed):
		reason = "this link has already been used"
	case errors.Is(err, token.ErrSignatureMismatch), errors.Is(err, token.ErrInvalidToken):
	default:
		c.Logger().Errorf("action link rid=%d action=%s: %v", rid, action, err)
		return errorPage(c, http.StatusInternalServerError, "the link could not be checked, try again later", nil)
	}
	c.Logger().Warnf("action link rejected: rid=%d action=%s ip=%s: %v", rid, action, c.RealIP(), err)
	return errorPage(c, http.StatusForbidden, reason, nil)
}

// denied renders pipeline failures.
func (h *VisitorHandler) denied(c echo.Context, err error) error {
	var d *access.Denial
	if errors.As(err, &d) {
		return errorPage(c, d.Status(), d.Reason, d.Document)
	}
	c.Logger().Errorf("access pipeline: %v", err)
	return errorPage(c, http.StatusInternalServerError, "the document could not be served, try again later", nil)
}
