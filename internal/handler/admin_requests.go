package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/document-access-gate/internal/middleware"
	"github.com/iliyamo/document-access-gate/internal/model"
	"github.com/iliyamo/document-access-gate/internal/repository"
	"github.com/iliyamo/document-access-gate/internal/token"
	"github.com/iliyamo/document-access-gate/internal/workflow"
)

// RequestLister is the read side of the request store.
type RequestLister interface {
	Get(ctx context.Context, id uint64) (model.AccessRequest, error)
	List(ctx context.Context, page, perPage int) ([]model.AccessRequest, error)
	Count(ctx context.Context) (int, error)
}

// Transitioner applies workflow actions.
type Transitioner interface {
	Apply(ctx context.Context, id uint64, action workflow.Action, trigger string) (workflow.Result, error)
}

// ActionIssuer mints emailed action links.
type ActionIssuer interface {
	Issue(requestID uint64, action token.Action) (token.Issued, error)
}

// AdminRequestHandler serves the administrator's request management API.
type AdminRequestHandler struct {
	Requests RequestLister
	Machine  Transitioner
	Actions  ActionIssuer
}

func NewAdminRequestHandler(requests RequestLister, machine Transitioner, actions ActionIssuer) *AdminRequestHandler {
	return &AdminRequestHandler{Requests: requests, Machine: machine, Actions: actions}
}

// List returns one page of requests plus the total count.
func (h *AdminRequestHandler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	perPage, _ := strconv.Atoi(c.QueryParam("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	items, err := h.Requests.List(ctx, page, perPage)
	if err != nil {
		c.Logger().Errorf("list requests: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not list requests"})
	}
	total, err := h.Requests.Count(ctx)
	if err != nil {
		c.Logger().Errorf("count requests: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not count requests"})
	}
	out := make([]requestView, 0, len(items))
	for _, r := range items {
		out = append(out, toRequestView(r))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items":    out,
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

// Get returns a single request.
func (h *AdminRequestHandler) Get(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	r, err := h.Requests.Get(c.Request().Context(), id)
	if errors.Is(err, repository.ErrRequestNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "request not found"})
	}
	if err != nil {
		c.Logger().Errorf("get request %d: %v", id, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load request"})
	}
	return c.JSON(http.StatusOK, toRequestView(r))
}

type statusReq struct {
	Action string `json:"action"`
}

// SetStatus applies accept, decline, inactive or delete.  A failed
// notification comes back as a warning next to the new state.
func (h *AdminRequestHandler) SetStatus(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	action, err := workflow.ParseAction(req.Action)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	return h.apply(c, id, action)
}

// Delete removes a request permanently.
func (h *AdminRequestHandler) Delete(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	return h.apply(c, id, workflow.ActionDelete)
}

func (h *AdminRequestHandler) apply(c echo.Context, id uint64, action workflow.Action) error {
	trigger := "admin:" + middleware.CurrentAdmin(c)
	res, err := h.Machine.Apply(c.Request().Context(), id, action, trigger)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrRequestNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "request not found"})
	case errors.Is(err, workflow.ErrIllegalTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, workflow.ErrUnknownAction):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "status change failed, nothing was changed"})
	}

	body := echo.Map{"warning": res.Warning}
	if res.Removed {
		body["deleted"] = true
		body["request"] = toRequestView(res.Before)
	} else {
		body["request"] = toRequestView(res.After)
		body["previous_status"] = string(res.Before.Status)
		if res.Inferred {
			body["restored_status_inferred"] = true
		}
	}
	return c.JSON(http.StatusOK, body)
}

type actionLinkReq struct {
	Action string `json:"action"`
}

// IssueActionLink mints a one-click accept or reaccept link for a request,
// e.g. to resend a grant from the admin UI.
func (h *AdminRequestHandler) IssueActionLink(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req actionLinkReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Action == "" {
		req.Action = string(token.ActionAccept)
	}
	action, err := token.ParseAction(req.Action)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "action must be accept or reaccept"})
	}
	if _, err := h.Requests.Get(c.Request().Context(), id); err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "request not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load request"})
	}
	issued, err := h.Actions.Issue(id, action)
	if err != nil {
		c.Logger().Errorf("issue %s link for request %d: %v", action, id, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue link"})
	}
	return c.JSON(http.StatusOK, issued)
}
