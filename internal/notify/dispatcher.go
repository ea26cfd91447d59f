package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/document-access-gate/internal/model"
	"github.com/iliyamo/document-access-gate/internal/token"
)

// Mailer is the email transport.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type RequestReader interface {
	Get(ctx context.Context, id uint64) (model.AccessRequest, error)
}

type DocumentFinder interface {
	GetByID(ctx context.Context, id uint64) (model.Document, error)
}

type FileTokenIssuer interface {
	Issue(documentID uint64) (string, time.Time, error)
}

type ActionTokenIssuer interface {
	Issue(requestID uint64, action token.Action) (token.Issued, error)
}

type LinkBuilder interface {
	ViewerURL(documentID uint64, fileToken, hash, email string, requestID uint64) string
	DownloadURL(documentID uint64, hash, email string, requestID uint64) string
}

// DispatcherDeps groups what the dispatcher needs to compose mail.
type DispatcherDeps struct {
	Mailer       Mailer
	Requests     RequestReader
	Documents    DocumentFinder
	FileTokens   FileTokenIssuer
	ActionTokens ActionTokenIssuer
	Links        LinkBuilder
	Admins       []string
	AutoResponse bool
	Logger       *log.Logger
}

// Dispatcher composes and sends the email each event calls for.
type Dispatcher struct {
	d DispatcherDeps
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	if deps.Mailer == nil || deps.Requests == nil || deps.Documents == nil {
		panic("nil dependency passed to NewDispatcher")
	}
	if deps.Logger == nil {
		deps.Logger = log.New("notify")
	}
	return &Dispatcher{d: deps}
}

// Notify sends the mail for ev.  Status changes other than grant and
// decline send nothing.
func (n *Dispatcher) Notify(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case KindSubmitted:
		return n.submitted(ctx, ev)
	case KindGranted:
		return n.granted(ctx, ev)
	case KindDeclined:
		return n.declined(ctx, ev)
	}
	return nil
}

func (n *Dispatcher) documentTitle(ctx context.Context, id uint64) string {
	doc, err := n.d.Documents.GetByID(ctx, id)
	if err != nil {
		n.d.Logger.Warnf("document %d lookup for mail failed: %v", id, err)
		return fmt.Sprintf("document #%d", id)
	}
	return doc.Title
}

func (n *Dispatcher) submitted(ctx context.Context, ev Event) error {
	title := n.documentTitle(ctx, ev.DocumentID)
	var errs []error

	var b strings.Builder
	fmt.Fprintf(&b, "%s <%s> requested access to %q.\n", ev.RequesterName, ev.RequesterEmail, title)
	if n.d.ActionTokens != nil {
		issued, err := n.d.ActionTokens.Issue(ev.RequestID, token.ActionAccept)
		if err != nil {
			errs = append(errs, fmt.Errorf("issue accept link: %w", err))
		} else if issued.URL != "" {
			fmt.Fprintf(&b, "\nGrant access with one click (valid for a limited time, single use):\n%s\n", issued.URL)
		}
	}
	subject := fmt.Sprintf("Access request for %s", title)
	for _, admin := range n.d.Admins {
		if err := n.d.Mailer.Send(ctx, admin, subject, b.String()); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", admin, err))
		}
	}

	if n.d.AutoResponse {
		body := fmt.Sprintf("Hello %s,\n\nwe received your request for %q. You will get another email once it has been reviewed.\n",
			ev.RequesterName, title)
		if err := n.d.Mailer.Send(ctx, ev.RequesterEmail, "We received your request", body); err != nil {
			errs = append(errs, fmt.Errorf("auto-response: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (n *Dispatcher) granted(ctx context.Context, ev Event) error {
	req, err := n.d.Requests.Get(ctx, ev.RequestID)
	if err != nil {
		return fmt.Errorf("load request %d: %w", ev.RequestID, err)
	}
	if req.Status != model.StatusAccepted || !req.HasHash() {
		// A later transition overtook this event; the link would be dead.
		n.d.Logger.Infof("skip grant mail for request %d: status is %s", req.ID, req.Status)
		return nil
	}
	title := n.documentTitle(ctx, req.DocumentID)
	fileTok, _, err := n.d.FileTokens.Issue(req.DocumentID)
	if err != nil {
		return fmt.Errorf("issue file token: %w", err)
	}
	viewer := n.d.Links.ViewerURL(req.DocumentID, fileTok, req.Hash(), req.RequesterEmail, req.ID)
	download := n.d.Links.DownloadURL(req.DocumentID, req.Hash(), req.RequesterEmail, req.ID)
	body := fmt.Sprintf("Hello %s,\n\nyour access to %q was granted.\n\nView it online:\n%s\n\nDownload:\n%s\n\nThese links are personal; do not forward them.\n",
		req.RequesterName, title, viewer, download)
	return n.d.Mailer.Send(ctx, req.RequesterEmail, fmt.Sprintf("Access granted: %s", title), body)
}

func (n *Dispatcher) declined(ctx context.Context, ev Event) error {
	title := n.documentTitle(ctx, ev.DocumentID)
	body := fmt.Sprintf("Hello %s,\n\nyour request to access %q was declined.\n", ev.RequesterName, title)
	return n.d.Mailer.Send(ctx, ev.RequesterEmail, fmt.Sprintf("Access request declined: %s", title), body)
}
