// Package access implements the validation pipeline every file-serving
// request runs before bytes are released.
package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/document-access-gate/internal/model"
	"github.com/iliyamo/document-access-gate/internal/repository"
)

// Reasons shown to visitors.  They name the failure without echoing any
// credential.
const (
	ReasonMissingCredential = "a valid access link is required to view this document"
	ReasonInvalidLink       = "invalid or expired link"
	ReasonDeactivated       = "access to this document has been deactivated"
	ReasonUnknownDocument   = "document not found"
	ReasonFileMissing       = "the file for this document is not available"
	ReasonInvalidFileToken  = "this viewer session has expired, reopen the link from your email"
)

var (
	// ErrAccessDenied covers every authorization failure (HTTP 403).
	ErrAccessDenied = errors.New("access denied")
	// ErrResourceMissing means authorization passed but the file is gone (HTTP 404).
	ErrResourceMissing = errors.New("resource missing")
)

// Denial is the error returned for a refused request.  Document carries
// non-sensitive metadata for the error page when it is known.
type Denial struct {
	Kind     error // ErrAccessDenied or ErrResourceMissing
	Reason   string
	Document *model.Document
}

func (d *Denial) Error() string { return fmt.Sprintf("%v: %s", d.Kind, d.Reason) }
func (d *Denial) Unwrap() error { return d.Kind }

// Status maps the denial onto an HTTP status code.
func (d *Denial) Status() int {
	if errors.Is(d.Kind, ErrResourceMissing) {
		return http.StatusNotFound
	}
	return http.StatusForbidden
}

// Credentials are what a visitor presents.  Either FileToken, or Hash with
// Email (and optionally RequestID).
type Credentials struct {
	DocumentID uint64
	FileToken  string
	Hash       string
	Email      string
	RequestID  uint64
	IP         string
	UserAgent  string
}

// Grant is a successful validation: the document, the absolute file path
// and, for hash credentials, the matched request.
type Grant struct {
	Document model.Document
	Path     string
	Request  *model.AccessRequest
	Via      string
}

type RequestLookup interface {
	FindByCredentials(ctx context.Context, hash, email string, documentID, requestID uint64) (model.AccessRequest, error)
	IsAccessible(ctx context.Context, id uint64) (bool, error)
}

type DocumentFinder interface {
	GetByID(ctx context.Context, id uint64) (model.Document, error)
}

type FileTokenVerifier interface {
	Verify(raw string, documentID uint64) error
}

type AuditSink interface {
	Record(ctx context.Context, ev model.AccessEvent) error
}

// Pipeline runs the ordered checks.
type Pipeline struct {
	requests   RequestLookup
	documents  DocumentFinder
	fileTokens FileTokenVerifier
	audit      AuditSink
	storageDir string
	log        *log.Logger
	now        func() time.Time
}

func NewPipeline(requests RequestLookup, documents DocumentFinder, fileTokens FileTokenVerifier, audit AuditSink, storageDir string, logger *log.Logger) *Pipeline {
	if requests == nil || documents == nil || fileTokens == nil {
		panic("nil dependency passed to NewPipeline")
	}
	if logger == nil {
		logger = log.New("access")
	}
	return &Pipeline{
		requests:   requests,
		documents:  documents,
		fileTokens: fileTokens,
		audit:      audit,
		storageDir: storageDir,
		log:        logger,
		now:        time.Now,
	}
}

// Authorize runs every check except audit logging.  The viewer page uses it
// to validate hash credentials before rendering.
func (p *Pipeline) Authorize(ctx context.Context, c Credentials) (Grant, error) {
	// The document is loaded up front only to give denials some context;
	// its absence is reported after the credential checks.
	var docRef *model.Document
	doc, err := p.documents.GetByID(ctx, c.DocumentID)
	switch {
	case err == nil:
		docRef = &doc
	case !errors.Is(err, repository.ErrDocumentNotFound):
		return Grant{}, fmt.Errorf("load document %d: %w", c.DocumentID, err)
	}

	var grant Grant
	if c.FileToken != "" && c.Hash == "" {
		if err := p.fileTokens.Verify(c.FileToken, c.DocumentID); err != nil {
			return Grant{}, p.deny(c, docRef, ErrAccessDenied, ReasonInvalidFileToken)
		}
		grant.Via = "file_token"
	} else {
		req, err := p.checkHash(ctx, c, docRef)
		if err != nil {
			return Grant{}, err
		}
		grant.Request = &req
		grant.Via = "hash"
	}

	// 4. Authorization passed; the bytes must exist.
	if docRef == nil {
		return Grant{}, p.deny(c, nil, ErrResourceMissing, ReasonUnknownDocument)
	}
	path, err := p.resolve(doc)
	if err != nil {
		return Grant{}, p.deny(c, docRef, ErrResourceMissing, ReasonFileMissing)
	}
	grant.Document = doc
	grant.Path = path
	return grant, nil
}

// checkHash runs the presence, lookup and accessibility steps.
func (p *Pipeline) checkHash(ctx context.Context, c Credentials, doc *model.Document) (model.AccessRequest, error) {
	// 1. No hash means no access, whatever the document's settings.
	if strings.TrimSpace(c.Hash) == "" {
		return model.AccessRequest{}, p.deny(c, doc, ErrAccessDenied, ReasonMissingCredential)
	}

	// 2. The hash must be bound to this email and document (and request).
	req, err := p.requests.FindByCredentials(ctx, c.Hash, c.Email, c.DocumentID, c.RequestID)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return model.AccessRequest{}, p.deny(c, doc, ErrAccessDenied, ReasonInvalidLink)
		}
		return model.AccessRequest{}, fmt.Errorf("lookup credentials: %w", err)
	}

	// 3. Inactive grants keep their hash but must not open; say so
	// explicitly rather than calling the link invalid.
	if req.Status == model.StatusInactive {
		return model.AccessRequest{}, p.deny(c, doc, ErrAccessDenied, ReasonDeactivated)
	}
	if !req.Status.Accessible() {
		return model.AccessRequest{}, p.deny(c, doc, ErrAccessDenied, ReasonInvalidLink)
	}
	if c.RequestID != 0 {
		ok, err := p.requests.IsAccessible(ctx, c.RequestID)
		if err != nil && !errors.Is(err, repository.ErrRequestNotFound) {
			return model.AccessRequest{}, fmt.Errorf("accessibility check: %w", err)
		}
		if !ok {
			return model.AccessRequest{}, p.deny(c, doc, ErrAccessDenied, ReasonDeactivated)
		}
	}
	return req, nil
}

// resolve returns the absolute path of the document's file, refusing paths
// that escape the storage directory.
func (p *Pipeline) resolve(doc model.Document) (string, error) {
	root, err := filepath.Abs(p.storageDir)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.Clean("/"+doc.FilePath))
	if !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", os.ErrNotExist
	}
	fi, err := os.Stat(full)
	if err != nil {
		return "", err
	}
	if fi.IsDir() {
		return "", os.ErrNotExist
	}
	return full, nil
}

// Release runs Authorize and, on success, records the access for audit.
func (p *Pipeline) Release(ctx context.Context, c Credentials) (Grant, error) {
	g, err := p.Authorize(ctx, c)
	if err != nil {
		return Grant{}, err
	}
	ev := model.AccessEvent{
		DocumentID: g.Document.ID,
		Email:      strings.ToLower(strings.TrimSpace(c.Email)),
		Via:        g.Via,
		IP:         c.IP,
		UserAgent:  c.UserAgent,
		AccessedAt: p.now().UTC(),
	}
	if g.Request != nil {
		id := g.Request.ID
		ev.RequestID = &id
		ev.Email = g.Request.RequesterEmail
	}
	p.log.Infof("document %d released via %s to %q (request=%v ip=%s)", ev.DocumentID, ev.Via, ev.Email, requestIDString(ev.RequestID), ev.IP)
	if p.audit != nil {
		if err := p.audit.Record(ctx, ev); err != nil {
			// The visitor is authorized; a failed audit write is ours to fix.
			p.log.Errorf("record access for document %d: %v", ev.DocumentID, err)
		}
	}
	return g, nil
}

func (p *Pipeline) deny(c Credentials, doc *model.Document, kind error, reason string) *Denial {
	p.log.Warnf("deny document=%d email=%q request=%d ip=%s: %s", c.DocumentID, c.Email, c.RequestID, c.IP, reason)
	return &Denial{Kind: kind, Reason: reason, Document: doc}
}

func requestIDString(id *uint64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprint(*id)
}
