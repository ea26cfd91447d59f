package access

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iliyamo/document-access-gate/internal/model"
	"github.com/iliyamo/document-access-gate/internal/repository/repotest"
	"github.com/iliyamo/document-access-gate/internal/token"
	"github.com/iliyamo/document-access-gate/internal/workflow"
)

type fixture struct {
	store    *repotest.Store
	machine  *workflow.Machine
	pipeline *Pipeline
	files    *token.FileTokens
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "report.pdf"), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := repotest.New()
	store.AddDocument(model.Document{ID: 7, Title: "Annual report", FileName: "report.pdf", FilePath: "report.pdf", Restricted: true})
	store.AddDocument(model.Document{ID: 8, Title: "Gone", FileName: "gone.pdf", FilePath: "gone.pdf", Restricted: true})
	store.AddDocument(model.Document{ID: 9, Title: "Escape", FileName: "passwd", FilePath: "../../etc/passwd", Restricted: true})
	files := token.NewFileTokens("jwt-secret", time.Minute)
	return &fixture{
		store:    store,
		machine:  workflow.NewMachine(store, nil, workflow.Options{}),
		pipeline: NewPipeline(store, store, files, store, dir, nil),
		files:    files,
		dir:      dir,
	}
}

// grant submits and accepts a request, returning it.
func (f *fixture) grant(t *testing.T, doc uint64, email string) model.AccessRequest {
	t.Helper()
	ctx := context.Background()
	sub, err := f.machine.Submit(ctx, doc, "Alice", email)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	res, err := f.machine.Accept(ctx, sub.ID, "admin")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return res.After
}

func denial(t *testing.T, err error) *Denial {
	t.Helper()
	var d *Denial
	if !errors.As(err, &d) {
		t.Fatalf("expected *Denial, got %v", err)
	}
	return d
}

func TestRelease_AllowsAcceptedRequest(t *testing.T) {
	f := newFixture(t)
	req := f.grant(t, 7, "alice@example.com")

	g, err := f.pipeline.Release(context.Background(), Credentials{
		DocumentID: 7, Hash: req.Hash(), Email: "Alice@Example.com", RequestID: req.ID, IP: "198.51.100.1",
	})
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if g.Path != filepath.Join(f.dir, "report.pdf") || g.Via != "hash" || g.Request.ID != req.ID {
		t.Errorf("grant = %+v", g)
	}
	if len(f.store.Events) != 1 {
		t.Fatalf("audit events = %d", len(f.store.Events))
	}
	ev := f.store.Events[0]
	if ev.DocumentID != 7 || ev.RequestID == nil || *ev.RequestID != req.ID || ev.Email != "alice@example.com" || ev.IP != "198.51.100.1" {
		t.Errorf("audit event = %+v", ev)
	}
}

func TestAuthorize_EmptyHashDenied(t *testing.T) {
	f := newFixture(t)
	req := f.grant(t, 7, "alice@example.com")

	_, err := f.pipeline.Authorize(context.Background(), Credentials{DocumentID: 7, Email: req.RequesterEmail, RequestID: req.ID})
	d := denial(t, err)
	if !errors.Is(err, ErrAccessDenied) || d.Reason != ReasonMissingCredential || d.Status() != http.StatusForbidden {
		t.Fatalf("denial = %+v", d)
	}
	if d.Document == nil || d.Document.Title != "Annual report" {
		t.Errorf("denial should carry document context, got %+v", d.Document)
	}
}

func TestAuthorize_MismatchedCredentials(t *testing.T) {
	f := newFixture(t)
	req := f.grant(t, 7, "alice@example.com")
	ctx := context.Background()

	for name, c := range map[string]Credentials{
		"email":    {DocumentID: 7, Hash: req.Hash(), Email: "mallory@example.com"},
		"document": {DocumentID: 8, Hash: req.Hash(), Email: req.RequesterEmail},
		"request":  {DocumentID: 7, Hash: req.Hash(), Email: req.RequesterEmail, RequestID: req.ID + 1},
		"hash":     {DocumentID: 7, Hash: "deadbeef", Email: req.RequesterEmail},
	} {
		_, err := f.pipeline.Authorize(ctx, c)
		if d := denial(t, err); d.Reason != ReasonInvalidLink || d.Status() != http.StatusForbidden {
			t.Errorf("%s: denial = %+v", name, d)
		}
	}
}

func TestAuthorize_DeclinedHashIsInvalid(t *testing.T) {
	f := newFixture(t)
	req := f.grant(t, 7, "alice@example.com")
	if _, err := f.machine.Decline(context.Background(), req.ID, "admin"); err != nil {
		t.Fatal(err)
	}
	_, err := f.pipeline.Authorize(context.Background(), Credentials{DocumentID: 7, Hash: req.Hash(), Email: req.RequesterEmail, RequestID: req.ID})
	if d := denial(t, err); d.Reason != ReasonInvalidLink {
		t.Fatalf("reason = %q, want %q", d.Reason, ReasonInvalidLink)
	}
}

func TestAuthorize_InactiveThenRestored(t *testing.T) {
	f := newFixture(t)
	req := f.grant(t, 7, "alice@example.com")
	ctx := context.Background()
	creds := Credentials{DocumentID: 7, Hash: req.Hash(), Email: req.RequesterEmail, RequestID: req.ID}

	if _, err := f.machine.ToggleInactive(ctx, req.ID, "admin"); err != nil {
		t.Fatal(err)
	}
	_, err := f.pipeline.Authorize(ctx, creds)
	d := denial(t, err)
	if d.Reason != ReasonDeactivated || d.Reason == ReasonInvalidLink {
		t.Fatalf("inactive reason = %q", d.Reason)
	}
	// Without a request id the status alone still denies.
	creds.RequestID = 0
	if _, err := f.pipeline.Authorize(ctx, creds); denial(t, err).Reason != ReasonDeactivated {
		t.Fatal("inactive request must be denied without request id too")
	}

	restored, err := f.machine.ToggleInactive(ctx, req.ID, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if restored.After.Hash() != req.Hash() {
		t.Fatal("restore changed the hash")
	}
	if _, err := f.pipeline.Authorize(ctx, creds); err != nil {
		t.Fatalf("restored request denied: %v", err)
	}
}

func TestAuthorize_MissingFile(t *testing.T) {
	f := newFixture(t)
	req := f.grant(t, 8, "alice@example.com")
	_, err := f.pipeline.Release(context.Background(), Credentials{DocumentID: 8, Hash: req.Hash(), Email: req.RequesterEmail})
	d := denial(t, err)
	if !errors.Is(err, ErrResourceMissing) || d.Status() != http.StatusNotFound || d.Reason != ReasonFileMissing {
		t.Fatalf("denial = %+v", d)
	}
	if len(f.store.Events) != 0 {
		t.Error("denied release must not be audited")
	}
}

func TestAuthorize_PathOutsideStorage(t *testing.T) {
	f := newFixture(t)
	req := f.grant(t, 9, "alice@example.com")
	_, err := f.pipeline.Authorize(context.Background(), Credentials{DocumentID: 9, Hash: req.Hash(), Email: req.RequesterEmail})
	if !errors.Is(err, ErrResourceMissing) {
		t.Fatalf("escape path = %v, want resource missing", err)
	}
}

func TestAuthorize_UnknownDocumentAfterCredentials(t *testing.T) {
	f := newFixture(t)
	// Credentials are checked first: an unknown document with no hash is a
	// 403, not a 404.
	_, err := f.pipeline.Authorize(context.Background(), Credentials{DocumentID: 999})
	if d := denial(t, err); d.Status() != http.StatusForbidden || d.Document != nil {
		t.Fatalf("denial = %+v", d)
	}
}

func TestRelease_FileToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok, _, err := f.files.Issue(7)
	if err != nil {
		t.Fatal(err)
	}
	g, err := f.pipeline.Release(ctx, Credentials{DocumentID: 7, FileToken: tok})
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if g.Via != "file_token" || g.Request != nil {
		t.Errorf("grant = %+v", g)
	}
	if len(f.store.Events) != 1 || f.store.Events[0].RequestID != nil {
		t.Errorf("audit = %+v", f.store.Events)
	}

	_, err = f.pipeline.Release(ctx, Credentials{DocumentID: 8, FileToken: tok})
	if d := denial(t, err); d.Reason != ReasonInvalidFileToken {
		t.Errorf("token for another document: %+v", d)
	}
}
