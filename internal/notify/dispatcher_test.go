package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/document-access-gate/internal/links"
	"github.com/iliyamo/document-access-gate/internal/model"
	"github.com/iliyamo/document-access-gate/internal/repository/repotest"
	"github.com/iliyamo/document-access-gate/internal/token"
)

type sent struct{ to, subject, body string }

type fakeMailer struct {
	out  []sent
	fail map[string]error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	if err := m.fail[to]; err != nil {
		return err
	}
	m.out = append(m.out, sent{to, subject, body})
	return nil
}

type fixture struct {
	store  *repotest.Store
	mailer *fakeMailer
	d      *Dispatcher
}

func newFixture(t *testing.T, autoResponse bool) *fixture {
	t.Helper()
	store := repotest.New()
	store.AddDocument(model.Document{ID: 7, Title: "Annual report", FileName: "report.pdf", FilePath: "report.pdf"})
	b := links.NewBuilder("https://docs.example.com")
	mailer := &fakeMailer{fail: map[string]error{}}
	d := NewDispatcher(DispatcherDeps{
		Mailer:       mailer,
		Requests:     store,
		Documents:    store,
		FileTokens:   token.NewFileTokens("jwt-secret", time.Minute),
		ActionTokens: token.NewActionTokens([]byte("0123456789abcdef0123456789abcdef"), time.Hour, time.Hour, token.NewMemoryMarker(), b),
		Links:        b,
		Admins:       []string{"admin@example.com", "ops@example.com"},
		AutoResponse: autoResponse,
	})
	return &fixture{store: store, mailer: mailer, d: d}
}

func (f *fixture) accepted(t *testing.T, hash string) model.AccessRequest {
	t.Helper()
	ctx := context.Background()
	id, err := f.store.Create(ctx, 7, "Alice", "alice@example.com", model.StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	_, after, err := f.store.Mutate(ctx, id, func(model.AccessRequest) (model.Mutation, error) {
		return model.Mutation{Status: model.StatusAccepted, Hash: model.HashReplace, NewHash: hash}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return after
}

func TestNotify_SubmittedMailsAdminsAndRequester(t *testing.T) {
	f := newFixture(t, true)
	ev := NewEvent(KindSubmitted)
	ev.RequestID, ev.DocumentID = 5, 7
	ev.RequesterName, ev.RequesterEmail = "Alice", "alice@example.com"

	if err := f.d.Notify(context.Background(), ev); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(f.mailer.out) != 3 {
		t.Fatalf("sent %d mails, want 3", len(f.mailer.out))
	}
	admin := f.mailer.out[0]
	if admin.to != "admin@example.com" || !strings.Contains(admin.subject, "Annual report") {
		t.Errorf("admin mail = %+v", admin)
	}
	if !strings.Contains(admin.body, "https://docs.example.com/?") || !strings.Contains(admin.body, "action-link=") || !strings.Contains(admin.body, "rid=5") {
		t.Errorf("admin mail lacks accept link: %s", admin.body)
	}
	if f.mailer.out[2].to != "alice@example.com" {
		t.Errorf("auto-response went to %s", f.mailer.out[2].to)
	}
}

func TestNotify_SubmittedWithoutAutoResponse(t *testing.T) {
	f := newFixture(t, false)
	ev := NewEvent(KindSubmitted)
	ev.RequestID, ev.DocumentID, ev.RequesterEmail = 5, 7, "alice@example.com"
	if err := f.d.Notify(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	for _, m := range f.mailer.out {
		if m.to == "alice@example.com" {
			t.Fatal("auto-response sent while disabled")
		}
	}
}

func TestNotify_PartialFailureReported(t *testing.T) {
	f := newFixture(t, true)
	f.mailer.fail["ops@example.com"] = errors.New("mailbox full")
	ev := NewEvent(KindSubmitted)
	ev.RequestID, ev.DocumentID, ev.RequesterEmail = 5, 7, "alice@example.com"

	err := f.d.Notify(context.Background(), ev)
	if err == nil || !strings.Contains(err.Error(), "ops@example.com") {
		t.Fatalf("err = %v", err)
	}
	if len(f.mailer.out) != 2 {
		t.Errorf("other recipients should still be mailed, sent %d", len(f.mailer.out))
	}
}

func TestNotify_GrantedCarriesViewerLink(t *testing.T) {
	f := newFixture(t, false)
	hash := strings.Repeat("ab", 32)
	req := f.accepted(t, hash)

	ev := NewEvent(KindGranted)
	ev.RequestID, ev.DocumentID = req.ID, 7
	if err := f.d.Notify(context.Background(), ev); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(f.mailer.out) != 1 {
		t.Fatalf("sent %d mails", len(f.mailer.out))
	}
	m := f.mailer.out[0]
	if m.to != "alice@example.com" || !strings.Contains(m.body, "viewer") || !strings.Contains(m.body, "hash="+hash) {
		t.Errorf("grant mail = %+v", m)
	}
}

func TestNotify_GrantSkippedWhenOvertaken(t *testing.T) {
	f := newFixture(t, false)
	req := f.accepted(t, strings.Repeat("cd", 32))
	ctx := context.Background()
	f.store.Mutate(ctx, req.ID, func(model.AccessRequest) (model.Mutation, error) {
		return model.Mutation{Status: model.StatusDeclined, Hash: model.HashClear}, nil
	})

	ev := NewEvent(KindGranted)
	ev.RequestID = req.ID
	if err := f.d.Notify(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if len(f.mailer.out) != 0 {
		t.Fatal("grant mail sent for a declined request")
	}
}

func TestNotify_DeclinedAndIgnoredKinds(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	ev := NewEvent(KindDeclined)
	ev.RequestID, ev.DocumentID = 1, 7
	ev.RequesterName, ev.RequesterEmail = "Bob", "bob@x.com"
	if err := f.d.Notify(ctx, ev); err != nil {
		t.Fatal(err)
	}
	for _, k := range []Kind{KindStatusChanged, KindDeleted} {
		e := NewEvent(k)
		e.RequestID = 1
		if err := f.d.Notify(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if len(f.mailer.out) != 1 || f.mailer.out[0].to != "bob@x.com" || !strings.Contains(f.mailer.out[0].subject, "declined") {
		t.Fatalf("mails = %+v", f.mailer.out)
	}
}
