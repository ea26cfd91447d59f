package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/document-access-gate/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var requestColumns = []string{"id", "document_id", "requester_name", "requester_email", "status", "previous", "secure_hash", "created_at", "updated_at"}

func TestCreate_Duplicate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE r.document_id = \? AND r.requester_email = \? AND r.status <> 'declined'\s+AND NOT \(r.status = 'inactive' AND p.status <=> 'declined'\)`).
		WithArgs(3, "bob@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectRollback()

	_, err := NewAccessRequestRepo(db).Create(context.Background(), 3, "Bob", " Bob@X.com ", model.StatusPending)
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("Create = %v, want ErrDuplicateRequest", err)
	}
}

func TestCreate_Inserts(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT r.id FROM access_requests r`).
		WithArgs(3, "bob@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(`INSERT INTO access_requests`).
		WithArgs(3, "Bob", "bob@x.com", "pending").
		WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectCommit()

	id, err := NewAccessRequestRepo(db).Create(context.Background(), 3, "Bob", "bob@x.com", model.StatusPending)
	if err != nil || id != 12 {
		t.Fatalf("Create = %d, %v", id, err)
	}
}

func TestMutate_StashesPreviousStatus(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	hash := "aa11"

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM access_requests r\s+LEFT JOIN access_request_previous_status p .* WHERE r.id = \? FOR UPDATE`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(requestColumns).
			AddRow(5, 7, "Alice", "alice@example.com", "accepted", nil, hash, now, now))
	mock.ExpectExec(`UPDATE access_requests SET status = \?, updated_at = \? WHERE id = \?`).
		WithArgs("inactive", sqlmock.AnyArg(), 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO access_request_previous_status`).
		WithArgs(5, "accepted").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	before, after, err := NewAccessRequestRepo(db).Mutate(context.Background(), 5, func(cur model.AccessRequest) (model.Mutation, error) {
		return model.Mutation{Status: model.StatusInactive, Memory: model.MemoryStash, Stash: cur.Status}, nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if before.Status != model.StatusAccepted || before.Hash() != hash {
		t.Errorf("before = %+v", before)
	}
	if after.Status != model.StatusInactive || after.Hash() != hash || after.PreviousStatus == nil || *after.PreviousStatus != model.StatusAccepted {
		t.Errorf("after = %+v", after)
	}
}

func TestMutate_ClearsHashAndPurges(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE r.id = \? FOR UPDATE`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(requestColumns).
			AddRow(5, 7, "Alice", "alice@example.com", "inactive", "accepted", "aa11", now, now))
	mock.ExpectExec(`UPDATE access_requests SET status = \?, secure_hash = NULL`).
		WithArgs("declined", sqlmock.AnyArg(), 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM access_request_previous_status WHERE request_id = \?`).
		WithArgs(5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	_, after, err := NewAccessRequestRepo(db).Mutate(context.Background(), 5, func(model.AccessRequest) (model.Mutation, error) {
		return model.Mutation{Status: model.StatusDeclined, Hash: model.HashClear, Memory: model.MemoryPurge}, nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if after.SecureHash != nil || after.PreviousStatus != nil {
		t.Errorf("after = %+v", after)
	}
}

func TestMutate_DecideErrorRollsBack(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(requestColumns).
			AddRow(5, 7, "Alice", "alice@example.com", "declined", nil, nil, now, now))
	mock.ExpectRollback()

	refuse := errors.New("illegal")
	_, _, err := NewAccessRequestRepo(db).Mutate(context.Background(), 5, func(model.AccessRequest) (model.Mutation, error) {
		return model.Mutation{}, refuse
	})
	if !errors.Is(err, refuse) {
		t.Fatalf("Mutate = %v", err)
	}
}

func TestMutate_NotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(5).WillReturnRows(sqlmock.NewRows(requestColumns))
	mock.ExpectRollback()

	_, _, err := NewAccessRequestRepo(db).Mutate(context.Background(), 5, func(model.AccessRequest) (model.Mutation, error) {
		t.Fatal("decide must not run for a missing row")
		return model.Mutation{}, nil
	})
	if !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("Mutate = %v", err)
	}
}

func TestFindByCredentials(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	repo := NewAccessRequestRepo(db)

	mock.ExpectQuery(`WHERE r.secure_hash = \? AND r.requester_email = \? AND r.document_id = \? AND r.id = \? LIMIT 1`).
		WithArgs("aa11", "alice@example.com", 7, 5).
		WillReturnRows(sqlmock.NewRows(requestColumns).
			AddRow(5, 7, "Alice", "alice@example.com", "inactive", "accepted", "aa11", now, now))
	req, err := repo.FindByCredentials(context.Background(), "aa11", "Alice@example.com", 7, 5)
	if err != nil || req.Status != model.StatusInactive || *req.PreviousStatus != model.StatusAccepted {
		t.Fatalf("FindByCredentials = %+v, %v", req, err)
	}

	mock.ExpectQuery(`WHERE r.secure_hash = \?`).
		WithArgs("nope", "alice@example.com", 7).
		WillReturnRows(sqlmock.NewRows(requestColumns))
	if _, err := repo.FindByCredentials(context.Background(), "nope", "alice@example.com", 7, 0); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("missing = %v", err)
	}

	if _, err := repo.FindByCredentials(context.Background(), "", "alice@example.com", 7, 0); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("empty hash = %v", err)
	}
}

func TestIsAccessible(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAccessRequestRepo(db)
	mock.ExpectQuery(`SELECT status FROM access_requests WHERE id = \?`).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("inactive"))
	if ok, err := repo.IsAccessible(context.Background(), 5); err != nil || ok {
		t.Fatalf("inactive: %v %v", ok, err)
	}
	mock.ExpectQuery(`SELECT status FROM access_requests WHERE id = \?`).WithArgs(6).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("accepted"))
	if ok, err := repo.IsAccessible(context.Background(), 6); err != nil || !ok {
		t.Fatalf("accepted: %v %v", ok, err)
	}
}

func TestUsedTokenRepo_MarkUsed(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUsedTokenRepo(db)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO used_action_tokens`).WithArgs("k1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if fresh, err := repo.MarkUsed(ctx, "k1", time.Hour); err != nil || !fresh {
		t.Fatalf("first MarkUsed = %v, %v", fresh, err)
	}

	mock.ExpectExec(`INSERT INTO used_action_tokens`).WithArgs("k1", sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	if fresh, err := repo.MarkUsed(ctx, "k1", time.Hour); err != nil || fresh {
		t.Fatalf("duplicate MarkUsed = %v, %v", fresh, err)
	}

	mock.ExpectExec(`INSERT INTO used_action_tokens`).WithArgs("k2", sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))
	if _, err := repo.MarkUsed(ctx, "k2", time.Hour); err == nil {
		t.Fatal("transport error should surface")
	}
}

func TestGetByHash_OnlyAccessibleStatuses(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	repo := NewAccessRequestRepo(db)

	mock.ExpectQuery(`WHERE r.secure_hash = \? AND r.status IN \('accepted','pending'\) LIMIT 1`).
		WithArgs("bb22").
		WillReturnRows(sqlmock.NewRows(requestColumns).
			AddRow(3, 7, "Bob", "bob@x.com", "accepted", nil, "bb22", now, now))
	req, err := repo.GetByHash(context.Background(), "bb22")
	if err != nil || req.ID != 3 || req.Hash() != "bb22" || req.PreviousStatus != nil {
		t.Fatalf("GetByHash = %+v, %v", req, err)
	}

	mock.ExpectQuery(`WHERE r.secure_hash = \?`).WithArgs("gone").
		WillReturnRows(sqlmock.NewRows(requestColumns))
	if _, err := repo.GetByHash(context.Background(), "gone"); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("inactive or unknown hash = %v", err)
	}
}

func TestListAndCount(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	repo := NewAccessRequestRepo(db)

	mock.ExpectQuery(`ORDER BY r.id DESC LIMIT \? OFFSET \?`).WithArgs(2, 2).
		WillReturnRows(sqlmock.NewRows(requestColumns).
			AddRow(2, 7, "B", "b@x.com", "pending", nil, nil, now, now).
			AddRow(1, 7, "A", "a@x.com", "declined", nil, nil, now, now))
	items, err := repo.List(context.Background(), 2, 2)
	if err != nil || len(items) != 2 || items[0].ID != 2 || items[1].HasHash() {
		t.Fatalf("List = %+v, %v", items, err)
	}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM access_requests`).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(4))
	if n, err := repo.Count(context.Background()); err != nil || n != 4 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}
