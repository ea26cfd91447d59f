// Package repotest provides an in-memory stand-in for the MySQL
// repositories, for tests of the workflow, access and handler layers.
package repotest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/document-access-gate/internal/model"
	"github.com/iliyamo/document-access-gate/internal/repository"
)

// Store keeps requests, documents and access events in maps.  It mirrors
// the repository contracts: the duplicate guard, accessible-only hash
// lookup, atomic mutations and sentinel errors.
type Store struct {
	mu       sync.Mutex
	nextID   uint64
	requests map[uint64]model.AccessRequest
	docs     map[uint64]model.Document
	Events   []model.AccessEvent

	// FailMutate, when set, is returned from Mutate before anything changes.
	FailMutate error
}

func New() *Store {
	return &Store{requests: map[uint64]model.AccessRequest{}, docs: map[uint64]model.Document{}}
}

// AddDocument registers a document under its ID.
func (s *Store) AddDocument(d model.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[d.ID] = d
}

func (s *Store) GetByID(_ context.Context, id uint64) (model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return model.Document{}, repository.ErrDocumentNotFound
	}
	return d, nil
}

func (s *Store) Create(_ context.Context, documentID uint64, name, email string, initial model.Status) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, r := range s.requests {
		if r.DocumentID == documentID && r.RequesterEmail == email && r.Active() {
			return 0, repository.ErrDuplicateRequest
		}
	}
	s.nextID++
	now := time.Now().UTC()
	s.requests[s.nextID] = model.AccessRequest{
		ID:             s.nextID,
		DocumentID:     documentID,
		RequesterName:  strings.TrimSpace(name),
		RequesterEmail: email,
		Status:         initial,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return s.nextID, nil
}

func (s *Store) Get(_ context.Context, id uint64) (model.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return model.AccessRequest{}, repository.ErrRequestNotFound
	}
	return r, nil
}

func (s *Store) GetByHash(_ context.Context, hash string) (model.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if hash != "" && r.Hash() == hash && r.Status.Accessible() {
			return r, nil
		}
	}
	return model.AccessRequest{}, repository.ErrRequestNotFound
}

func (s *Store) FindByCredentials(_ context.Context, hash, email string, documentID, requestID uint64) (model.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, r := range s.requests {
		if hash == "" || r.Hash() != hash || r.RequesterEmail != email || r.DocumentID != documentID {
			continue
		}
		if requestID != 0 && r.ID != requestID {
			continue
		}
		return r, nil
	}
	return model.AccessRequest{}, repository.ErrRequestNotFound
}

func (s *Store) IsAccessible(_ context.Context, id uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return false, repository.ErrRequestNotFound
	}
	return r.Status != model.StatusInactive, nil
}

func (s *Store) List(_ context.Context, page, perPage int) ([]model.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	all := make([]model.AccessRequest, 0, len(s.requests))
	for _, r := range s.requests {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	start := (page - 1) * perPage
	if start >= len(all) {
		return []model.AccessRequest{}, nil
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests), nil
}

func (s *Store) Mutate(_ context.Context, id uint64, decide func(model.AccessRequest) (model.Mutation, error)) (model.AccessRequest, model.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero model.AccessRequest
	if s.FailMutate != nil {
		return zero, zero, s.FailMutate
	}
	before, ok := s.requests[id]
	if !ok {
		return zero, zero, repository.ErrRequestNotFound
	}
	m, err := decide(before)
	if err != nil {
		return zero, zero, err
	}
	after := m.Apply(before, time.Now().UTC())
	s.requests[id] = after
	return before, after, nil
}

func (s *Store) Remove(_ context.Context, id uint64) (model.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return model.AccessRequest{}, repository.ErrRequestNotFound
	}
	delete(s.requests, id)
	return r, nil
}

// ForgetPrevious drops the remembered status of a request, simulating a
// lost side-channel row.
func (s *Store) ForgetPrevious(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return errors.New("no such request")
	}
	r.PreviousStatus = nil
	s.requests[id] = r
	return nil
}

func (s *Store) Record(_ context.Context, ev model.AccessEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	return nil
}

// Documents returns a view over the store's documents with the
// DocumentRepo method set.
func (s *Store) Documents() *Documents { return &Documents{s: s} }

// Documents registers and reads documents held by a Store.
type Documents struct{ s *Store }

func (d *Documents) Create(_ context.Context, doc model.Document) (uint64, error) {
	d.s.mu.Lock()
	defer d.s.mu.Unlock()
	var last uint64
	for id := range d.s.docs {
		if id > last {
			last = id
		}
	}
	doc.ID = last + 1
	doc.CreatedAt = time.Now().UTC()
	d.s.docs[doc.ID] = doc
	return doc.ID, nil
}

func (d *Documents) GetByID(ctx context.Context, id uint64) (model.Document, error) {
	return d.s.GetByID(ctx, id)
}
