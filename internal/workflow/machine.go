package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/labstack/gommon/log"

	"github.com/iliyamo/document-access-gate/internal/model"
	"github.com/iliyamo/document-access-gate/internal/notify"
	"github.com/iliyamo/document-access-gate/internal/utils"
)

// Store is the persistence the machine drives.  Mutate must lock the row,
// call decide with the current state and persist the returned mutation in
// one transaction; an error from decide aborts without writing.
type Store interface {
	Create(ctx context.Context, documentID uint64, name, email string, initial model.Status) (uint64, error)
	Get(ctx context.Context, id uint64) (model.AccessRequest, error)
	Mutate(ctx context.Context, id uint64, decide func(model.AccessRequest) (model.Mutation, error)) (model.AccessRequest, model.AccessRequest, error)
	Remove(ctx context.Context, id uint64) (model.AccessRequest, error)
}

// Options tunes a Machine.
type Options struct {
	InitialStatus model.Status
	Restore       RestorePolicy
	Logger        *log.Logger
	// MintHash creates secure hashes; defaults to utils.NewSecureHash.
	MintHash func(requestID uint64) (string, error)
}

// Machine applies administrative actions through the transition table.
type Machine struct {
	store    Store
	notifier notify.Notifier
	opts     Options
	log      *log.Logger
}

func NewMachine(store Store, notifier notify.Notifier, opts Options) *Machine {
	if store == nil {
		panic("nil store passed to NewMachine")
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	switch opts.InitialStatus {
	case model.StatusPending, model.StatusInactive:
	default:
		opts.InitialStatus = model.StatusPending
	}
	if opts.MintHash == nil {
		opts.MintHash = utils.NewSecureHash
	}
	if opts.Logger == nil {
		opts.Logger = log.New("workflow")
	}
	return &Machine{store: store, notifier: notifier, opts: opts, log: opts.Logger}
}

// Result reports a completed action.  Warning is set when the state change
// succeeded but its notification could not be delivered.
type Result struct {
	Before   model.AccessRequest
	After    model.AccessRequest
	Removed  bool
	Inferred bool // the restored status was guessed (no memory recorded)
	Warning  string
}

// Submission reports a created request.
type Submission struct {
	ID      uint64
	Status  model.Status
	Warning string
}

// Submit creates a request for documentID and notifies administrators.
// A duplicate active request surfaces as repository.ErrDuplicateRequest.
func (m *Machine) Submit(ctx context.Context, documentID uint64, name, email string) (Submission, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	id, err := m.store.Create(ctx, documentID, name, email, m.opts.InitialStatus)
	if err != nil {
		return Submission{}, err
	}
	m.log.Infof("request %d submitted for document %d by %s", id, documentID, email)

	ev := notify.NewEvent(notify.KindSubmitted)
	ev.RequestID = id
	ev.DocumentID = documentID
	ev.RequesterName = strings.TrimSpace(name)
	ev.RequesterEmail = email
	ev.NewStatus = string(m.opts.InitialStatus)
	ev.Trigger = "submission"
	return Submission{ID: id, Status: m.opts.InitialStatus, Warning: m.emit(ctx, ev)}, nil
}

// Apply runs action on request id.  trigger names the caller for the audit
// log (e.g. "admin", "link:reaccept").
func (m *Machine) Apply(ctx context.Context, id uint64, action Action, trigger string) (Result, error) {
	if action == ActionDelete {
		return m.remove(ctx, id, trigger)
	}
	if _, ok := table[action]; !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}

	var inferred bool
	before, after, err := m.store.Mutate(ctx, id, func(cur model.AccessRequest) (model.Mutation, error) {
		r, err := lookup(action, cur.Status)
		if err != nil {
			return model.Mutation{}, err
		}
		mut := model.Mutation{Status: r.to, Hash: r.hash}
		if r.restore {
			mut.Status, inferred = restoreTarget(cur, m.opts.Restore)
		}
		if r.hash == model.HashReplace {
			h, err := m.opts.MintHash(cur.ID)
			if err != nil {
				return model.Mutation{}, fmt.Errorf("mint secure hash: %w", err)
			}
			mut.NewHash = h
		}
		switch {
		case r.stash:
			mut.Memory, mut.Stash = model.MemoryStash, cur.Status
		case r.purge:
			mut.Memory = model.MemoryPurge
		}
		return mut, nil
	})
	if err != nil {
		if errors.Is(err, ErrIllegalTransition) {
			m.log.Warnf("request %d: %v (trigger=%s)", id, err, trigger)
		} else {
			m.log.Errorf("request %d: %s failed: %v (trigger=%s)", id, action, err, trigger)
		}
		return Result{}, err
	}
	if inferred {
		m.log.Warnf("request %d restored to %s without recorded previous status (inferred, verify manually)", id, after.Status)
	}
	m.log.Infof("request %d: %s -> %s via %s (trigger=%s)", id, before.Status, after.Status, action, trigger)

	ev := m.event(eventKind(action), before, trigger)
	ev.NewStatus = string(after.Status)
	return Result{Before: before, After: after, Inferred: inferred, Warning: m.emit(ctx, ev)}, nil
}

// eventKind maps an action to the notification it emits.  Only accept and
// decline mail the requester; hiding and restoring do not.
func eventKind(a Action) notify.Kind {
	switch a {
	case ActionAccept:
		return notify.KindGranted
	case ActionDecline:
		return notify.KindDeclined
	}
	return notify.KindStatusChanged
}

func (m *Machine) remove(ctx context.Context, id uint64, trigger string) (Result, error) {
	before, err := m.store.Remove(ctx, id)
	if err != nil {
		m.log.Errorf("request %d: delete failed: %v (trigger=%s)", id, err, trigger)
		return Result{}, err
	}
	m.log.Infof("request %d deleted (was %s, trigger=%s)", id, before.Status, trigger)
	ev := m.event(notify.KindDeleted, before, trigger)
	return Result{Before: before, Removed: true, Warning: m.emit(ctx, ev)}, nil
}

func (m *Machine) event(kind notify.Kind, before model.AccessRequest, trigger string) notify.Event {
	ev := notify.NewEvent(kind)
	ev.RequestID = before.ID
	ev.DocumentID = before.DocumentID
	ev.RequesterName = before.RequesterName
	ev.RequesterEmail = before.RequesterEmail
	ev.OldStatus = string(before.Status)
	ev.Trigger = trigger
	return ev
}

// emit delivers ev and converts a failure into a warning string.
func (m *Machine) emit(ctx context.Context, ev notify.Event) string {
	if err := m.notifier.Notify(ctx, ev); err != nil {
		m.log.Warnf("notification %s for request %d failed: %v", ev.Kind, ev.RequestID, err)
		return "email could not be sent"
	}
	return ""
}

// Accept, Decline, ToggleInactive and Delete are shorthands for Apply.

func (m *Machine) Accept(ctx context.Context, id uint64, trigger string) (Result, error) {
	return m.Apply(ctx, id, ActionAccept, trigger)
}

func (m *Machine) Decline(ctx context.Context, id uint64, trigger string) (Result, error) {
	return m.Apply(ctx, id, ActionDecline, trigger)
}

func (m *Machine) ToggleInactive(ctx context.Context, id uint64, trigger string) (Result, error) {
	return m.Apply(ctx, id, ActionToggleInactive, trigger)
}

func (m *Machine) Delete(ctx context.Context, id uint64, trigger string) (Result, error) {
	return m.Apply(ctx, id, ActionDelete, trigger)
}

// Get returns the request with the given id.
func (m *Machine) Get(ctx context.Context, id uint64) (model.AccessRequest, error) {
	return m.store.Get(ctx, id)
}
