// Package workflow owns the access-request state machine: an explicit
// transition table, the side effects each transition carries (hash minting,
// hash revocation, previous-status memory) and the notification emitted
// after every successful change.
package workflow

import (
	"errors"
	"fmt"

	"github.com/iliyamo/document-access-gate/internal/model"
)

// Action is an administrative command on a request.
type Action int

const (
	ActionAccept Action = iota + 1
	ActionDecline
	ActionToggleInactive
	ActionDelete
)

var actionNames = map[Action]string{
	ActionAccept:         "accept",
	ActionDecline:        "decline",
	ActionToggleInactive: "inactive",
	ActionDelete:         "delete",
}

func (a Action) String() string {
	if s, ok := actionNames[a]; ok {
		return s
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ParseAction maps the admin API's action names onto the closed set.
func ParseAction(s string) (Action, error) {
	switch s {
	case "accept":
		return ActionAccept, nil
	case "decline":
		return ActionDecline, nil
	case "inactive", "toggle-inactive", "toggle_inactive":
		return ActionToggleInactive, nil
	case "delete":
		return ActionDelete, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

var (
	ErrUnknownAction     = errors.New("unknown action")
	ErrIllegalTransition = errors.New("illegal transition")
)

// RestorePolicy picks the status restored from inactive when no previous
// status was remembered.
type RestorePolicy int

const (
	// RestoreInfer restores accepted when a hash is attached, else pending.
	RestoreInfer RestorePolicy = iota
	// RestorePending always restores pending.
	RestorePending
)

func ParseRestorePolicy(s string) (RestorePolicy, error) {
	switch s {
	case "", "infer":
		return RestoreInfer, nil
	case "pending":
		return RestorePending, nil
	}
	return 0, fmt.Errorf("unknown restore policy %q", s)
}

// rule is one row of the transition table.  restore marks the inactive
// toggle-back, whose target depends on the remembered status.
type rule struct {
	to      model.Status
	restore bool
	hash    model.HashChange
	stash   bool // remember the source status before entering inactive
	purge   bool // forget the remembered status
}

var (
	acceptRule  = rule{to: model.StatusAccepted, hash: model.HashReplace}
	declineRule = rule{to: model.StatusDeclined, hash: model.HashClear}
	hideRule    = rule{to: model.StatusInactive, hash: model.HashKeep, stash: true}
)

// table lists every legal (action, from) pair.  Delete is legal from every
// status and is handled by the store's Remove, so it has no rows here.
var table = map[Action]map[model.Status]rule{
	ActionAccept: {
		model.StatusPending:  acceptRule,
		model.StatusDeclined: acceptRule,
		// Re-accepting rotates the hash and re-sends the grant.
		model.StatusAccepted: acceptRule,
		model.StatusInactive: {to: model.StatusAccepted, hash: model.HashReplace, purge: true},
	},
	ActionDecline: {
		model.StatusPending:  declineRule,
		model.StatusAccepted: declineRule,
		model.StatusInactive: {to: model.StatusDeclined, hash: model.HashClear, purge: true},
	},
	ActionToggleInactive: {
		model.StatusPending:  hideRule,
		model.StatusAccepted: hideRule,
		model.StatusDeclined: hideRule,
		model.StatusInactive: {restore: true, hash: model.HashKeep, purge: true},
	},
}

func lookup(a Action, from model.Status) (rule, error) {
	rows, ok := table[a]
	if !ok {
		return rule{}, fmt.Errorf("%w: %s", ErrUnknownAction, a)
	}
	r, ok := rows[from]
	if !ok {
		return rule{}, fmt.Errorf("%w: cannot %s a %s request", ErrIllegalTransition, a, from)
	}
	return r, nil
}

// restoreTarget resolves the status an inactive request returns to.  The
// second result is true when it had to be guessed.
func restoreTarget(req model.AccessRequest, policy RestorePolicy) (model.Status, bool) {
	if req.PreviousStatus != nil && *req.PreviousStatus != model.StatusInactive {
		return *req.PreviousStatus, false
	}
	if policy == RestoreInfer && req.HasHash() {
		return model.StatusAccepted, true
	}
	return model.StatusPending, true
}
