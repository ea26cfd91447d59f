package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an access request.  Inactive is an
// overlay: a request in it always remembers (or can infer) the status it
// will return to.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
	StatusInactive Status = "inactive"
)

// ParseStatus validates a stored or user-supplied status value.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusAccepted, StatusDeclined, StatusInactive:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Accessible reports whether a secure hash bound to a request in this status
// may unlock its document.
func (s Status) Accessible() bool {
	return s == StatusAccepted || s == StatusPending
}


// AccessRequest represents a row in the `access_requests` table joined with
// its previous-status memory.
//
// Fields:
//  ID             – primary key identifier.
//  DocumentID     – document the visitor wants (validated at read time).
//  RequesterName  – name given on submission; never updated.
//  RequesterEmail – normalized email given on submission; never updated.
//  Status         – current lifecycle status.
//  PreviousStatus – status stashed on entering inactive (nil otherwise).
//  SecureHash     – per-grant credential; nil unless accepted at least once
//                   and not declined since.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – touched on every mutation.
type AccessRequest struct {
	ID             uint64
	DocumentID     uint64
	RequesterName  string
	RequesterEmail string
	Status         Status
	PreviousStatus *Status
	SecureHash     *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasHash reports whether a secure hash is currently attached.
func (r AccessRequest) HasHash() bool {
	return r.SecureHash != nil && *r.SecureHash != ""
}

// Active reports whether the request blocks a new submission for the same
// document and email.  A hidden request counts as the status it will be
// restored to.
func (r AccessRequest) Active() bool {
	st := r.Status
	if st == StatusInactive && r.PreviousStatus != nil {
		st = *r.PreviousStatus
	}
	return st != StatusDeclined
}

// Hash returns the secure hash or "" when none is attached.
func (r AccessRequest) Hash() string {
	if r.SecureHash == nil {
		return ""
	}
	return *r.SecureHash
}

// HashChange says what a transition does to the secure hash column.
type HashChange int

const (
	HashKeep HashChange = iota
	HashReplace
	HashClear
)

// MemoryChange says what a transition does to the previous-status memory.
type MemoryChange int

const (
	MemoryKeep MemoryChange = iota
	MemoryStash
	MemoryPurge
)

// Mutation is the full set of column changes one transition applies.  The
// store persists it atomically: either every part lands or none does.
type Mutation struct {
	Status  Status
	Hash    HashChange
	NewHash string // set when Hash == HashReplace
	Memory  MemoryChange
	Stash   Status // set when Memory == MemoryStash
}

// Apply returns req as it looks after the mutation, stamped with now.
func (m Mutation) Apply(req AccessRequest, now time.Time) AccessRequest {
	out := req
	out.Status = m.Status
	switch m.Hash {
	case HashReplace:
		h := m.NewHash
		out.SecureHash = &h
	case HashClear:
		out.SecureHash = nil
	}
	switch m.Memory {
	case MemoryStash:
		st := m.Stash
		out.PreviousStatus = &st
	case MemoryPurge:
		out.PreviousStatus = nil
	}
	out.UpdatedAt = now
	return out
}
