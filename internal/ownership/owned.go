// Package ownership implements the two-step ownership handover shared by the
// registry and its access policies.
package ownership

import (
	"errors"
	"sync"
)

var (
	// ErrUnauthorized is returned when the caller is not the current owner.
	ErrUnauthorized = errors.New("only callable by owner")
	// ErrZeroOwner is returned when an empty owner is supplied.
	ErrZeroOwner = errors.New("cannot set owner to zero")
	// ErrTransferToSelf is returned when the owner proposes itself.
	ErrTransferToSelf = errors.New("cannot transfer to self")
	// ErrNotPendingOwner is returned when someone other than the proposed owner accepts.
	ErrNotPendingOwner = errors.New("must be proposed owner")
)

// Notifier receives ownership notifications. A nil Notifier drops them.
type Notifier interface {
	TransferRequested(from, to string)
	Transferred(from, to string)
}

// Owned holds the owner and pending owner of a component.
type Owned struct {
	mu       sync.RWMutex
	owner    string
	pending  string
	notifier Notifier
}

// New creates an Owned with the given initial owner.
func New(owner string, notifier Notifier) (*Owned, error) {
	if owner == "" {
		return nil, ErrZeroOwner
	}
	return &Owned{owner: owner, notifier: notifier}, nil
}

// Owner returns the current owner.
func (o *Owned) Owner() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.owner
}

// PendingOwner returns the proposed owner, or an empty string.
func (o *Owned) PendingOwner() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pending
}

// IsOwner reports whether caller is the current owner.
func (o *Owned) IsOwner(caller string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return caller != "" && caller == o.owner
}

// RequireOwner returns ErrUnauthorized unless caller is the current owner.
func (o *Owned) RequireOwner(caller string) error {
	if !o.IsOwner(caller) {
		return ErrUnauthorized
	}
	return nil
}

// TransferOwnership proposes to as the next owner. Only the owner may call it.
func (o *Owned) TransferOwnership(caller, to string) error {
	o.mu.Lock()
	if caller == "" || caller != o.owner {
		o.mu.Unlock()
		return ErrUnauthorized
	}
	if to == o.owner {
		o.mu.Unlock()
		return ErrTransferToSelf
	}
	if to == "" {
		o.mu.Unlock()
		return ErrZeroOwner
	}
	o.pending = to
	from := o.owner
	o.mu.Unlock()

	if o.notifier != nil {
		o.notifier.TransferRequested(from, to)
	}
	return nil
}

// AcceptOwnership completes a transfer. Only the pending owner may call it.
func (o *Owned) AcceptOwnership(caller string) error {
	o.mu.Lock()
	if o.pending == "" || caller != o.pending {
		o.mu.Unlock()
		return ErrNotPendingOwner
	}
	from := o.owner
	o.owner = caller
	o.pending = ""
	o.mu.Unlock()

	if o.notifier != nil {
		o.notifier.Transferred(from, caller)
	}
	return nil
}
