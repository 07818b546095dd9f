package access

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"

	"github.com/stacklok/feed-registry-server/internal/events"
	"github.com/stacklok/feed-registry-server/internal/ownership"
)

// GrantPolicy grants access per caller, either to every request (global) or
// to exact encoded requests (local). Checks are enabled on creation; while
// disabled every caller has access.
type GrantPolicy struct {
	*ownership.Owned

	name      string
	publisher *events.Publisher

	mu           sync.RWMutex
	checkEnabled bool
	global       map[string]bool
	local        map[string]map[string]bool
}

var _ Policy = (*GrantPolicy)(nil)

// NewGrantPolicy creates a standalone GrantPolicy owned by owner.
func NewGrantPolicy(name, owner string, publisher *events.Publisher) (*GrantPolicy, error) {
	owned, err := ownership.New(owner, events.OwnershipNotifier(publisher, "access:"+name))
	if err != nil {
		return nil, err
	}
	return NewSharedGrantPolicy(name, owned, publisher)
}

// NewSharedGrantPolicy creates a GrantPolicy administered through owned.
// Handing owned over also hands over grant management.
func NewSharedGrantPolicy(name string, owned *ownership.Owned, publisher *events.Publisher) (*GrantPolicy, error) {
	if owned == nil {
		return nil, errors.New("grant policy requires an owner")
	}
	return &GrantPolicy{
		Owned:        owned,
		name:         name,
		publisher:    publisher,
		checkEnabled: true,
		global:       make(map[string]bool),
		local:        make(map[string]map[string]bool),
	}, nil
}

// Name returns the policy reference name.
func (p *GrantPolicy) Name() string {
	return p.name
}

// CheckEnabled reports whether access checks are enforced.
func (p *GrantPolicy) CheckEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.checkEnabled
}

// HasAccess implements Policy.
func (p *GrantPolicy) HasAccess(_ context.Context, caller string, data []byte) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.checkEnabled {
		return true, nil
	}
	if p.global[caller] {
		return true, nil
	}
	return p.local[caller][string(data)], nil
}

// AddGlobalAccess grants caller access to every request.
func (p *GrantPolicy) AddGlobalAccess(ctx context.Context, actor, caller string) error {
	if err := p.RequireOwner(actor); err != nil {
		return err
	}
	p.mu.Lock()
	added := !p.global[caller]
	p.global[caller] = true
	p.mu.Unlock()

	if added {
		p.emit(ctx, events.TypeAccessAdded, actor, caller, nil)
	}
	return nil
}

// RemoveGlobalAccess revokes a global grant. Local grants are untouched.
func (p *GrantPolicy) RemoveGlobalAccess(ctx context.Context, actor, caller string) error {
	if err := p.RequireOwner(actor); err != nil {
		return err
	}
	p.mu.Lock()
	removed := p.global[caller]
	delete(p.global, caller)
	p.mu.Unlock()

	if removed {
		p.emit(ctx, events.TypeAccessRemoved, actor, caller, nil)
	}
	return nil
}

// AddLocalAccess grants caller access to the exact encoded request data.
func (p *GrantPolicy) AddLocalAccess(ctx context.Context, actor, caller string, data []byte) error {
	if err := p.RequireOwner(actor); err != nil {
		return err
	}
	p.mu.Lock()
	grants, ok := p.local[caller]
	if !ok {
		grants = make(map[string]bool)
		p.local[caller] = grants
	}
	added := !grants[string(data)]
	grants[string(data)] = true
	p.mu.Unlock()

	if added {
		p.emit(ctx, events.TypeAccessAdded, actor, caller, data)
	}
	return nil
}

// RemoveLocalAccess revokes an exact grant. A global grant is untouched.
func (p *GrantPolicy) RemoveLocalAccess(ctx context.Context, actor, caller string, data []byte) error {
	if err := p.RequireOwner(actor); err != nil {
		return err
	}
	p.mu.Lock()
	removed := p.local[caller][string(data)]
	if removed {
		delete(p.local[caller], string(data))
		if len(p.local[caller]) == 0 {
			delete(p.local, caller)
		}
	}
	p.mu.Unlock()

	if removed {
		p.emit(ctx, events.TypeAccessRemoved, actor, caller, data)
	}
	return nil
}

// EnableAccessCheck turns enforcement on.
func (p *GrantPolicy) EnableAccessCheck(ctx context.Context, actor string) error {
	return p.setCheck(ctx, actor, true)
}

// DisableAccessCheck turns enforcement off; every caller then has access.
func (p *GrantPolicy) DisableAccessCheck(ctx context.Context, actor string) error {
	return p.setCheck(ctx, actor, false)
}

func (p *GrantPolicy) setCheck(ctx context.Context, actor string, enabled bool) error {
	if err := p.RequireOwner(actor); err != nil {
		return err
	}
	p.mu.Lock()
	changed := p.checkEnabled != enabled
	p.checkEnabled = enabled
	p.mu.Unlock()

	if !changed {
		return nil
	}
	eventType := events.TypeCheckAccessDisabled
	if enabled {
		eventType = events.TypeCheckAccessEnabled
	}
	slog.InfoContext(ctx, "Access check toggled", "policy", p.name, "enabled", enabled, "actor", actor)
	p.publisher.Publish(ctx, events.Event{
		Type:    eventType,
		Emitter: "access:" + p.name,
		Policy:  p.name,
		Actor:   actor,
	})
	return nil
}

func (p *GrantPolicy) emit(ctx context.Context, t events.Type, actor, caller string, data []byte) {
	p.publisher.Publish(ctx, events.Event{
		Type:    t,
		Emitter: "access:" + p.name,
		Policy:  p.name,
		Actor:   actor,
		Caller:  caller,
		Data:    hex.EncodeToString(data),
	})
}
