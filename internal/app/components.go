package app

import (
	"github.com/stacklok/feed-registry-server/internal/access"
	"github.com/stacklok/feed-registry-server/internal/app/storage"
	"github.com/stacklok/feed-registry-server/internal/events"
	"github.com/stacklok/feed-registry-server/internal/facade"
	"github.com/stacklok/feed-registry-server/internal/registry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Registry serves feeds and owns phase transitions
	Registry *registry.Registry

	// EventLog keeps every notification for /v1/events
	EventLog *events.Log

	// Policies are the access policies the owner can switch between, by name
	Policies map[string]access.Policy

	// Storage backs the registry's phase store
	Storage storage.Factory

	// Facades serve single pairs by name
	Facades map[string]*facade.AccessControlledFacade
}
