// Package scopes defines the scope catalog contract the validator negotiates
// against, plus a static implementation suitable for most deployments.
//
// The catalog answers two questions per client and request context: which
// scopes may be granted at all, and which scopes apply when the client asks
// for none. Deployments with per-tenant or per-environment scope rules plug
// in their own Catalog implementation.
package scopes

import (
	"context"
)

// Catalog is the pluggable scope backend.
//
// The request context value carries whatever the protocol engine knows about
// the inbound request; static catalogs ignore it, multi-tenant catalogs key
// off it.
type Catalog interface {
	// AvailableScopes returns the scopes that may be granted to the client.
	AvailableScopes(ctx context.Context, clientID string) ([]string, error)

	// DefaultScopes returns the scopes granted when the client requests none.
	DefaultScopes(ctx context.Context, clientID string) ([]string, error)
}

// Static is a Catalog backed by fixed scope sets, with optional per-client
// overrides of the available set.
type Static struct {
	// Available lists the scopes any client may request.
	Available []string

	// Default lists the scopes granted when a client requests none.
	// Must be a subset of Available.
	Default []string

	// PerClient optionally narrows the available set for specific clients,
	// keyed by client_id.
	PerClient map[string][]string
}

// AvailableScopes returns the per-client override when one exists, otherwise
// the global available set.
func (s *Static) AvailableScopes(_ context.Context, clientID string) ([]string, error) {
	if override, ok := s.PerClient[clientID]; ok {
		return append([]string(nil), override...), nil
	}
	return append([]string(nil), s.Available...), nil
}

// DefaultScopes returns the global default set.
func (s *Static) DefaultScopes(_ context.Context, _ string) ([]string, error) {
	return append([]string(nil), s.Default...), nil
}
