package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

// scopeToList splits a stored scope string into individual scopes.
func scopeToList(scope string) []string {
	return strings.Fields(scope)
}

// listToScope joins scopes into the stored string form.
func listToScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ValidateScopes reports whether every requested scope is available to
// the client per the scope catalog. On success the requested scopes are
// bound to req.Scopes.
func (v *Validator) ValidateScopes(ctx context.Context, clientID string, requested []string, client *storage.Client, req *Request) (bool, error) {
	available, err := v.catalog.AvailableScopes(ctx, clientID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve available scopes: %w", err)
	}

	allowed := make(map[string]struct{}, len(available))
	for _, s := range available {
		allowed[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := allowed[s]; !ok {
			v.logger.Debug("scope not available to client", "client_id", clientID, "scope", s)
			v.auditor.LogEvent(security.Event{
				Type:     security.EventScopeEscalationAttempt,
				ClientID: clientID,
				Details:  map[string]any{"scope": s},
			})
			return false, nil
		}
	}

	req.Scopes = requested
	return true, nil
}

// DefaultScopes returns the scopes granted when a request names none.
func (v *Validator) DefaultScopes(ctx context.Context, clientID string, req *Request) ([]string, error) {
	defaults, err := v.catalog.DefaultScopes(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve default scopes: %w", err)
	}
	return defaults, nil
}
