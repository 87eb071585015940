package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

// grantTypeCapabilities maps each token-request grant_type to the client
// capabilities that may use it. The refresh_token grant is reachable
// from every capability that issues refresh tokens.
var grantTypeCapabilities = map[string][]string{
	"authorization_code": {storage.GrantAuthorizationCode, storage.GrantOpenIDHybrid},
	"password":           {storage.GrantPassword},
	"client_credentials": {storage.GrantClientCredentials},
	"refresh_token":      {storage.GrantAuthorizationCode, storage.GrantPassword, storage.GrantClientCredentials},
}

// responseTypeCapability maps each authorization-request response_type
// to the single client capability that covers it.
var responseTypeCapability = map[string]string{
	"code":                storage.GrantAuthorizationCode,
	"token":               storage.GrantImplicit,
	"id_token":            storage.GrantImplicit,
	"id_token token":      storage.GrantImplicit,
	"code id_token":       storage.GrantOpenIDHybrid,
	"code token":          storage.GrantOpenIDHybrid,
	"code id_token token": storage.GrantOpenIDHybrid,
}

// ValidateClientID reports whether clientID names a known, enabled
// client, and binds the record to req.Client.
func (v *Validator) ValidateClientID(ctx context.Context, clientID string, req *Request) (bool, error) {
	client, err := v.loadClient(ctx, clientID)
	if err != nil {
		return false, err
	}
	if client == nil {
		return false, nil
	}
	req.Client = client
	return true, nil
}

// ValidateGrantType reports whether the bound client may use grantType.
// An unrecognized grant type is a contract violation: the engine gates
// grant types before asking, so an unknown one here is an engine bug.
func (v *Validator) ValidateGrantType(ctx context.Context, clientID, grantType string, client *storage.Client, req *Request) (bool, error) {
	if client == nil {
		client = req.Client
	}
	if client == nil {
		return false, newContractError("ValidateGrantType", "no client bound to request")
	}
	capabilities, ok := grantTypeCapabilities[grantType]
	if !ok {
		return false, newContractError("ValidateGrantType", "unknown grant type %q", grantType)
	}
	return client.AllowsGrantType(capabilities...), nil
}

// ValidateResponseType reports whether the bound client may use
// responseType. Unlike grant types, the response type arrives straight
// from the authorization request, so an unknown value is an ordinary
// rejection.
func (v *Validator) ValidateResponseType(ctx context.Context, clientID, responseType string, client *storage.Client, req *Request) (bool, error) {
	if client == nil {
		client = req.Client
	}
	if client == nil {
		return false, newContractError("ValidateResponseType", "no client bound to request")
	}
	capability, ok := responseTypeCapability[responseType]
	if !ok {
		v.logger.Debug("unknown response type", "client_id", clientID, "response_type", responseType)
		return false, nil
	}
	return client.AllowsGrantType(capability), nil
}

// ValidateRedirectURI reports whether redirectURI is registered for the
// bound client.
func (v *Validator) ValidateRedirectURI(ctx context.Context, clientID, redirectURI string, req *Request) (bool, error) {
	if req.Client == nil {
		return false, newContractError("ValidateRedirectURI", "no client bound to request")
	}
	if !req.Client.RedirectURIAllowed(redirectURI) {
		v.auditor.LogEvent(security.Event{
			Type:     security.EventInvalidRedirect,
			ClientID: clientID,
			Details:  map[string]any{"redirect_uri": redirectURI},
		})
		return false, nil
	}
	return true, nil
}

// DefaultRedirectURI returns the redirect URI to use when the
// authorization request omitted one. A client with no registered URIs
// cannot take part in redirect-based flows at all.
func (v *Validator) DefaultRedirectURI(ctx context.Context, clientID string, req *Request) (string, error) {
	if req.Client == nil {
		return "", newContractError("DefaultRedirectURI", "no client bound to request")
	}
	uri := req.Client.DefaultRedirectURI()
	if uri == "" {
		return "", fmt.Errorf("client %q has no registered redirect URI", clientID)
	}
	return uri, nil
}

// ConfirmRedirectURI checks that the redirect_uri presented on the code
// exchange is exactly the one the code was issued against. A missing or
// foreign code fails soft; the engine has already rejected the code
// itself by this point, so this only guards the URI binding.
func (v *Validator) ConfirmRedirectURI(ctx context.Context, clientID, code, redirectURI string, client *storage.Client, req *Request) (bool, error) {
	if client == nil {
		client = req.Client
	}
	grant, err := v.store.GetGrant(ctx, code)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load authorization code: %w", err)
	}
	if client == nil || grant.ClientID != client.ClientID {
		return false, nil
	}
	// Exact match against the URI the code was bound to, not the
	// client's registered list.
	return grant.RedirectURI == redirectURI, nil
}

// SaveAuthorizationCode persists a freshly issued authorization code,
// bound to the request's client, user, redirect URI and scopes.
func (v *Validator) SaveAuthorizationCode(ctx context.Context, clientID, code string, req *Request) error {
	if req.Client == nil {
		return newContractError("SaveAuthorizationCode", "no client bound to request")
	}
	if req.User == nil {
		return newContractError("SaveAuthorizationCode", "no user bound to request")
	}

	now := time.Now()
	grant := &storage.Grant{
		Code:        code,
		ClientID:    req.Client.ClientID,
		UserID:      req.User.ID,
		Scope:       listToScope(req.Scopes),
		RedirectURI: req.RedirectURI,
		ExpiresAt:   now.Add(v.config.AuthorizationCodeTTL),
		CreatedAt:   now,
	}
	if err := v.store.SaveGrant(ctx, grant); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	v.auditor.LogEvent(security.Event{
		Type:     security.EventAuthorizationCodeIssued,
		UserID:   req.User.ID,
		ClientID: req.Client.ClientID,
		Details:  map[string]any{"scope": grant.Scope},
	})
	if m := v.metrics(); m != nil {
		m.RecordCodeIssued(ctx, req.Client.ClientID)
	}
	return nil
}

// ValidateCode reports whether code is a live authorization code issued
// to client. On success the code's user and scopes are bound to the
// request for the rest of the exchange.
func (v *Validator) ValidateCode(ctx context.Context, clientID, code string, client *storage.Client, req *Request) (bool, error) {
	if client == nil {
		client = req.Client
	}
	if client == nil {
		return false, newContractError("ValidateCode", "no client bound to request")
	}

	grant, err := v.store.GetGrant(ctx, code)
	if err != nil {
		if storage.IsNotFound(err) {
			v.logger.Debug("authorization code not found", "client_id", clientID)
			return false, nil
		}
		return false, fmt.Errorf("failed to load authorization code: %w", err)
	}
	if grant.ClientID != client.ClientID {
		v.logger.Debug("authorization code issued to another client", "client_id", clientID)
		return false, nil
	}
	if v.expired(grant.ExpiresAt) {
		v.logger.Debug("authorization code expired", "client_id", clientID)
		return false, nil
	}

	user, err := v.store.GetUser(ctx, grant.UserID)
	if err != nil {
		if storage.IsNotFound(err) {
			v.logger.Debug("authorization code user no longer exists", "user_id", grant.UserID)
			return false, nil
		}
		return false, fmt.Errorf("failed to load code user: %w", err)
	}

	req.User = user
	req.Scopes = scopeToList(grant.Scope)
	return true, nil
}

// AuthorizationCodeScopes returns the scopes an authorization code was
// issued with, without consuming or otherwise validating it. The client
// and redirect URI filters apply when non-empty; a mismatch, like an
// unknown code, yields an empty list.
func (v *Validator) AuthorizationCodeScopes(ctx context.Context, clientID, code, redirectURI string, req *Request) ([]string, error) {
	grant, err := v.store.GetGrant(ctx, code)
	if err != nil {
		if storage.IsNotFound(err) {
			v.logger.Debug("authorization code has no stored scopes", "client_id", clientID)
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to load authorization code: %w", err)
	}
	if clientID != "" && grant.ClientID != clientID {
		v.logger.Debug("authorization code issued to another client", "client_id", clientID)
		return []string{}, nil
	}
	if redirectURI != "" && grant.RedirectURI != redirectURI {
		v.logger.Debug("authorization code issued for another redirect uri", "client_id", clientID)
		return []string{}, nil
	}
	return scopeToList(grant.Scope), nil
}

// InvalidateAuthorizationCode consumes an authorization code. Deleting a
// code that is already gone is an error: it means the code was consumed
// concurrently, and the exchange that lost the race must not proceed.
func (v *Validator) InvalidateAuthorizationCode(ctx context.Context, clientID, code string, req *Request) error {
	if err := v.store.DeleteGrant(ctx, code); err != nil {
		if storage.IsNotFound(err) {
			return fmt.Errorf("authorization code already consumed: %w", err)
		}
		return fmt.Errorf("failed to invalidate authorization code: %w", err)
	}

	v.auditor.LogEvent(security.Event{
		Type:     security.EventAuthorizationCodeConsumed,
		ClientID: clientID,
	})
	return nil
}

// newTokenID returns a fresh storage row identifier.
func newTokenID() string {
	return uuid.NewString()
}
