package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-core/storage"
)

// SaveBearerToken persists the token payload the engine minted for the
// current grant. Payloads that carry a refresh token take the rotation
// or reuse path; both run inside one storage transaction so concurrent
// refreshes of the same token settle on a single winner.
//
// The payload's ExpiresIn is set to the configured access token TTL on
// the way out.
func (v *Validator) SaveBearerToken(ctx context.Context, payload *BearerToken, req *Request) error {
	if payload == nil {
		return newContractError("SaveBearerToken", "nil token payload")
	}
	if payload.Scope == "" {
		return newContractError("SaveBearerToken", "token payload has no scope")
	}
	if req.Client == nil {
		return newContractError("SaveBearerToken", "no client bound to request")
	}

	// Tokens from the client credentials grant have no resource owner.
	if req.GrantType == "client_credentials" {
		req.User = nil
	}

	expires := time.Now().Add(v.config.AccessTokenTTL)

	err := v.store.Atomic(ctx, func(st storage.Store) error {
		if payload.RefreshToken != "" {
			return v.saveRefreshedBearerToken(ctx, st, payload, req, expires)
		}
		at := &storage.AccessToken{
			ID:        newTokenID(),
			Token:     payload.AccessToken,
			UserID:    requestUserID(req),
			ClientID:  req.Client.ClientID,
			Scope:     payload.Scope,
			ExpiresAt: expires,
			CreatedAt: time.Now(),
		}
		return st.SaveAccessToken(ctx, at)
	})
	if err != nil {
		if IsContractError(err) {
			return err
		}
		return fmt.Errorf("failed to save bearer token: %w", err)
	}

	payload.ExpiresIn = int64(v.config.AccessTokenTTL.Seconds())

	v.auditor.LogTokenIssued(requestUserID(req), req.Client.ClientID, req.GrantType, payload.Scope)
	if m := v.metrics(); m != nil {
		m.RecordTokenIssued(ctx, req.GrantType)
	}
	return nil
}

// ValidateBearerToken reports whether token grants the required scopes.
// The local store is consulted first; when the token is unknown or no
// longer valid locally and a resource-server introspection endpoint is
// configured, the endpoint is asked and an active answer is cached as a
// local token row. Introspection failures are treated as an invalid
// token, never as a pass.
func (v *Validator) ValidateBearerToken(ctx context.Context, token string, requiredScopes []string, req *Request) (bool, error) {
	if token == "" {
		return false, nil
	}

	at, err := v.store.GetAccessTokenByToken(ctx, token)
	if err != nil {
		if !storage.IsNotFound(err) {
			return false, fmt.Errorf("failed to load access token: %w", err)
		}
		at = nil
	}

	// Unknown or locally stale tokens get one shot at the remote
	// introspection endpoint.
	if (at == nil || !v.tokenValid(at, requiredScopes)) && v.introspector != nil {
		at, err = v.introspectAndCache(ctx, token)
		if err != nil {
			at = nil
		}
	}

	valid := at != nil && v.tokenValid(at, requiredScopes)
	if m := v.metrics(); m != nil {
		m.RecordBearerValidation(ctx, valid)
	}
	if !valid {
		return false, nil
	}

	if err := v.bindAccessToken(ctx, at, requiredScopes, req); err != nil {
		return false, err
	}
	return true, nil
}

// tokenValid checks expiry (with clock skew leeway) and scope coverage.
func (v *Validator) tokenValid(at *storage.AccessToken, scopes []string) bool {
	return !v.expired(at.ExpiresAt) && at.AllowScopes(scopes)
}

// bindAccessToken binds the token row and its owner and client onto the
// request. Tokens learned through introspection have no local client and
// may have no user; those bindings stay nil.
func (v *Validator) bindAccessToken(ctx context.Context, at *storage.AccessToken, scopes []string, req *Request) error {
	req.AccessToken = at
	req.Scopes = scopes
	req.User = nil
	req.Client = nil

	if at.UserID != "" {
		user, err := v.store.GetUser(ctx, at.UserID)
		if err != nil && !storage.IsNotFound(err) {
			return fmt.Errorf("failed to load token user: %w", err)
		}
		req.User = user
	}
	if at.ClientID != "" {
		client, err := v.store.GetClient(ctx, at.ClientID)
		if err != nil && !storage.IsNotFound(err) {
			return fmt.Errorf("failed to load token client: %w", err)
		}
		req.Client = client
	}
	return nil
}

// introspectAndCache asks the resource server about token and, when the
// answer is active, caches it as a local access token row. The cached
// expiry never exceeds the configured caching window, so a revoked
// remote token goes stale here too. Cached rows have no client; their
// user is resolved, or created, from the introspected username.
func (v *Validator) introspectAndCache(ctx context.Context, token string) (*storage.AccessToken, error) {
	start := time.Now()
	resp, err := v.introspector.Introspect(ctx, token)
	if m := v.metrics(); m != nil {
		m.RecordIntrospection(ctx, err == nil, float64(time.Since(start).Milliseconds()))
	}
	if err != nil {
		v.logger.Warn("introspection request failed", "error", err)
		v.auditor.LogIntrospectionFailure(err.Error())
		return nil, fmt.Errorf("introspection failed: %w", err)
	}
	if !resp.Active {
		v.logger.Debug("introspection reports token inactive")
		return nil, fmt.Errorf("token is not active")
	}

	now := time.Now()

	var userID string
	if resp.Username != "" {
		user, err := v.store.GetUserByUsername(ctx, resp.Username)
		if storage.IsNotFound(err) {
			user = &storage.User{
				ID:        newTokenID(),
				Username:  resp.Username,
				CreatedAt: now,
			}
			if err := v.store.SaveUser(ctx, user); err != nil {
				return nil, fmt.Errorf("failed to create introspected user: %w", err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("failed to resolve introspected user: %w", err)
		}
		userID = user.ID
	}

	expiry := now.Add(v.config.ResourceServerTokenCaching)
	if resp.Exp > 0 {
		if remote := resp.ExpiresAt(); remote.Before(expiry) {
			expiry = remote
		}
	}

	at, err := v.store.GetAccessTokenByToken(ctx, token)
	if err == nil {
		at.UserID = userID
		at.ClientID = ""
		at.Scope = resp.Scope
		at.ExpiresAt = expiry
		if err := v.store.UpdateAccessToken(ctx, at); err != nil {
			return nil, fmt.Errorf("failed to refresh cached token: %w", err)
		}
		return at, nil
	}
	if !storage.IsNotFound(err) {
		return nil, fmt.Errorf("failed to load cached token: %w", err)
	}

	at = &storage.AccessToken{
		ID:        newTokenID(),
		Token:     token,
		UserID:    userID,
		Scope:     resp.Scope,
		ExpiresAt: expiry,
		CreatedAt: now,
	}
	if err := v.store.SaveAccessToken(ctx, at); err != nil {
		return nil, fmt.Errorf("failed to cache introspected token: %w", err)
	}
	return at, nil
}

// RevokeToken revokes an access or refresh token per RFC 7009. The type
// hint only orders the lookup: when the hinted type misses, the other is
// tried. Revoking a refresh token takes its access token with it.
// Unknown tokens are a silent no-op.
func (v *Validator) RevokeToken(ctx context.Context, token, tokenTypeHint string, req *Request) error {
	tryRefreshFirst := tokenTypeHint == "refresh_token"

	return v.store.Atomic(ctx, func(st storage.Store) error {
		if tryRefreshFirst {
			revoked, err := v.revokeRefreshByToken(ctx, st, token)
			if err != nil || revoked {
				return err
			}
			_, err = v.revokeAccessByToken(ctx, st, token)
			return err
		}

		revoked, err := v.revokeAccessByToken(ctx, st, token)
		if err != nil || revoked {
			return err
		}
		_, err = v.revokeRefreshByToken(ctx, st, token)
		return err
	})
}

func (v *Validator) revokeAccessByToken(ctx context.Context, st storage.Store, token string) (bool, error) {
	at, err := st.GetAccessTokenByToken(ctx, token)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load access token: %w", err)
	}
	if err := st.DeleteAccessToken(ctx, at.ID); err != nil && !storage.IsNotFound(err) {
		return false, fmt.Errorf("failed to revoke access token: %w", err)
	}

	v.auditor.LogTokenRevoked(at.UserID, at.ClientID, "access_token")
	if m := v.metrics(); m != nil {
		m.RecordTokenRevocation(ctx, "access_token")
	}
	return true, nil
}

func (v *Validator) revokeRefreshByToken(ctx context.Context, st storage.Store, token string) (bool, error) {
	rt, err := st.GetRefreshTokenByToken(ctx, token)
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load refresh token: %w", err)
	}
	if err := v.revokeRefreshPair(ctx, st, rt); err != nil {
		return false, err
	}

	v.auditor.LogTokenRevoked(rt.UserID, rt.ClientID, "refresh_token")
	if m := v.metrics(); m != nil {
		m.RecordTokenRevocation(ctx, "refresh_token")
	}
	return true, nil
}

// ValidateUser checks resource owner credentials for the password grant
// through the installed PasswordAuthenticator. Without one every attempt
// fails.
func (v *Validator) ValidateUser(ctx context.Context, username, password string, client *storage.Client, req *Request) (bool, error) {
	if v.passwordAuth == nil {
		v.logger.Debug("password grant attempted without a password authenticator")
		return false, nil
	}

	user, err := v.passwordAuth.Authenticate(ctx, username, password)
	if err != nil {
		return false, fmt.Errorf("password authentication failed: %w", err)
	}
	if user == nil {
		v.logger.Debug("resource owner credentials rejected", "username", username)
		return false, nil
	}

	req.User = user
	return true, nil
}

// requestUserID returns the bound user's ID, or "" for ownerless tokens.
func requestUserID(req *Request) string {
	if req.User == nil {
		return ""
	}
	return req.User.ID
}
