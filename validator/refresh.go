package validator

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-core/storage"
)

// RotateRefreshToken reports whether the refresh grant issues a new
// refresh token or keeps the presented one.
func (v *Validator) RotateRefreshToken(req *Request) bool {
	return v.config.rotateRefreshTokens()
}

// ValidateRefreshToken reports whether token is a live refresh token
// issued to client. On success the token row, its linked access token
// and its user are bound to the request for the rest of the exchange.
func (v *Validator) ValidateRefreshToken(ctx context.Context, token string, client *storage.Client, req *Request) (bool, error) {
	if client == nil {
		client = req.Client
	}
	if client == nil {
		return false, newContractError("ValidateRefreshToken", "no client bound to request")
	}

	rt, err := v.store.GetRefreshTokenByToken(ctx, token)
	if err != nil {
		if storage.IsNotFound(err) {
			v.logger.Debug("refresh token not found", "client_id", client.ClientID)
			return false, nil
		}
		return false, fmt.Errorf("failed to load refresh token: %w", err)
	}

	user, err := v.store.GetUser(ctx, rt.UserID)
	if err != nil && !storage.IsNotFound(err) {
		return false, fmt.Errorf("failed to load refresh token user: %w", err)
	}

	var linked *storage.AccessToken
	if rt.AccessTokenID != "" {
		linked, err = v.store.GetAccessToken(ctx, rt.AccessTokenID)
		if err != nil && !storage.IsNotFound(err) {
			return false, fmt.Errorf("failed to load linked access token: %w", err)
		}
	}

	req.User = user
	req.RefreshTokenValue = token
	req.refreshToken = rt
	req.refreshAccessToken = linked

	return rt.ClientID == client.ClientID, nil
}

// OriginalScopes returns the scopes of the access token the presented
// refresh token is linked to. It reads the records ValidateRefreshToken
// bound to the request and never goes back to storage.
func (v *Validator) OriginalScopes(ctx context.Context, refreshToken string, req *Request) ([]string, error) {
	if req.refreshToken == nil {
		return nil, newContractError("OriginalScopes", "no refresh token bound to request")
	}
	if req.refreshAccessToken == nil {
		return nil, fmt.Errorf("refresh token %q has no linked access token", req.refreshToken.ID)
	}
	return scopeToList(req.refreshAccessToken.Scope), nil
}

// saveRefreshedBearerToken persists a token payload that carries a
// refresh token. With rotation off and a usable previous pair, the
// existing access token row is locked and rewritten in place and the
// presented refresh token survives. Otherwise the previous pair is
// revoked (tolerating rows a concurrent exchange already removed) and a
// fresh pair is created. Runs inside the caller's transaction.
func (v *Validator) saveRefreshedBearerToken(ctx context.Context, st storage.Store, payload *BearerToken, req *Request, expires time.Time) error {
	rt := req.refreshToken

	if !v.config.rotateRefreshTokens() && rt != nil && rt.AccessTokenID != "" {
		at, err := st.GetAccessTokenForUpdate(ctx, rt.AccessTokenID)
		if err != nil {
			return fmt.Errorf("failed to lock access token for reuse: %w", err)
		}
		at.Token = payload.AccessToken
		at.UserID = requestUserID(req)
		at.ClientID = req.Client.ClientID
		at.Scope = payload.Scope
		at.ExpiresAt = expires
		if err := st.UpdateAccessToken(ctx, at); err != nil {
			return fmt.Errorf("failed to rewrite access token: %w", err)
		}
		req.refreshAccessToken = at

		v.auditor.LogTokenRefreshed(requestUserID(req), req.Client.ClientID, false)
		if m := v.metrics(); m != nil {
			m.RecordTokenRefresh(ctx, false)
		}
		return nil
	}

	if rt != nil {
		if err := v.revokeRefreshPair(ctx, st, rt); err != nil {
			return err
		}
		req.refreshToken = nil
		req.refreshAccessToken = nil
	}

	now := time.Now()
	at := &storage.AccessToken{
		ID:        newTokenID(),
		Token:     payload.AccessToken,
		UserID:    requestUserID(req),
		ClientID:  req.Client.ClientID,
		Scope:     payload.Scope,
		ExpiresAt: expires,
		CreatedAt: now,
	}
	if err := st.SaveAccessToken(ctx, at); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}

	newRT := &storage.RefreshToken{
		ID:            newTokenID(),
		Token:         payload.RefreshToken,
		UserID:        requestUserID(req),
		ClientID:      req.Client.ClientID,
		AccessTokenID: at.ID,
		CreatedAt:     now,
	}
	if err := st.SaveRefreshToken(ctx, newRT); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	if rt != nil {
		v.auditor.LogTokenRefreshed(requestUserID(req), req.Client.ClientID, true)
		if m := v.metrics(); m != nil {
			m.RecordTokenRefresh(ctx, true)
		}
	}
	return nil
}

// revokeRefreshPair deletes a refresh token and its linked access token.
// Rows that are already gone are fine; a concurrent exchange may have
// won the race.
func (v *Validator) revokeRefreshPair(ctx context.Context, st storage.Store, rt *storage.RefreshToken) error {
	if rt.AccessTokenID != "" {
		if err := st.DeleteAccessToken(ctx, rt.AccessTokenID); err != nil && !storage.IsNotFound(err) {
			return fmt.Errorf("failed to revoke linked access token: %w", err)
		}
	}
	if err := st.DeleteRefreshToken(ctx, rt.ID); err != nil && !storage.IsNotFound(err) {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}
