package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-core/storage"
)

// ============================================================
// Access token operations
// ============================================================

// accessTokenJSON is the JSON representation of an access token record
type accessTokenJSON struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	UserID    string `json:"user_id,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Scope     string `json:"scope,omitempty"`
	ExpiresAt int64  `json:"expires_at"`
	CreatedAt int64  `json:"created_at"`
}

func toAccessTokenJSON(t *storage.AccessToken) *accessTokenJSON {
	return &accessTokenJSON{
		ID:        t.ID,
		Token:     t.Token,
		UserID:    t.UserID,
		ClientID:  t.ClientID,
		Scope:     t.Scope,
		ExpiresAt: t.ExpiresAt.Unix(),
		CreatedAt: t.CreatedAt.Unix(),
	}
}

func fromAccessTokenJSON(j *accessTokenJSON) *storage.AccessToken {
	if j == nil {
		return nil
	}
	return &storage.AccessToken{
		ID:        j.ID,
		Token:     j.Token,
		UserID:    j.UserID,
		ClientID:  j.ClientID,
		Scope:     j.Scope,
		ExpiresAt: time.Unix(j.ExpiresAt, 0),
		CreatedAt: time.Unix(j.CreatedAt, 0),
	}
}

func (s *Store) GetAccessToken(ctx context.Context, id string) (*storage.AccessToken, error) {
	data, err := s.getRecord(ctx, s.accessTokenKey(id))
	if err != nil {
		return nil, err
	}
	var j accessTokenJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal access token: %w", err)
	}
	return fromAccessTokenJSON(&j), nil
}

func (s *Store) GetAccessTokenByToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	id, err := s.getIndex(ctx, s.accessTokenIndexKey(token))
	if err != nil {
		return nil, err
	}
	return s.GetAccessToken(ctx, id)
}

// GetAccessTokenForUpdate reads the row for rewrite. The Atomic lock
// already serializes writers, so there is no extra row lock to take.
func (s *Store) GetAccessTokenForUpdate(ctx context.Context, id string) (*storage.AccessToken, error) {
	return s.GetAccessToken(ctx, id)
}

func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) error {
	data, err := json.Marshal(toAccessTokenJSON(token))
	if err != nil {
		return fmt.Errorf("failed to marshal access token: %w", err)
	}

	ttl := retentionTTL(token.ExpiresAt)
	if err := s.setRecord(ctx, s.accessTokenKey(token.ID), data, ttl); err != nil {
		return err
	}
	return s.setIndex(ctx, s.accessTokenIndexKey(token.Token), token.ID, ttl)
}

// UpdateAccessToken rewrites the record and moves the token index when
// the token string changed.
func (s *Store) UpdateAccessToken(ctx context.Context, token *storage.AccessToken) error {
	previous, err := s.GetAccessToken(ctx, token.ID)
	if err != nil {
		return err
	}
	if previous.Token != token.Token {
		if _, err := s.deleteKeys(ctx, s.accessTokenIndexKey(previous.Token)); err != nil {
			return err
		}
	}
	return s.SaveAccessToken(ctx, token)
}

func (s *Store) DeleteAccessToken(ctx context.Context, id string) error {
	token, err := s.GetAccessToken(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.deleteKeys(ctx, s.accessTokenKey(id), s.accessTokenIndexKey(token.Token))
	return err
}

// ============================================================
// Refresh token operations
// ============================================================

// refreshTokenJSON is the JSON representation of a refresh token record
type refreshTokenJSON struct {
	ID            string `json:"id"`
	Token         string `json:"token"`
	UserID        string `json:"user_id,omitempty"`
	ClientID      string `json:"client_id,omitempty"`
	AccessTokenID string `json:"access_token_id,omitempty"`
	CreatedAt     int64  `json:"created_at"`
}

func toRefreshTokenJSON(t *storage.RefreshToken) *refreshTokenJSON {
	return &refreshTokenJSON{
		ID:            t.ID,
		Token:         t.Token,
		UserID:        t.UserID,
		ClientID:      t.ClientID,
		AccessTokenID: t.AccessTokenID,
		CreatedAt:     t.CreatedAt.Unix(),
	}
}

func fromRefreshTokenJSON(j *refreshTokenJSON) *storage.RefreshToken {
	if j == nil {
		return nil
	}
	return &storage.RefreshToken{
		ID:            j.ID,
		Token:         j.Token,
		UserID:        j.UserID,
		ClientID:      j.ClientID,
		AccessTokenID: j.AccessTokenID,
		CreatedAt:     time.Unix(j.CreatedAt, 0),
	}
}

func (s *Store) getRefreshToken(ctx context.Context, id string) (*storage.RefreshToken, error) {
	data, err := s.getRecord(ctx, s.refreshTokenKey(id))
	if err != nil {
		return nil, err
	}
	var j refreshTokenJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}
	return fromRefreshTokenJSON(&j), nil
}

func (s *Store) GetRefreshTokenByToken(ctx context.Context, token string) (*storage.RefreshToken, error) {
	id, err := s.getIndex(ctx, s.refreshTokenIndexKey(token))
	if err != nil {
		return nil, err
	}
	return s.getRefreshToken(ctx, id)
}

// Refresh tokens have no expiry of their own; they live until revoked.
func (s *Store) SaveRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	data, err := json.Marshal(toRefreshTokenJSON(token))
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}
	if err := s.setRecord(ctx, s.refreshTokenKey(token.ID), data, 0); err != nil {
		return err
	}
	return s.setIndex(ctx, s.refreshTokenIndexKey(token.Token), token.ID, 0)
}

func (s *Store) UpdateRefreshToken(ctx context.Context, token *storage.RefreshToken) error {
	previous, err := s.getRefreshToken(ctx, token.ID)
	if err != nil {
		return err
	}
	if previous.Token != token.Token {
		if _, err := s.deleteKeys(ctx, s.refreshTokenIndexKey(previous.Token)); err != nil {
			return err
		}
	}
	return s.SaveRefreshToken(ctx, token)
}

func (s *Store) DeleteRefreshToken(ctx context.Context, id string) error {
	token, err := s.getRefreshToken(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.deleteKeys(ctx, s.refreshTokenKey(id), s.refreshTokenIndexKey(token.Token))
	return err
}

// ============================================================
// ID token operations
// ============================================================

// idTokenJSON is the JSON representation of an ID token record
type idTokenJSON struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	UserID    string `json:"user_id,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Scope     string `json:"scope,omitempty"`
	ExpiresAt int64  `json:"expires_at"`
	CreatedAt int64  `json:"created_at"`
}

func toIDTokenJSON(t *storage.IDToken) *idTokenJSON {
	return &idTokenJSON{
		ID:        t.ID,
		Token:     t.Token,
		UserID:    t.UserID,
		ClientID:  t.ClientID,
		Scope:     t.Scope,
		ExpiresAt: t.ExpiresAt.Unix(),
		CreatedAt: t.CreatedAt.Unix(),
	}
}

func fromIDTokenJSON(j *idTokenJSON) *storage.IDToken {
	if j == nil {
		return nil
	}
	return &storage.IDToken{
		ID:        j.ID,
		Token:     j.Token,
		UserID:    j.UserID,
		ClientID:  j.ClientID,
		Scope:     j.Scope,
		ExpiresAt: time.Unix(j.ExpiresAt, 0),
		CreatedAt: time.Unix(j.CreatedAt, 0),
	}
}

func (s *Store) getIDToken(ctx context.Context, id string) (*storage.IDToken, error) {
	data, err := s.getRecord(ctx, s.idTokenKey(id))
	if err != nil {
		return nil, err
	}
	var j idTokenJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ID token: %w", err)
	}
	return fromIDTokenJSON(&j), nil
}

func (s *Store) GetIDTokenByToken(ctx context.Context, token string) (*storage.IDToken, error) {
	id, err := s.getIndex(ctx, s.idTokenIndexKey(token))
	if err != nil {
		return nil, err
	}
	return s.getIDToken(ctx, id)
}

func (s *Store) SaveIDToken(ctx context.Context, token *storage.IDToken) error {
	data, err := json.Marshal(toIDTokenJSON(token))
	if err != nil {
		return fmt.Errorf("failed to marshal ID token: %w", err)
	}

	ttl := retentionTTL(token.ExpiresAt)
	if err := s.setRecord(ctx, s.idTokenKey(token.ID), data, ttl); err != nil {
		return err
	}
	return s.setIndex(ctx, s.idTokenIndexKey(token.Token), token.ID, ttl)
}

func (s *Store) DeleteIDToken(ctx context.Context, id string) error {
	token, err := s.getIDToken(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.deleteKeys(ctx, s.idTokenKey(id), s.idTokenIndexKey(token.Token))
	return err
}
