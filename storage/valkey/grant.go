package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-core/storage"
)

// ============================================================
// Grant (authorization code) operations
// ============================================================

// grantJSON is the JSON representation of an authorization code record
type grantJSON struct {
	Code        string `json:"code"`
	ClientID    string `json:"client_id"`
	UserID      string `json:"user_id"`
	Scope       string `json:"scope,omitempty"`
	RedirectURI string `json:"redirect_uri,omitempty"`
	ExpiresAt   int64  `json:"expires_at"`
	CreatedAt   int64  `json:"created_at"`
}

func toGrantJSON(g *storage.Grant) *grantJSON {
	return &grantJSON{
		Code:        g.Code,
		ClientID:    g.ClientID,
		UserID:      g.UserID,
		Scope:       g.Scope,
		RedirectURI: g.RedirectURI,
		ExpiresAt:   g.ExpiresAt.Unix(),
		CreatedAt:   g.CreatedAt.Unix(),
	}
}

func fromGrantJSON(j *grantJSON) *storage.Grant {
	if j == nil {
		return nil
	}
	return &storage.Grant{
		Code:        j.Code,
		ClientID:    j.ClientID,
		UserID:      j.UserID,
		Scope:       j.Scope,
		RedirectURI: j.RedirectURI,
		ExpiresAt:   time.Unix(j.ExpiresAt, 0),
		CreatedAt:   time.Unix(j.CreatedAt, 0),
	}
}

func (s *Store) GetGrant(ctx context.Context, code string) (*storage.Grant, error) {
	data, err := s.getRecord(ctx, s.grantKey(code))
	if err != nil {
		return nil, err
	}
	var j grantJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grant: %w", err)
	}
	return fromGrantJSON(&j), nil
}

// SaveGrant stores the code with a TTL slightly past its expiry, so
// Valkey reclaims consumed-but-forgotten codes on its own.
func (s *Store) SaveGrant(ctx context.Context, grant *storage.Grant) error {
	data, err := json.Marshal(toGrantJSON(grant))
	if err != nil {
		return fmt.Errorf("failed to marshal grant: %w", err)
	}

	ttl := time.Until(grant.ExpiresAt) + grantExpiryBuffer
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.setRecord(ctx, s.grantKey(grant.Code), data, ttl)
}

func (s *Store) DeleteGrant(ctx context.Context, code string) error {
	existed, err := s.deleteKeys(ctx, s.grantKey(code))
	if err != nil {
		return err
	}
	if !existed {
		return storage.ErrNotFound
	}
	return nil
}
