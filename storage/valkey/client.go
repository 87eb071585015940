package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-core/storage"
)

// ============================================================
// Client operations
// ============================================================

// clientJSON is the JSON representation of a client record
type clientJSON struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret,omitempty"`
	ClientType   string   `json:"client_type"`
	GrantTypes   []string `json:"grant_types,omitempty"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
	Disabled     bool     `json:"disabled,omitempty"`
	CreatedAt    int64    `json:"created_at"`
}

func toClientJSON(c *storage.Client) *clientJSON {
	return &clientJSON{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		ClientType:   c.ClientType,
		GrantTypes:   c.GrantTypes,
		RedirectURIs: c.RedirectURIs,
		Disabled:     c.Disabled,
		CreatedAt:    c.CreatedAt.Unix(),
	}
}

func fromClientJSON(j *clientJSON) *storage.Client {
	if j == nil {
		return nil
	}
	return &storage.Client{
		ClientID:     j.ClientID,
		ClientSecret: j.ClientSecret,
		ClientType:   j.ClientType,
		GrantTypes:   j.GrantTypes,
		RedirectURIs: j.RedirectURIs,
		Disabled:     j.Disabled,
		CreatedAt:    time.Unix(j.CreatedAt, 0),
	}
}

func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	data, err := s.getRecord(ctx, s.clientKey(clientID))
	if err != nil {
		return nil, err
	}
	var j clientJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}
	return fromClientJSON(&j), nil
}

func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	data, err := json.Marshal(toClientJSON(client))
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}
	return s.setRecord(ctx, s.clientKey(client.ClientID), data, 0)
}

func (s *Store) UpdateClient(ctx context.Context, client *storage.Client) error {
	if _, err := s.GetClient(ctx, client.ClientID); err != nil {
		return err
	}
	return s.SaveClient(ctx, client)
}

func (s *Store) DeleteClient(ctx context.Context, clientID string) error {
	existed, err := s.deleteKeys(ctx, s.clientKey(clientID))
	if err != nil {
		return err
	}
	if !existed {
		return storage.ErrNotFound
	}
	return nil
}

// ============================================================
// User operations
// ============================================================

// userJSON is the JSON representation of a user record
type userJSON struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	LastLogin int64  `json:"last_login,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

func toUserJSON(u *storage.User) *userJSON {
	j := &userJSON{
		ID:        u.ID,
		Username:  u.Username,
		CreatedAt: u.CreatedAt.Unix(),
	}
	if !u.LastLogin.IsZero() {
		j.LastLogin = u.LastLogin.Unix()
	}
	return j
}

func fromUserJSON(j *userJSON) *storage.User {
	if j == nil {
		return nil
	}
	u := &storage.User{
		ID:        j.ID,
		Username:  j.Username,
		CreatedAt: time.Unix(j.CreatedAt, 0),
	}
	if j.LastLogin > 0 {
		u.LastLogin = time.Unix(j.LastLogin, 0)
	}
	return u
}

func (s *Store) GetUser(ctx context.Context, id string) (*storage.User, error) {
	data, err := s.getRecord(ctx, s.userKey(id))
	if err != nil {
		return nil, err
	}
	var j userJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}
	return fromUserJSON(&j), nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	id, err := s.getIndex(ctx, s.usernameKey(username))
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, id)
}

func (s *Store) SaveUser(ctx context.Context, user *storage.User) error {
	data, err := json.Marshal(toUserJSON(user))
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := s.setRecord(ctx, s.userKey(user.ID), data, 0); err != nil {
		return err
	}
	return s.setIndex(ctx, s.usernameKey(user.Username), user.ID, 0)
}
