package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/giantswarm/oauth-core/storage"
)

// Default cleanup interval for the janitor goroutine
const defaultCleanupInterval = 5 * time.Minute

// Store is an in-memory implementation of storage.Store.
//
// All maps are guarded by mu. Atomic blocks additionally hold txMu for their
// whole duration, so two concurrent Atomic calls never interleave. That is a
// stronger guarantee than row-level locking but it is exactly what the
// validator needs: refresh exchanges against the same token family are
// serialized, and nothing else runs long enough to contend.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	clients map[string]*storage.Client // keyed by client_id
	users   map[string]*storage.User   // keyed by user ID
	userIdx map[string]string          // username -> user ID
	grants  map[string]*storage.Grant  // keyed by code

	access    map[string]*storage.AccessToken // keyed by row ID
	accessIdx map[string]string               // token string -> row ID

	refresh    map[string]*storage.RefreshToken // keyed by row ID
	refreshIdx map[string]string                // token string -> row ID

	idTokens   map[string]*storage.IDToken // keyed by row ID
	idTokenIdx map[string]string           // serialized JWT -> row ID

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		clients:     make(map[string]*storage.Client),
		users:       make(map[string]*storage.User),
		userIdx:     make(map[string]string),
		grants:      make(map[string]*storage.Grant),
		access:      make(map[string]*storage.AccessToken),
		accessIdx:   make(map[string]string),
		refresh:     make(map[string]*storage.RefreshToken),
		refreshIdx:  make(map[string]string),
		idTokens:    make(map[string]*storage.IDToken),
		idTokenIdx:  make(map[string]string),
		stopCleanup: make(chan struct{}),
	}
}

// StartCleanup starts a janitor goroutine that periodically removes expired
// authorization codes. Expired token rows are intentionally left in place:
// the validator's introspection fallback and refresh-reuse paths both look up
// expired rows on purpose.
func (s *Store) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.cleanupExpiredGrants()
			case <-s.stopCleanup:
				return
			}
		}
	}()
}

// Stop terminates the janitor goroutine, if one was started.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

func (s *Store) cleanupExpiredGrants() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for code, g := range s.grants {
		if !g.ExpiresAt.IsZero() && now.After(g.ExpiresAt) {
			delete(s.grants, code)
		}
	}
}

// Atomic runs fn while holding the transaction mutex. The memory store has
// no rollback; fn is expected to perform its writes last, which holds for
// every validator code path.
func (s *Store) Atomic(_ context.Context, fn func(storage.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s)
}

// ============================================================
// ClientStore
// ============================================================

// GetClient retrieves a client by client_id.
func (s *Store) GetClient(_ context.Context, clientID string) (*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID]
	if !ok {
		return nil, fmt.Errorf("client %q: %w", clientID, storage.ErrNotFound)
	}
	return copyClient(c), nil
}

// SaveClient creates a client record.
func (s *Store) SaveClient(_ context.Context, client *storage.Client) error {
	if client == nil || client.ClientID == "" {
		return fmt.Errorf("invalid client")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.clients[client.ClientID]; exists {
		return fmt.Errorf("client %q already exists", client.ClientID)
	}
	s.clients[client.ClientID] = copyClient(client)
	return nil
}

// UpdateClient replaces a client record.
func (s *Store) UpdateClient(_ context.Context, client *storage.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client.ClientID]; !ok {
		return fmt.Errorf("client %q: %w", client.ClientID, storage.ErrNotFound)
	}
	s.clients[client.ClientID] = copyClient(client)
	return nil
}

// DeleteClient removes a client record.
func (s *Store) DeleteClient(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[clientID]; !ok {
		return fmt.Errorf("client %q: %w", clientID, storage.ErrNotFound)
	}
	delete(s.clients, clientID)
	return nil
}

// ============================================================
// UserStore
// ============================================================

// GetUser retrieves a user by ID.
func (s *Store) GetUser(_ context.Context, id string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", id, storage.ErrNotFound)
	}
	return copyUser(u), nil
}

// GetUserByUsername retrieves a user by username.
func (s *Store) GetUserByUsername(_ context.Context, username string) (*storage.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.userIdx[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, storage.ErrNotFound)
	}
	return copyUser(s.users[id]), nil
}

// SaveUser creates a user record.
func (s *Store) SaveUser(_ context.Context, user *storage.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("invalid user")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.ID]; exists {
		return fmt.Errorf("user %q already exists", user.ID)
	}
	if user.Username != "" {
		if _, taken := s.userIdx[user.Username]; taken {
			return fmt.Errorf("username %q already taken", user.Username)
		}
		s.userIdx[user.Username] = user.ID
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

// ============================================================
// GrantStore
// ============================================================

// GetGrant retrieves a grant by code.
func (s *Store) GetGrant(_ context.Context, code string) (*storage.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[code]
	if !ok {
		return nil, fmt.Errorf("grant: %w", storage.ErrNotFound)
	}
	return copyGrant(g), nil
}

// SaveGrant creates a grant record.
func (s *Store) SaveGrant(_ context.Context, grant *storage.Grant) error {
	if grant == nil || grant.Code == "" {
		return fmt.Errorf("invalid grant")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.grants[grant.Code]; exists {
		return fmt.Errorf("grant already exists")
	}
	s.grants[grant.Code] = copyGrant(grant)
	return nil
}

// DeleteGrant removes a grant record. Absent grants report ErrNotFound so
// the validator can detect code replay.
func (s *Store) DeleteGrant(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[code]; !ok {
		return fmt.Errorf("grant: %w", storage.ErrNotFound)
	}
	delete(s.grants, code)
	return nil
}

// ============================================================
// TokenStore
// ============================================================

// GetAccessToken retrieves an access token by row ID.
func (s *Store) GetAccessToken(_ context.Context, id string) (*storage.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.access[id]
	if !ok {
		return nil, fmt.Errorf("access token: %w", storage.ErrNotFound)
	}
	return copyAccessToken(t), nil
}

// GetAccessTokenByToken retrieves an access token by its token string.
func (s *Store) GetAccessTokenByToken(_ context.Context, token string) (*storage.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.accessIdx[token]
	if !ok {
		return nil, fmt.Errorf("access token: %w", storage.ErrNotFound)
	}
	return copyAccessToken(s.access[id]), nil
}

// GetAccessTokenForUpdate retrieves an access token by row ID. Exclusivity
// comes from the Atomic transaction mutex; see Atomic.
func (s *Store) GetAccessTokenForUpdate(ctx context.Context, id string) (*storage.AccessToken, error) {
	return s.GetAccessToken(ctx, id)
}

// SaveAccessToken creates an access token record.
func (s *Store) SaveAccessToken(_ context.Context, token *storage.AccessToken) error {
	if token == nil || token.ID == "" || token.Token == "" {
		return fmt.Errorf("invalid access token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.access[token.ID]; exists {
		return fmt.Errorf("access token %q already exists", token.ID)
	}
	if _, taken := s.accessIdx[token.Token]; taken {
		return fmt.Errorf("access token string already in use")
	}
	s.access[token.ID] = copyAccessToken(token)
	s.accessIdx[token.Token] = token.ID
	return nil
}

// UpdateAccessToken replaces an access token record, re-indexing the token
// string if it changed (refresh reuse updates the string in place).
func (s *Store) UpdateAccessToken(_ context.Context, token *storage.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.access[token.ID]
	if !ok {
		return fmt.Errorf("access token: %w", storage.ErrNotFound)
	}
	if old.Token != token.Token {
		delete(s.accessIdx, old.Token)
		s.accessIdx[token.Token] = token.ID
	}
	s.access[token.ID] = copyAccessToken(token)
	return nil
}

// DeleteAccessToken removes an access token record by row ID.
func (s *Store) DeleteAccessToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.access[id]
	if !ok {
		return fmt.Errorf("access token: %w", storage.ErrNotFound)
	}
	delete(s.accessIdx, t.Token)
	delete(s.access, id)
	return nil
}

// GetRefreshTokenByToken retrieves a refresh token by its token string.
func (s *Store) GetRefreshTokenByToken(_ context.Context, token string) (*storage.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.refreshIdx[token]
	if !ok {
		return nil, fmt.Errorf("refresh token: %w", storage.ErrNotFound)
	}
	return copyRefreshToken(s.refresh[id]), nil
}

// SaveRefreshToken creates a refresh token record.
func (s *Store) SaveRefreshToken(_ context.Context, token *storage.RefreshToken) error {
	if token == nil || token.ID == "" || token.Token == "" {
		return fmt.Errorf("invalid refresh token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.refresh[token.ID]; exists {
		return fmt.Errorf("refresh token %q already exists", token.ID)
	}
	if _, taken := s.refreshIdx[token.Token]; taken {
		return fmt.Errorf("refresh token string already in use")
	}
	s.refresh[token.ID] = copyRefreshToken(token)
	s.refreshIdx[token.Token] = token.ID
	return nil
}

// UpdateRefreshToken replaces a refresh token record.
func (s *Store) UpdateRefreshToken(_ context.Context, token *storage.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.refresh[token.ID]
	if !ok {
		return fmt.Errorf("refresh token: %w", storage.ErrNotFound)
	}
	if old.Token != token.Token {
		delete(s.refreshIdx, old.Token)
		s.refreshIdx[token.Token] = token.ID
	}
	s.refresh[token.ID] = copyRefreshToken(token)
	return nil
}

// DeleteRefreshToken removes a refresh token record by row ID.
func (s *Store) DeleteRefreshToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.refresh[id]
	if !ok {
		return fmt.Errorf("refresh token: %w", storage.ErrNotFound)
	}
	delete(s.refreshIdx, t.Token)
	delete(s.refresh, id)
	return nil
}

// GetIDTokenByToken retrieves an ID token by its serialized value.
func (s *Store) GetIDTokenByToken(_ context.Context, token string) (*storage.IDToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.idTokenIdx[token]
	if !ok {
		return nil, fmt.Errorf("id token: %w", storage.ErrNotFound)
	}
	return copyIDToken(s.idTokens[id]), nil
}

// SaveIDToken creates an ID token record.
func (s *Store) SaveIDToken(_ context.Context, token *storage.IDToken) error {
	if token == nil || token.ID == "" || token.Token == "" {
		return fmt.Errorf("invalid id token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.idTokens[token.ID]; exists {
		return fmt.Errorf("id token %q already exists", token.ID)
	}
	s.idTokens[token.ID] = copyIDToken(token)
	s.idTokenIdx[token.Token] = token.ID
	return nil
}

// DeleteIDToken removes an ID token record by row ID.
func (s *Store) DeleteIDToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.idTokens[id]
	if !ok {
		return fmt.Errorf("id token: %w", storage.ErrNotFound)
	}
	delete(s.idTokenIdx, t.Token)
	delete(s.idTokens, id)
	return nil
}

// ============================================================
// Copy helpers: the store never aliases caller memory
// ============================================================

func copyClient(c *storage.Client) *storage.Client {
	out := *c
	out.GrantTypes = append([]string(nil), c.GrantTypes...)
	out.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	return &out
}

func copyUser(u *storage.User) *storage.User {
	out := *u
	return &out
}

func copyGrant(g *storage.Grant) *storage.Grant {
	out := *g
	return &out
}

func copyAccessToken(t *storage.AccessToken) *storage.AccessToken {
	out := *t
	return &out
}

func copyRefreshToken(t *storage.RefreshToken) *storage.RefreshToken {
	out := *t
	return &out
}

func copyIDToken(t *storage.IDToken) *storage.IDToken {
	out := *t
	return &out
}
