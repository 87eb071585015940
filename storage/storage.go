package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by lookup methods when no record matches.
// Implementations must return an error satisfying errors.Is(err, ErrNotFound)
// so callers can distinguish "absent" from infrastructure failures.
var ErrNotFound = errors.New("storage: not found")

// Client type constants
const (
	// ClientTypeConfidential represents a confidential OAuth client
	ClientTypeConfidential = "confidential"

	// ClientTypePublic represents a public OAuth client
	ClientTypePublic = "public"
)

// Grant capability constants. A client is registered with a set of these and
// the validator maps RFC 6749 grant-type / response-type strings onto them.
const (
	GrantAuthorizationCode = "authorization-code"
	GrantImplicit          = "implicit"
	GrantPassword          = "password"
	GrantClientCredentials = "client-credentials"
	GrantOpenIDHybrid      = "openid-hybrid"
)

// Client represents a registered OAuth client application.
// A client record is immutable for the duration of a single request.
type Client struct {
	ClientID     string
	ClientSecret string
	ClientType   string // "public" or "confidential"
	GrantTypes   []string
	RedirectURIs []string
	Disabled     bool
	CreatedAt    time.Time
}

// AllowsGrantType reports whether the client was registered with at least one
// of the given grant capabilities.
func (c *Client) AllowsGrantType(capabilities ...string) bool {
	for _, want := range capabilities {
		for _, have := range c.GrantTypes {
			if have == want {
				return true
			}
		}
	}
	return false
}

// RedirectURIAllowed reports whether uri is in the client's registered set.
// Matching is exact string comparison per OAuth 2.0 Security BCP.
func (c *Client) RedirectURIAllowed(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// DefaultRedirectURI returns the first registered redirect URI, or "" when
// the client has none.
func (c *Client) DefaultRedirectURI() string {
	if len(c.RedirectURIs) == 0 {
		return ""
	}
	return c.RedirectURIs[0]
}

// Usable reports whether the client may currently be used. This is the hook
// for suspension and disable flags.
func (c *Client) Usable() bool {
	return !c.Disabled
}

// User is a resource owner. Only the fields the decision core needs are
// modeled: identity, the username introspection responses resolve against,
// and the last-login timestamp used for the ID token auth_time claim.
type User struct {
	ID        string
	Username  string
	LastLogin time.Time
	CreatedAt time.Time
}

// Grant is a one-time authorization code. It is created at authorization
// time and deleted when consumed; a deleted grant cannot be replayed.
type Grant struct {
	Code        string
	ClientID    string
	UserID      string
	Scope       string // space-separated
	RedirectURI string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Expired reports whether the grant's expiry is in the past.
func (g *Grant) Expired() bool {
	return !g.ExpiresAt.IsZero() && time.Now().After(g.ExpiresAt)
}

// AccessToken is an issued bearer token. UserID is empty for
// client-credentials grants; ClientID is empty when the row was minted from a
// remote introspection response for a token this server never issued.
//
// ID is the immutable row identity. Token is the opaque credential string and
// changes in place when a refresh exchange reuses the token row.
type AccessToken struct {
	ID        string
	Token     string
	UserID    string
	ClientID  string
	Scope     string // space-separated
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the token's expiry is in the past.
func (t *AccessToken) Expired() bool {
	return !t.ExpiresAt.IsZero() && time.Now().After(t.ExpiresAt)
}

// AllowScopes reports whether the token's scope set is a superset of the
// requested scopes.
func (t *AccessToken) AllowScopes(scopes []string) bool {
	granted := make(map[string]bool)
	for _, s := range strings.Fields(t.Scope) {
		granted[s] = true
	}
	for _, s := range scopes {
		if !granted[s] {
			return false
		}
	}
	return true
}

// Valid reports whether the token is neither expired nor lacking any of the
// requested scopes.
func (t *AccessToken) Valid(scopes []string) bool {
	return !t.Expired() && t.AllowScopes(scopes)
}

// RefreshToken links a long-lived refresh credential to the access token it
// was issued alongside. Revocation deletes the row; a missing linked access
// token means the pair was partially revoked already.
type RefreshToken struct {
	ID            string
	Token         string
	UserID        string
	ClientID      string
	AccessTokenID string
	CreatedAt     time.Time
}

// IDToken is a persisted OpenID Connect identity token. Token holds the
// compact JWT serialization and is the lookup key during validation; the row
// is never mutated after creation.
type IDToken struct {
	ID        string
	Token     string
	UserID    string
	ClientID  string
	Scope     string // space-separated
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the ID token's expiry is in the past.
func (t *IDToken) Expired() bool {
	return !t.ExpiresAt.IsZero() && time.Now().After(t.ExpiresAt)
}

// ClientStore manages registered OAuth client applications.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// GetClient retrieves a client by its client_id
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// SaveClient creates a client record
	SaveClient(ctx context.Context, client *Client) error

	// UpdateClient replaces a client record (full row)
	UpdateClient(ctx context.Context, client *Client) error

	// DeleteClient removes a client record
	DeleteClient(ctx context.Context, clientID string) error
}

// UserStore manages resource owner records.
type UserStore interface {
	// GetUser retrieves a user by ID
	GetUser(ctx context.Context, id string) (*User, error)

	// GetUserByUsername retrieves a user by username
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SaveUser creates a user record
	SaveUser(ctx context.Context, user *User) error
}

// GrantStore manages one-time authorization codes.
type GrantStore interface {
	// GetGrant retrieves a grant by its code
	GetGrant(ctx context.Context, code string) (*Grant, error)

	// SaveGrant creates a grant record
	SaveGrant(ctx context.Context, grant *Grant) error

	// DeleteGrant removes a grant record. Deleting an absent grant returns
	// ErrNotFound so the caller can detect double consumption.
	DeleteGrant(ctx context.Context, code string) error
}

// TokenStore manages access, refresh and ID token records.
type TokenStore interface {
	// GetAccessToken retrieves an access token by row ID
	GetAccessToken(ctx context.Context, id string) (*AccessToken, error)

	// GetAccessTokenByToken retrieves an access token by its token string
	GetAccessTokenByToken(ctx context.Context, token string) (*AccessToken, error)

	// GetAccessTokenForUpdate retrieves an access token by row ID while
	// holding an exclusive row lock for the remainder of the surrounding
	// Atomic transaction. Callers must only invoke it inside Atomic.
	// SECURITY: This is the serialization point for concurrent refresh
	// exchanges that reuse the same token row.
	GetAccessTokenForUpdate(ctx context.Context, id string) (*AccessToken, error)

	// SaveAccessToken creates an access token record
	SaveAccessToken(ctx context.Context, token *AccessToken) error

	// UpdateAccessToken replaces an access token record (full row)
	UpdateAccessToken(ctx context.Context, token *AccessToken) error

	// DeleteAccessToken removes an access token record by row ID
	DeleteAccessToken(ctx context.Context, id string) error

	// GetRefreshTokenByToken retrieves a refresh token by its token string
	GetRefreshTokenByToken(ctx context.Context, token string) (*RefreshToken, error)

	// SaveRefreshToken creates a refresh token record
	SaveRefreshToken(ctx context.Context, token *RefreshToken) error

	// UpdateRefreshToken replaces a refresh token record (full row)
	UpdateRefreshToken(ctx context.Context, token *RefreshToken) error

	// DeleteRefreshToken removes a refresh token record by row ID
	DeleteRefreshToken(ctx context.Context, id string) error

	// GetIDTokenByToken retrieves an ID token by its serialized value
	GetIDTokenByToken(ctx context.Context, token string) (*IDToken, error)

	// SaveIDToken creates an ID token record
	SaveIDToken(ctx context.Context, token *IDToken) error

	// DeleteIDToken removes an ID token record by row ID
	DeleteIDToken(ctx context.Context, id string) error
}

// Store is the full credential store contract the validator operates
// against.
type Store interface {
	ClientStore
	UserStore
	GrantStore
	TokenStore

	// Atomic runs fn inside a single storage transaction. Every store
	// operation fn performs through the passed Store either commits as a
	// whole or leaves no trace. Implementations without real transactions
	// must at minimum guarantee mutual exclusion between concurrent Atomic
	// calls, which is sufficient for the validator's locking needs.
	Atomic(ctx context.Context, fn func(Store) error) error
}

// IsNotFound reports whether err indicates an absent record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
