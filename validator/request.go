package validator

import (
	"net/http"
	"net/url"

	"github.com/giantswarm/oauth-core/storage"
)

// Request is the per-request context the protocol engine shares with the
// Validator. The engine fills in the raw material (headers, body, parsed
// parameters) before the first call; validation methods progressively
// bind storage records (Client, User, AccessToken) onto it as they
// succeed, and later calls in the same flow read those bindings instead
// of re-resolving them.
//
// A Request is not safe for concurrent use. The engine creates one per
// incoming HTTP request.
type Request struct {
	// Headers holds the HTTP request headers, used for HTTP Basic client
	// authentication.
	Headers http.Header

	// Body holds the decoded form body, used for request-body client
	// authentication.
	Body url.Values

	// ClientID and ClientSecret are the body credentials extracted by the
	// engine. They are only consulted when Basic authentication is absent.
	ClientID     string
	ClientSecret string

	// GrantType is the grant_type of a token request, or the grant the
	// engine is executing ("authorization_code", "refresh_token", ...).
	GrantType string

	// ResponseType is the response_type of an authorization request.
	ResponseType string

	// RedirectURI is the redirect_uri presented on the current request.
	RedirectURI string

	// Scopes are the scopes associated with the current request.
	Scopes []string

	// Nonce is the OpenID Connect nonce from the authorization request,
	// echoed into issued ID tokens.
	Nonce string

	// Code is the authorization code on code-exchange requests.
	Code string

	// RefreshTokenValue is the refresh token string presented on a
	// refresh_token grant.
	RefreshTokenValue string

	// Client is the authenticated or validated client, bound by
	// AuthenticateClient, AuthenticateClientID or ValidateClientID.
	Client *storage.Client

	// User is the resource owner, bound by ValidateCode, ValidateUser,
	// ValidateRefreshToken or ValidateBearerToken.
	User *storage.User

	// AccessToken is the token record bound by ValidateBearerToken.
	AccessToken *storage.AccessToken

	// IDToken is the token record bound by ValidateIDToken.
	IDToken *storage.IDToken

	// refreshToken and refreshAccessToken cache the refresh token row and
	// its linked access token, bound by ValidateRefreshToken and consumed
	// by OriginalScopes and SaveBearerToken.
	refreshToken       *storage.RefreshToken
	refreshAccessToken *storage.AccessToken
}

// BearerToken is the token payload the protocol engine asks the
// Validator to persist. AccessToken is the freshly generated token
// string; RefreshToken is empty for grants that do not issue one. Code
// carries the authorization code on hybrid-flow ID token issuance so the
// c_hash claim can be computed.
type BearerToken struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	ExpiresIn    int64
	Code         string
}
