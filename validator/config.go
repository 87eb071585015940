package validator

import (
	"log/slog"
	"time"

	"github.com/giantswarm/oauth-core/security"
)

const (
	// DefaultAuthorizationCodeTTL is the lifetime of issued authorization codes.
	DefaultAuthorizationCodeTTL = 10 * time.Minute

	// DefaultAccessTokenTTL is the lifetime of issued access tokens.
	DefaultAccessTokenTTL = 10 * time.Hour

	// DefaultIDTokenTTL is the lifetime of issued ID tokens.
	DefaultIDTokenTTL = 10 * time.Hour

	// DefaultIntrospectionCaching caps how long an access token learned
	// from a remote introspection endpoint is trusted locally before it
	// must be introspected again.
	DefaultIntrospectionCaching = 10 * time.Hour
)

// Config holds the Validator configuration.
//
// The zero value is usable for resource-server style deployments that
// only validate tokens: every duration gets a sane default and refresh
// token rotation is on. Issuing ID tokens additionally requires Issuer
// and SigningKeyPEM.
type Config struct {
	// Issuer is the value of the "iss" claim in issued ID tokens.
	// Required when ID tokens are issued.
	Issuer string

	// SigningKeyPEM is the PEM-encoded RSA private key used to sign ID
	// tokens (RS256). Optional; IssueIDToken fails when unset.
	SigningKeyPEM []byte

	// AuthorizationCodeTTL is the lifetime of authorization codes.
	// Default: DefaultAuthorizationCodeTTL.
	AuthorizationCodeTTL time.Duration

	// AccessTokenTTL is the lifetime of access tokens.
	// Default: DefaultAccessTokenTTL.
	AccessTokenTTL time.Duration

	// IDTokenTTL is the lifetime of ID tokens.
	// Default: DefaultIDTokenTTL.
	IDTokenTTL time.Duration

	// DisableRefreshTokenRotation keeps the presented refresh token and
	// its access token row alive across refreshes, rewriting the access
	// token string in place instead of issuing new rows.
	//
	// SECURITY: rotation is on by default. Reuse of refresh tokens makes
	// stolen-token detection impossible; only disable it for clients that
	// cannot tolerate rotation.
	DisableRefreshTokenRotation bool

	// ResourceServerIntrospectionURL is the remote introspection endpoint
	// consulted when a bearer token is unknown or invalid locally.
	// Empty disables introspection.
	ResourceServerIntrospectionURL string

	// ResourceServerAuthToken is the bearer token presented to the
	// introspection endpoint.
	ResourceServerAuthToken string

	// ResourceServerTokenCaching caps the local validity of tokens
	// learned through introspection. Default: DefaultIntrospectionCaching.
	ResourceServerTokenCaching time.Duration

	// IntrospectionTimeout bounds a single introspection round trip.
	// Default: 10 seconds.
	IntrospectionTimeout time.Duration

	// ClockSkewGracePeriod is the leeway applied to expiry checks on
	// codes and tokens. Default: security.DefaultClockSkewGracePeriod.
	ClockSkewGracePeriod time.Duration
}

// applyDefaults fills in zero-valued fields.
func (c *Config) applyDefaults() {
	if c.AuthorizationCodeTTL <= 0 {
		c.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.IDTokenTTL <= 0 {
		c.IDTokenTTL = DefaultIDTokenTTL
	}
	if c.ResourceServerTokenCaching <= 0 {
		c.ResourceServerTokenCaching = DefaultIntrospectionCaching
	}
	if c.IntrospectionTimeout <= 0 {
		c.IntrospectionTimeout = 10 * time.Second
	}
	if c.ClockSkewGracePeriod <= 0 {
		c.ClockSkewGracePeriod = security.DefaultClockSkewGracePeriod
	}
}

// rotateRefreshTokens reports whether refresh grants rotate the token pair.
func (c *Config) rotateRefreshTokens() bool {
	return !c.DisableRefreshTokenRotation
}

// logSecurityWarnings logs configuration choices that weaken security.
func (c *Config) logSecurityWarnings(logger *slog.Logger) {
	if c.DisableRefreshTokenRotation {
		logger.Warn("SECURITY: refresh token rotation is disabled, stolen refresh tokens stay valid until revoked")
	}
	if c.ResourceServerIntrospectionURL != "" && c.ResourceServerAuthToken == "" {
		logger.Warn("SECURITY: introspection endpoint configured without an auth token")
	}
}
