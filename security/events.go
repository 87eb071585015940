package security

// Event type constants for security audit logging.
// These constants ensure consistency across the codebase and prevent typos
// when logging security-relevant events.
const (
	// Token lifecycle events

	// EventTokenIssued is logged when a new bearer token is issued to a client
	EventTokenIssued = "token_issued"

	// EventTokenRefreshed is logged when an access token is refreshed using a refresh token
	EventTokenRefreshed = "token_refreshed"

	// EventTokenRevoked is logged when a token is revoked by the user or client
	EventTokenRevoked = "token_revoked"

	// EventIDTokenIssued is logged when an OpenID Connect ID token is issued
	EventIDTokenIssued = "id_token_issued"

	// Authorization flow events

	// EventAuthorizationCodeIssued is logged when an authorization code is saved
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// EventAuthorizationCodeConsumed is logged when an authorization code is invalidated after exchange
	EventAuthorizationCodeConsumed = "authorization_code_consumed"

	// Security violation events

	// EventAuthFailure is logged when client authentication fails (wrong credentials, etc.)
	EventAuthFailure = "auth_failure"

	// EventScopeEscalationAttempt is logged when a client requests scopes outside its catalog
	EventScopeEscalationAttempt = "scope_escalation_attempt"

	// EventInvalidRedirect is logged when an unregistered redirect URI is presented
	EventInvalidRedirect = "invalid_redirect"

	// External dependency events

	// EventIntrospectionFailed is logged when a remote introspection round trip fails;
	// the token is treated as invalid (fail closed)
	EventIntrospectionFailed = "introspection_failed"
)
