package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Common span attribute keys
//
// SECURITY WARNING: Never log actual sensitive values (access tokens,
// refresh tokens, authorization codes, client secrets) in traces or
// metrics. Only log metadata such as token types, expiry times and
// validation results. Traces are persisted for extended periods and are
// accessible to wider audiences than the systems they observe.
const (
	// OAuth flow attributes - SAFE to use for metadata only
	AttrClientID     = "oauth.client_id"     // Client identifier (non-secret)
	AttrUserID       = "oauth.user_id"       // User identifier (non-secret)
	AttrScope        = "oauth.scope"         // Requested scopes
	AttrGrantType    = "oauth.grant_type"    // OAuth grant type
	AttrResponseType = "oauth.response_type" // OAuth response type
	AttrClientType   = "oauth.client_type"   // Client type (public/confidential)
	AttrTokenType    = "oauth.token_type"    //nolint:gosec // Token type hint - NOT the actual token
	AttrTokenRotated = "oauth.token.rotated" //nolint:gosec // Whether the refresh rotated (boolean)
	AttrExpiresIn    = "oauth.expires_in"    // Token expiry duration
	AttrValid        = "oauth.valid"         // Validation outcome (boolean)
	AttrError        = "oauth.error"         // Error code

	// Storage attributes
	AttrStorageOperation = "storage.operation"
	AttrStorageResult    = "storage.result"
	AttrStorageType      = "storage.type"

	// Introspection attributes
	AttrIntrospectionActive = "introspection.active"
	AttrIntrospectionStatus = "introspection.status"

	// Security attributes
	AttrAuditEventType = "security.audit.event_type"
)

// RecordError records an error on a span with proper status codes (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}
