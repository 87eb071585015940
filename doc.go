// Package oauthcore is the OAuth 2.0 / OpenID Connect decision core: the
// validation and persistence logic an authorization server consults while
// running its protocol flows.
//
// The package does not speak HTTP. A protocol engine (the layer parsing
// RFC 6749 requests and rendering responses) drives a Validator through
// per-flow call sequences: authenticate the client, validate the grant,
// negotiate scopes, persist tokens. Each operation answers with a boolean
// decision, binds what it resolved onto the Request, or returns an error
// when the engine or a dependency misbehaved.
//
// Layout:
//
//   - validator: the decision core itself
//   - storage: credential store contract plus memory, postgres and valkey
//     backends
//   - scopes: the pluggable scope catalog
//   - introspection: RFC 7662 client for remote token validation
//   - security: audit logging, clock-skew handling, at-rest encryption
//   - instrumentation: OpenTelemetry metrics and tracing
//
// Minimal setup:
//
//	store := memory.New()
//	catalog := &scopes.Static{Available: []string{"openid", "read"}, Default: []string{"read"}}
//	v, err := oauthcore.New(store, catalog, oauthcore.Config{Issuer: "https://auth.example"}, logger)
package oauthcore
