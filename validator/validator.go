package validator

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/giantswarm/oauth-core/instrumentation"
	"github.com/giantswarm/oauth-core/introspection"
	"github.com/giantswarm/oauth-core/scopes"
	"github.com/giantswarm/oauth-core/security"
	"github.com/giantswarm/oauth-core/storage"
)

// PasswordAuthenticator checks resource owner credentials for the
// password grant. Implementations return the authenticated user, or
// (nil, nil) when the credentials are wrong.
type PasswordAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (*storage.User, error)
}

// Validator is the decision core. It is safe for concurrent use; all
// per-request state lives on the Request values the engine passes in.
type Validator struct {
	store        storage.Store
	catalog      scopes.Catalog
	config       Config
	logger       *slog.Logger
	signingKey   *rsa.PrivateKey
	introspector *introspection.Client
	passwordAuth PasswordAuthenticator
	auditor      *security.Auditor
	instr        *instrumentation.Instrumentation
}

// New creates a Validator backed by the given store and scope catalog.
// The config is defaulted in place; see Config for what the zero value
// gives you.
func New(store storage.Store, catalog scopes.Catalog, config Config, logger *slog.Logger) (*Validator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("scope catalog is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	config.applyDefaults()
	config.logSecurityWarnings(logger)

	v := &Validator{
		store:   store,
		catalog: catalog,
		config:  config,
		logger:  logger,
	}

	if len(config.SigningKeyPEM) > 0 {
		key, err := jwt.ParseRSAPrivateKeyFromPEM(config.SigningKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ID token signing key: %w", err)
		}
		v.signingKey = key
	}

	// Introspection needs both the endpoint and the credential. A URL
	// without a token is only warned about; bearer validation then relies
	// on the local store alone.
	if config.ResourceServerIntrospectionURL != "" && config.ResourceServerAuthToken != "" {
		client, err := introspection.New(introspection.Config{
			Endpoint:       config.ResourceServerIntrospectionURL,
			AuthToken:      config.ResourceServerAuthToken,
			RequestTimeout: config.IntrospectionTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create introspection client: %w", err)
		}
		v.introspector = client
	}

	return v, nil
}

// SetPasswordAuthenticator installs the credential checker used by
// ValidateUser. Without one, the password grant refuses all users.
func (v *Validator) SetPasswordAuthenticator(a PasswordAuthenticator) {
	v.passwordAuth = a
}

// SetAuditor installs a security audit logger. Optional.
func (v *Validator) SetAuditor(a *security.Auditor) {
	v.auditor = a
}

// SetInstrumentation installs OpenTelemetry instrumentation. Optional.
func (v *Validator) SetInstrumentation(instr *instrumentation.Instrumentation) {
	v.instr = instr
}

// metrics returns the metric recorder, or nil when instrumentation is
// not installed. Callers must nil-check.
func (v *Validator) metrics() *instrumentation.Metrics {
	if v.instr == nil {
		return nil
	}
	return v.instr.Metrics()
}

// loadClient fetches a usable client record. A missing, disabled or
// secret-less-lookup client yields (nil, nil); only infrastructure
// failures surface as errors.
func (v *Validator) loadClient(ctx context.Context, clientID string) (*storage.Client, error) {
	if clientID == "" {
		return nil, nil
	}
	client, err := v.store.GetClient(ctx, clientID)
	if err != nil {
		if storage.IsNotFound(err) {
			v.logger.Debug("client not found", "client_id", clientID)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load client: %w", err)
	}
	if !client.Usable() {
		v.logger.Debug("client is disabled", "client_id", clientID)
		return nil, nil
	}
	return client, nil
}

// expired applies the configured clock skew grace period.
func (v *Validator) expired(expiresAt time.Time) bool {
	return security.IsExpiredWithGracePeriod(expiresAt, v.config.ClockSkewGracePeriod)
}
