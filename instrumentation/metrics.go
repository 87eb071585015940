package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the validator
type Metrics struct {
	// Validator decision metrics
	ClientAuthTotal    metric.Int64Counter
	CodesIssued        metric.Int64Counter
	TokensIssued       metric.Int64Counter
	TokensRefreshed    metric.Int64Counter
	TokensRevoked      metric.Int64Counter
	BearerValidations  metric.Int64Counter
	IDTokensIssued     metric.Int64Counter
	IDTokenValidations metric.Int64Counter

	// Introspection metrics
	IntrospectionTotal    metric.Int64Counter
	IntrospectionDuration metric.Float64Histogram

	// Storage Metrics
	StorageOperationTotal     metric.Int64Counter
	StorageOperationDuration  metric.Float64Histogram
	StorageClientsCount       metric.Int64ObservableGauge
	StorageGrantsCount        metric.Int64ObservableGauge
	StorageAccessTokensCount  metric.Int64ObservableGauge
	StorageRefreshTokensCount metric.Int64ObservableGauge

	// Audit Metrics
	AuditEventsTotal metric.Int64Counter
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	var err error
	m.ClientAuthTotal, err = inst.validatorMeter.Int64Counter(
		"oauth.client_auth.total",
		metric.WithDescription("Client authentication attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create client_auth.total counter: %w", err)
	}

	m.CodesIssued, err = inst.validatorMeter.Int64Counter(
		"oauth.authorization_code.issued",
		metric.WithDescription("Authorization codes issued"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization_code.issued counter: %w", err)
	}

	m.TokensIssued, err = inst.validatorMeter.Int64Counter(
		"oauth.token.issued",
		metric.WithDescription("Bearer tokens persisted"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.issued counter: %w", err)
	}

	m.TokensRefreshed, err = inst.validatorMeter.Int64Counter(
		"oauth.token.refreshed",
		metric.WithDescription("Refresh exchanges completed"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.refreshed counter: %w", err)
	}

	m.TokensRevoked, err = inst.validatorMeter.Int64Counter(
		"oauth.token.revoked",
		metric.WithDescription("Tokens revoked"),
		metric.WithUnit("{revocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.revoked counter: %w", err)
	}

	m.BearerValidations, err = inst.validatorMeter.Int64Counter(
		"oauth.bearer.validations",
		metric.WithDescription("Bearer token validation outcomes"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create bearer.validations counter: %w", err)
	}

	m.IDTokensIssued, err = inst.validatorMeter.Int64Counter(
		"oauth.id_token.issued",
		metric.WithDescription("OpenID Connect ID tokens issued"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create id_token.issued counter: %w", err)
	}

	m.IDTokenValidations, err = inst.validatorMeter.Int64Counter(
		"oauth.id_token.validations",
		metric.WithDescription("ID token validation outcomes"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create id_token.validations counter: %w", err)
	}

	m.IntrospectionTotal, err = inst.validatorMeter.Int64Counter(
		"oauth.introspection.total",
		metric.WithDescription("Remote introspection round trips"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create introspection.total counter: %w", err)
	}

	m.IntrospectionDuration, err = inst.validatorMeter.Float64Histogram(
		"oauth.introspection.duration",
		metric.WithDescription("Remote introspection duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create introspection.duration histogram: %w", err)
	}

	m.StorageOperationTotal, err = inst.storageMeter.Int64Counter(
		"oauth.storage.operations.total",
		metric.WithDescription("Total storage operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operations.total counter: %w", err)
	}

	m.StorageOperationDuration, err = inst.storageMeter.Float64Histogram(
		"oauth.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.StorageClientsCount, err = inst.storageMeter.Int64ObservableGauge(
		"oauth.storage.clients.count",
		metric.WithDescription("Number of client records in storage"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.clients.count gauge: %w", err)
	}

	m.StorageGrantsCount, err = inst.storageMeter.Int64ObservableGauge(
		"oauth.storage.grants.count",
		metric.WithDescription("Number of live authorization codes in storage"),
		metric.WithUnit("{grant}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.grants.count gauge: %w", err)
	}

	m.StorageAccessTokensCount, err = inst.storageMeter.Int64ObservableGauge(
		"oauth.storage.access_tokens.count",
		metric.WithDescription("Number of access token records in storage"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.access_tokens.count gauge: %w", err)
	}

	m.StorageRefreshTokensCount, err = inst.storageMeter.Int64ObservableGauge(
		"oauth.storage.refresh_tokens.count",
		metric.WithDescription("Number of refresh token records in storage"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.refresh_tokens.count gauge: %w", err)
	}

	m.AuditEventsTotal, err = inst.securityMeter.Int64Counter(
		"oauth.audit.events.total",
		metric.WithDescription("Security audit events emitted"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audit.events.total counter: %w", err)
	}

	return m, nil
}

// Helper methods for common metric recording patterns

// RecordClientAuth records a client authentication attempt
func (m *Metrics) RecordClientAuth(ctx context.Context, method string, success bool) {
	m.ClientAuthTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.Bool("success", success),
	))
}

// RecordCodeIssued records an issued authorization code
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	m.CodesIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordTokenIssued records a persisted bearer token
func (m *Metrics) RecordTokenIssued(ctx context.Context, grantType string) {
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
	))
}

// RecordTokenRefresh records a completed refresh exchange
func (m *Metrics) RecordTokenRefresh(ctx context.Context, rotated bool) {
	m.TokensRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("rotated", rotated),
	))
}

// RecordTokenRevocation records a token revocation
func (m *Metrics) RecordTokenRevocation(ctx context.Context, tokenType string) {
	m.TokensRevoked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("token_type", tokenType),
	))
}

// RecordBearerValidation records a bearer token validation outcome
func (m *Metrics) RecordBearerValidation(ctx context.Context, valid bool) {
	m.BearerValidations.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("valid", valid),
	))
}

// RecordIntrospection records a remote introspection round trip
func (m *Metrics) RecordIntrospection(ctx context.Context, success bool, durationMs float64) {
	m.IntrospectionTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
	m.IntrospectionDuration.Record(ctx, durationMs)
}

// RecordIDTokenIssued records an issued ID token
func (m *Metrics) RecordIDTokenIssued(ctx context.Context, clientID string) {
	m.IDTokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordIDTokenValidation records an ID token validation outcome
func (m *Metrics) RecordIDTokenValidation(ctx context.Context, valid bool) {
	m.IDTokenValidations.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("valid", valid),
	))
}

// RecordStorageOperation records a storage operation with its result
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordAuditEvent records an emitted audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}
