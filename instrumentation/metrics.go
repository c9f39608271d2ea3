package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments of the toolkit
type Metrics struct {
	// HTTP Layer Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// OAuth2 Grant Metrics
	GrantsTotal           metric.Int64Counter
	GrantDuration         metric.Float64Histogram
	CodesIssued           metric.Int64Counter
	TokensIssued          metric.Int64Counter
	RefreshTokensIssued   metric.Int64Counter
	AuthorizationsRevoked metric.Int64Counter
	ClientsCreated        metric.Int64Counter
	UsersCreated          metric.Int64Counter

	// Session Metrics
	SessionsOpened     metric.Int64Counter
	SessionsClosed     metric.Int64Counter
	SessionsCollected  metric.Int64Counter
	SessionGCDuration  metric.Float64Histogram
	NonceCollisions    metric.Int64Counter

	// Security Metrics
	RateLimitExceeded       metric.Int64Counter
	RateLimitActiveLimiters metric.Int64ObservableGauge
	AuditEventsTotal        metric.Int64Counter

	// Storage Metrics
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram

	// Encryption Metrics
	EncryptionOperationsTotal metric.Int64Counter
	EncryptionDuration        metric.Float64Histogram
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	sessionMeter := inst.Meter("session")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	var err error
	counter := func(meter metric.Meter, name, desc, unit string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		if err != nil {
			err = fmt.Errorf("failed to create %s counter: %w", name, err)
		}
		return c
	}
	histogram := func(meter metric.Meter, name, desc string) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
		if err != nil {
			err = fmt.Errorf("failed to create %s histogram: %w", name, err)
		}
		return h
	}

	// HTTP Layer Metrics
	m.HTTPRequestsTotal = counter(httpMeter, "webkit.http.requests.total", "Total number of HTTP requests", "{request}")
	m.HTTPRequestDuration = histogram(httpMeter, "webkit.http.request.duration", "HTTP request duration in milliseconds")

	// OAuth2 Grant Metrics
	m.GrantsTotal = counter(serverMeter, "oauth.grant.total", "Number of grant requests by outcome", "{grant}")
	m.GrantDuration = histogram(serverMeter, "oauth.grant.duration", "Grant pipeline duration in milliseconds")
	m.CodesIssued = counter(serverMeter, "oauth.code.issued", "Number of authorization codes issued", "{code}")
	m.TokensIssued = counter(serverMeter, "oauth.token.issued", "Number of access tokens issued", "{token}")
	m.RefreshTokensIssued = counter(serverMeter, "oauth.refresh_token.issued", "Number of refresh tokens issued", "{token}")
	m.AuthorizationsRevoked = counter(serverMeter, "oauth.authorization.revoked", "Number of authorizations revoked", "{authorization}")
	m.ClientsCreated = counter(serverMeter, "oauth.client.created", "Number of clients created", "{client}")
	m.UsersCreated = counter(serverMeter, "oauth.user.created", "Number of users created", "{user}")

	// Session Metrics
	m.SessionsOpened = counter(sessionMeter, "session.opened", "Number of sessions opened", "{session}")
	m.SessionsClosed = counter(sessionMeter, "session.closed", "Number of sessions closed", "{session}")
	m.SessionsCollected = counter(sessionMeter, "session.gc.collected", "Number of garbage sessions collected", "{session}")
	m.SessionGCDuration = histogram(sessionMeter, "session.gc.duration", "Session sweep duration in milliseconds")
	m.NonceCollisions = counter(sessionMeter, "nonce.collisions", "Number of generated nonces that already existed", "{collision}")

	// Security Metrics
	m.RateLimitExceeded = counter(securityMeter, "security.rate_limit.exceeded", "Number of rate limit violations", "{violation}")
	m.AuditEventsTotal = counter(securityMeter, "security.audit.events.total", "Total number of audit events", "{event}")
	if err == nil {
		m.RateLimitActiveLimiters, err = securityMeter.Int64ObservableGauge(
			"security.rate_limit.active",
			metric.WithDescription("Number of identifiers tracked by the rate limiter"),
			metric.WithUnit("{identifier}"),
		)
		if err != nil {
			err = fmt.Errorf("failed to create rate_limit.active gauge: %w", err)
		}
	}

	// Storage Metrics
	m.StorageOperationTotal = counter(storageMeter, "storage.operation.total", "Total number of storage operations", "{operation}")
	m.StorageOperationDuration = histogram(storageMeter, "storage.operation.duration", "Storage operation duration in milliseconds")

	// Encryption Metrics
	m.EncryptionOperationsTotal = counter(securityMeter, "security.encryption.operations.total", "Total number of encryption/decryption operations", "{operation}")
	m.EncryptionDuration = histogram(securityMeter, "security.encryption.duration", "Encryption/decryption operation duration in milliseconds")

	if err != nil {
		return nil, err
	}
	return m, nil
}

// Helper methods for common metric recording patterns

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordGrant records the outcome of one grant request. errorCode is empty
// on success.
func (m *Metrics) RecordGrant(ctx context.Context, grantType, responseType, errorCode string, durationMs float64) {
	result := "success"
	if errorCode != "" {
		result = "error"
	}
	m.GrantsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("grant_type", grantType),
		attribute.String("response_type", responseType),
		attribute.String("result", result),
		attribute.String("error", errorCode),
	))
	m.GrantDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("grant_type", grantType)))
}

// RecordCodeIssued records an authorization code issuance
func (m *Metrics) RecordCodeIssued(ctx context.Context, clientID string) {
	m.CodesIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

// RecordTokenIssued records an access token issuance
func (m *Metrics) RecordTokenIssued(ctx context.Context, clientID, grantType string) {
	m.TokensIssued.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("grant_type", grantType),
	))
}

// RecordRefreshTokenIssued records a refresh token issuance
func (m *Metrics) RecordRefreshTokenIssued(ctx context.Context, clientID string) {
	m.RefreshTokensIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

// RecordAuthorizationsRevoked records revoked authorizations for one client
func (m *Metrics) RecordAuthorizationsRevoked(ctx context.Context, clientID string, count int) {
	m.AuthorizationsRevoked.Add(ctx, int64(count), metric.WithAttributes(attribute.String("client_id", clientID)))
}

// RecordClientCreated records a client creation
func (m *Metrics) RecordClientCreated(ctx context.Context, clientType string) {
	m.ClientsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("client_type", clientType)))
}

// RecordUserCreated records a user creation
func (m *Metrics) RecordUserCreated(ctx context.Context) {
	m.UsersCreated.Add(ctx, 1)
}

// RecordSessionOpened records a session open
func (m *Metrics) RecordSessionOpened(ctx context.Context) {
	m.SessionsOpened.Add(ctx, 1)
}

// RecordSessionClosed records a session close; reason is "close" or "gc"
func (m *Metrics) RecordSessionClosed(ctx context.Context, reason string) {
	m.SessionsClosed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordSessionSweep records one garbage collection sweep
func (m *Metrics) RecordSessionSweep(ctx context.Context, collected int, durationMs float64) {
	m.SessionsCollected.Add(ctx, int64(collected))
	m.SessionGCDuration.Record(ctx, durationMs)
}

// RecordNonceCollision records a generated nonce that was already in use
func (m *Metrics) RecordNonceCollision(ctx context.Context, kind string) {
	m.NonceCollisions.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, limiterType string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("limiter_type", limiterType),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, backend, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
	))
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordEncryptionOperation records an encryption/decryption operation
func (m *Metrics) RecordEncryptionOperation(ctx context.Context, operation string, durationMs float64) {
	m.EncryptionOperationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
	))
	m.EncryptionDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}
