// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for webkit.
//
// Metrics are exported through a Prometheus registry; spans are recorded by
// the SDK tracer provider. When instrumentation is disabled, no-op providers
// are used and recording costs nothing.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:        true,
//		ServiceName:    "webkit",
//		ServiceVersion: "1.0.0",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	// Expose /metrics endpoint
//	http.Handle("/metrics", promhttp.Handler())
//
// # Available Metrics
//
// HTTP Layer:
//   - webkit.http.requests.total{method, endpoint, status} - Total HTTP requests
//   - webkit.http.request.duration{endpoint} - Request duration in milliseconds
//
// OAuth2 grants:
//   - oauth.grant.total{grant_type, response_type, result, error} - Grant requests
//   - oauth.grant.duration{grant_type} - Grant pipeline duration
//   - oauth.code.issued{client_id}, oauth.token.issued{client_id, grant_type},
//     oauth.refresh_token.issued{client_id}
//   - oauth.authorization.revoked{client_id}
//   - oauth.client.created{client_type}, oauth.user.created
//
// Sessions:
//   - session.opened, session.closed{reason}
//   - session.gc.collected, session.gc.duration
//   - nonce.collisions{kind}
//
// Security:
//   - security.rate_limit.exceeded{limiter_type}, security.rate_limit.active
//   - security.audit.events.total{event_type}
//   - security.encryption.operations.total{operation}, security.encryption.duration{operation}
//
// Storage:
//   - storage.operation.total{backend, operation, result} - result is success, miss or error
//   - storage.operation.duration{backend, operation}
//
// # Metric Cardinality
//
// client_id is the only unbounded label. Deployments with many clients
// should aggregate by client_type with recording rules.
//
// # Security Considerations
//
// Never record session tokens, access tokens, refresh tokens, authorization
// codes, client secrets or passwords in spans or metrics. Client IP
// addresses are only attached to spans when Config.LogClientIPs is set.
package instrumentation
