package instrumentation

import (
	"context"
	"sync"
	"testing"
)

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	inst, _ := newTestInstrumentation(t)
	ctx := context.Background()
	metrics := inst.Metrics()

	tests := []struct {
		name       string
		method     string
		endpoint   string
		statusCode int
		durationMs float64
	}{
		{"login page", "GET", "/authorize", 200, 3.2},
		{"grant redirect", "POST", "/authorize", 302, 25.1},
		{"code exchange", "POST", "/authorize", 200, 18.9},
		{"forbidden", "GET", "/authorize", 403, 0.4},
		{"revoke", "DELETE", "/authorize", 200, 7.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics.RecordHTTPRequest(ctx, tt.method, tt.endpoint, tt.statusCode, tt.durationMs)
		})
	}
}

func TestMetrics_RecordGrantLifecycle(t *testing.T) {
	inst, _ := newTestInstrumentation(t)
	ctx := context.Background()
	m := inst.Metrics()

	m.RecordClientCreated(ctx, "confidential")
	m.RecordUserCreated(ctx)
	m.RecordGrant(ctx, "", "code", "", 4)
	m.RecordCodeIssued(ctx, "client-1")
	m.RecordGrant(ctx, "authorization_code", "token", "", 9)
	m.RecordTokenIssued(ctx, "client-1", "authorization_code")
	m.RecordRefreshTokenIssued(ctx, "client-1")
	m.RecordGrant(ctx, "refresh_token", "token", "invalid_grant", 1)
	m.RecordAuthorizationsRevoked(ctx, "client-1", 3)
}

func TestMetrics_RecordSessionEvents(t *testing.T) {
	inst, _ := newTestInstrumentation(t)
	ctx := context.Background()
	m := inst.Metrics()

	m.RecordSessionOpened(ctx)
	m.RecordSessionClosed(ctx, "close")
	m.RecordSessionClosed(ctx, "gc")
	m.RecordSessionSweep(ctx, 4, 12.5)
	m.RecordNonceCollision(ctx, "session")
}

func TestMetrics_RecordSecurityEvents(t *testing.T) {
	inst, _ := newTestInstrumentation(t)
	ctx := context.Background()
	m := inst.Metrics()

	m.RecordRateLimitExceeded(ctx, "ip")
	m.RecordAuditEvent(ctx, "grant_denied")
	m.RecordEncryptionOperation(ctx, "encrypt", 0.8)
	m.RecordEncryptionOperation(ctx, "decrypt", 0.7)
}

func TestMetrics_RecordStorageOperations(t *testing.T) {
	inst, _ := newTestInstrumentation(t)
	ctx := context.Background()
	m := inst.Metrics()

	for _, backend := range []string{"map", "shared_map", "valkey", "redis", "bolt"} {
		m.RecordStorageOperation(ctx, backend, "hread", "success", 0.5)
		m.RecordStorageOperation(ctx, backend, "read", "miss", 0.2)
		m.RecordStorageOperation(ctx, backend, "write", "error", 3)
	}
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	inst, _ := newTestInstrumentation(t)
	ctx := context.Background()
	m := inst.Metrics()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				m.RecordGrant(ctx, "password", "token", "", 1)
				m.RecordStorageOperation(ctx, "shared_map", "write", "success", 0.1)
				m.RecordSessionOpened(ctx)
			}
		}()
	}
	wg.Wait()
}
