// Package security provides the security primitives of webkit.
//
// # Credentials
//
// Client secrets and user passwords are never stored. A client record keeps
// Encrypt(client_id, secret) produced by a Cryptograph; checking a
// credential decrypts the stored value with the presented secret and
// compares the result with the id. AEADCryptograph derives the AES-256-GCM
// key with Argon2id from the secret and a random salt, so equal secrets
// never produce equal records.
//
// # Identifiers
//
// Session tokens, client ids and authorization codes come from a
// NonceGenerator. UniqueNonce retries until the store does not already hold
// the candidate and reserves it under a caller supplied mutex:
//
//	token, err := security.UniqueNonce(ctx, &mu, security.AlphanumericGenerator{}, 32,
//		func(ctx context.Context, t string) (bool, error) { return store.Exists(ctx, "session:value:"+t) },
//		func(ctx context.Context, t string) error { return store.HWrite(ctx, "session:value:"+t, "token", t) },
//	)
//
// # At-rest encryption
//
// Encryptor uses a fixed 32-byte key and plugs into storage.NewEncrypted to
// encrypt every stored value.
//
// # Rate Limiting
//
// RateLimiter keeps one token bucket (golang.org/x/time/rate) per
// identifier with LRU eviction once MaxEntries identifiers are tracked.
// Idle limiters are dropped by a background goroutine; call Stop when done.
//
//	limiter := security.NewRateLimiter(security.RateLimiterConfig{
//		RequestsPerSecond: 5,
//		Burst:             10,
//	})
//	defer limiter.Stop()
//
// # Audit
//
// Auditor writes security_audit log records through slog. User
// identifiers are hashed before they are logged.
package security
