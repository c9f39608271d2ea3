// Package storage provides the key-value store abstraction shared by the
// session and OAuth2 layers.
//
// The Store interface covers plain keys and hashes (field/value groups under
// one name) plus glob based key iteration. Helpers in this package build on
// the interface:
//   - Match: drains an iterator into a slice
//   - DestroyMatching: wildcard Destroy used by every backend
//   - NewInstrumented: OpenTelemetry spans and metrics around any Store
//   - NewEncrypted: at-rest encryption of values
//
// Implementations are provided in subpackages:
//   - storage/memory: unsynchronized Local map and mutex guarded Shared map
//   - storage/valkey: Valkey server with KEYS or SCAN iteration
//   - storage/redis: Redis server through go-redis
//   - storage/bolt: single file bbolt database
//   - storage/mock: function-field mock for unit tests
//
// storage/storagetest holds the contract suite every backend runs.
package storage
