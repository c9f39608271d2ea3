// Package valkey provides a Valkey storage backend.
//
// Valkey is wire-compatible with Redis. The Store maps the storage.Store
// operations onto single commands:
//
//	Exists   -> EXISTS key
//	HExists  -> HEXISTS hash field
//	Read     -> GET key
//	HRead    -> HGET hash field
//	Write    -> SET key value
//	HWrite   -> HSET hash field value
//	Destroy  -> DEL key (patterns: SCAN/KEYS, then DEL per key)
//	HDestroy -> HDEL hash field
//
// # Iteration
//
// Two iterator modes are supported. storage.ModeScan (default) pages through
// the keyspace with SCAN MATCH; an empty page with a non-zero cursor is
// followed by another SCAN, and iteration ends once the server returns cursor
// 0. storage.ModeKeys issues a single KEYS command, which blocks the server
// for large keyspaces.
//
// # Errors
//
// A nil reply is reported as storage.ErrNotFound. Every other failure is
// wrapped with storage.ErrUnavailable so callers can tell an outage from an
// absent key.
//
// # Configuration
//
// Basic usage:
//
//	store, err := valkey.New(valkey.Config{
//	    Address: "localhost:6379",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// With TLS and a key prefix:
//
//	store, err := valkey.New(valkey.Config{
//	    Address:   "valkey.example.com:6379",
//	    Password:  os.Getenv("VALKEY_PASSWORD"),
//	    TLS:       &tls.Config{MinVersion: tls.VersionTLS12},
//	    KeyPrefix: "webkit:",
//	})
package valkey
