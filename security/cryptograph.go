package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	// saltSize is the length of the random salt stored in front of every
	// AEADCryptograph ciphertext.
	saltSize = 16

	// keySize is the AES-256 key length.
	keySize = 32
)

// ErrDecrypt is returned when a ciphertext cannot be opened: wrong key,
// truncated input or tampering.
var ErrDecrypt = errors.New("failed to decrypt")

// Cryptograph encrypts a plaintext with a caller-provided secret. It is used
// to bind client ids to client secrets and usernames to passwords: the
// stored value is Encrypt(id, secret) and a credential check decrypts it
// with the presented secret and compares the result with the id.
type Cryptograph interface {
	Encrypt(plaintext, key string) (string, error)
	Decrypt(ciphertext, key string) (string, error)
}

// Argon2Params controls the key derivation cost of AEADCryptograph.
type Argon2Params struct {
	// Time is the number of passes over the memory (default 1)
	Time uint32

	// Memory is the memory cost in KiB (default 64 MiB)
	Memory uint32

	// Threads is the degree of parallelism (default 4)
	Threads uint8
}

// DefaultArgon2Params returns the RFC 9106 second recommended option.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Time: 1, Memory: 64 * 1024, Threads: 4}
}

func (p *Argon2Params) applyDefaults() {
	d := DefaultArgon2Params()
	if p.Time == 0 {
		p.Time = d.Time
	}
	if p.Memory == 0 {
		p.Memory = d.Memory
	}
	if p.Threads == 0 {
		p.Threads = d.Threads
	}
}

// AEADCryptograph derives an AES-256 key from the secret with Argon2id and a
// random salt, then seals with AES-256-GCM. The output is
// base64(salt | nonce | ciphertext).
type AEADCryptograph struct {
	params Argon2Params
}

var _ Cryptograph = (*AEADCryptograph)(nil)

// NewAEADCryptograph returns a Cryptograph. Zero fields of params take their
// defaults.
func NewAEADCryptograph(params Argon2Params) *AEADCryptograph {
	params.applyDefaults()
	return &AEADCryptograph{params: params}
}

// Encrypt seals plaintext under a key derived from secret.
func (c *AEADCryptograph) Encrypt(plaintext, secret string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	sealed, err := sealGCM(c.deriveKey(secret, salt), []byte(plaintext), salt)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. A wrong secret yields ErrDecrypt.
func (c *AEADCryptograph) Decrypt(encoded, secret string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(raw) < saltSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	salt, sealed := raw[:saltSize], raw[saltSize:]
	plain, err := openGCM(c.deriveKey(secret, salt), sealed)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (c *AEADCryptograph) deriveKey(secret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret), salt, c.params.Time, c.params.Memory, c.params.Threads, keySize)
}

// sealGCM encrypts plaintext with AES-256-GCM and returns
// prefix | nonce | ciphertext.
func sealGCM(key, plaintext, prefix []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(prefix), len(prefix)+gcm.NonceSize()+len(plaintext)+gcm.Overhead())
	copy(out, prefix)

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// openGCM reverses sealGCM for input without prefix.
func openGCM(key, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecrypt, err)
	}
	return plain, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
