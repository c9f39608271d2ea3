package storage

import (
	"context"
	"fmt"
)

// ValueCipher encrypts values before they reach a backend.
// security.Encryptor satisfies it.
type ValueCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// EncryptedStore encrypts every value (plain and hash fields) at rest.
// Keys, hash names and field names stay in clear text so pattern iteration
// keeps working.
type EncryptedStore struct {
	Store
	cipher ValueCipher
}

var _ Store = (*EncryptedStore)(nil)

// NewEncrypted wraps next so values are encrypted with cipher.
func NewEncrypted(next Store, cipher ValueCipher) *EncryptedStore {
	return &EncryptedStore{Store: next, cipher: cipher}
}

func (s *EncryptedStore) Read(ctx context.Context, key string) (string, error) {
	value, err := s.Store.Read(ctx, key)
	if err != nil {
		return "", err
	}
	return s.decrypt(value)
}

func (s *EncryptedStore) HRead(ctx context.Context, hash, field string) (string, error) {
	value, err := s.Store.HRead(ctx, hash, field)
	if err != nil {
		return "", err
	}
	return s.decrypt(value)
}

func (s *EncryptedStore) Write(ctx context.Context, key, value string) error {
	encrypted, err := s.cipher.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}
	return s.Store.Write(ctx, key, encrypted)
}

func (s *EncryptedStore) HWrite(ctx context.Context, hash, field, value string) error {
	encrypted, err := s.cipher.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt value: %w", err)
	}
	return s.Store.HWrite(ctx, hash, field, encrypted)
}

func (s *EncryptedStore) decrypt(value string) (string, error) {
	plain, err := s.cipher.Decrypt(value)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt value: %w", err)
	}
	return plain, nil
}
