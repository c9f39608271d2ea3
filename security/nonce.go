package security

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// MaxNonceAttempts bounds the generate-and-check loop of UniqueNonce.
const MaxNonceAttempts = 100

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var (
	// ErrNonceExhausted is returned when MaxNonceAttempts candidates all collided.
	ErrNonceExhausted = errors.New("no unique nonce found")

	// ErrInvalidNonceLength is returned for a non-positive length.
	ErrInvalidNonceLength = errors.New("nonce length must be positive")
)

// NonceGenerator produces random identifiers for session tokens, client ids
// and authorization codes.
type NonceGenerator interface {
	Generate(length int) (string, error)
}

// AlphanumericGenerator draws every character uniformly from [A-Za-z0-9]
// using crypto/rand.
type AlphanumericGenerator struct{}

var _ NonceGenerator = AlphanumericGenerator{}

// Generate returns a random alphanumeric string of the given length.
func (AlphanumericGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidNonceLength
	}

	limit := big.NewInt(int64(len(alphanumeric)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		out[i] = alphanumeric[n.Int64()]
	}
	return string(out), nil
}

// UniqueNonce generates candidates until one is not taken, then reserves it.
// The check and the reservation run under mu so two callers never reserve
// the same value; mu is released between attempts. After MaxNonceAttempts
// collisions ErrNonceExhausted is returned.
func UniqueNonce(
	ctx context.Context,
	mu sync.Locker,
	gen NonceGenerator,
	length int,
	exists func(ctx context.Context, nonce string) (bool, error),
	reserve func(ctx context.Context, nonce string) error,
) (string, error) {
	for attempt := 0; attempt < MaxNonceAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		candidate, err := gen.Generate(length)
		if err != nil {
			return "", err
		}

		ok, err := tryReserve(ctx, mu, candidate, exists, reserve)
		if err != nil {
			return "", err
		}
		if ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrNonceExhausted, MaxNonceAttempts)
}

func tryReserve(
	ctx context.Context,
	mu sync.Locker,
	candidate string,
	exists func(ctx context.Context, nonce string) (bool, error),
	reserve func(ctx context.Context, nonce string) error,
) (bool, error) {
	mu.Lock()
	defer mu.Unlock()

	taken, err := exists(ctx, candidate)
	if err != nil {
		return false, fmt.Errorf("failed to check nonce: %w", err)
	}
	if taken {
		return false, nil
	}
	if err := reserve(ctx, candidate); err != nil {
		return false, fmt.Errorf("failed to reserve nonce: %w", err)
	}
	return true, nil
}
