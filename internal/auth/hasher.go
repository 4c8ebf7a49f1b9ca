package auth

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher is the pluggable one-way credential digest. The core only
// ever compares digests, never reverses them.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(stored, password string) error
}

// BcryptHasher digests passwords with bcrypt, hex-encoded. The default.
type BcryptHasher struct{}

func (BcryptHasher) Hash(password string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return hex.EncodeToString(digest), nil
}

func (BcryptHasher) Compare(stored, password string) error {
	decoded, err := hex.DecodeString(stored)
	if err != nil {
		return fmt.Errorf("failed to decode stored digest: %w", err)
	}

	return bcrypt.CompareHashAndPassword(decoded, []byte(password))
}

// SHA512Hasher digests passwords with unsalted SHA-512, hex-encoded.
// Deterministic, so stored digests are equality-comparable; kept for
// data imported from systems that stored plain SHA-512 digests.
type SHA512Hasher struct{}

func (SHA512Hasher) Hash(password string) (string, error) {
	sum := sha512.Sum512([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (SHA512Hasher) Compare(stored, password string) error {
	sum := sha512.Sum512([]byte(password))
	encoded := hex.EncodeToString(sum[:])

	if subtle.ConstantTimeCompare([]byte(stored), []byte(encoded)) != 1 {
		return fmt.Errorf("digest mismatch")
	}

	return nil
}

// NewHasher selects a hasher by name, defaulting to bcrypt.
func NewHasher(name string) PasswordHasher {
	if name == "sha512" {
		return SHA512Hasher{}
	}

	return BcryptHasher{}
}
