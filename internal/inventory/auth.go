package inventory

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// AdminToken verifies bearer tokens for the admin routes against a salted
// Argon2id hash.
type AdminToken struct {
	hash []byte
	salt []byte
}

// HashAdminToken generates a salted Argon2id hash of token. Both values are
// base64 encoded.
func HashAdminToken(token string) (string, string, error) {
	if token == "" {
		return "", "", errors.New("token is empty")
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", "", err
	}

	hash := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return base64.StdEncoding.EncodeToString(hash), base64.StdEncoding.EncodeToString(salt), nil
}

// NewAdminToken decodes a hash/salt pair produced by HashAdminToken.
func NewAdminToken(encodedHash, encodedSalt string) (*AdminToken, error) {
	hash, err := base64.StdEncoding.DecodeString(encodedHash)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hash: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(encodedSalt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	if len(hash) == 0 || len(salt) == 0 {
		return nil, errors.New("hash and salt are required")
	}
	return &AdminToken{hash: hash, salt: salt}, nil
}

// Verify compares token with the stored hash in constant time.
func (t *AdminToken) Verify(token string) bool {
	candidate := argon2.IDKey([]byte(token), t.salt, argonTime, argonMemory, argonThreads, uint32(len(t.hash)))
	return subtle.ConstantTimeCompare(candidate, t.hash) == 1
}
