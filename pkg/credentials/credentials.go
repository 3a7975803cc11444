// Package credentials resolves presented API keys to tenant identity. Keys
// are stored and looked up as salted one-way hashes; the plaintext never
// reaches storage or logs.
package credentials

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrNotFound is returned when no key row matches the presented hash.
var ErrNotFound = errors.New("api key not found")

// Credential is the tenant identity behind a resolved API key.
type Credential struct {
	KeyID     string
	KeyPrefix string
	Active    bool
	AppID     string
	AppName   string
}

// Store resolves API key hashes to credentials.
type Store interface {
	// Lookup returns the credential bound to keyHash, ErrNotFound when no
	// key matches, or a transport error.
	Lookup(ctx context.Context, keyHash string) (*Credential, error)
}

// HashKey derives the storage hash for a plaintext key: hex(sha256(key+salt)).
// The salt must match the one used at provisioning time.
func HashKey(key, salt string) string {
	sum := sha256.Sum256([]byte(key + salt))
	return hex.EncodeToString(sum[:])
}

// Prefix returns the loggable form of a key: its first four characters. The
// full key must never appear in logs or errors.
func Prefix(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[:4] + "..."
}
