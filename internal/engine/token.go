package engine

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// tokenBytes gives 256 bits of entropy per session token.
const tokenBytes = 32

// NewSessionToken returns an unguessable opaque bearer token. The client
// presents it on every operation; it is never derivable from the numeric
// session ID.
func NewSessionToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// SeedFromToken derives the per-session shuffle seed from the session
// token. A reconnecting client reconstructs the exact same question and
// option order deterministically instead of re-rolling.
func SeedFromToken(token string) int64 {
	sum := sha256.Sum256([]byte(token))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
