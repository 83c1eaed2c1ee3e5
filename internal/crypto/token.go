package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// TokenDigest reduces a shared secret to the fixed-length form callers put in
// the token header: lower-case hex SHA-256.
func TokenDigest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// TokenMatches compares a presented header value against a precomputed digest
// in constant time.
func TokenMatches(presented, digest string) bool {
	if presented == "" || digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(digest)) == 1
}

// GenerateSecret returns a random URL-safe secret of n random bytes.
func GenerateSecret(n int) (string, error) {
	b, err := GenerateRandomBytes(n)
	if err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
