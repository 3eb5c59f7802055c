package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// CanonicalPayload builds the signed string "<pid>|<ts>" (decimal partner id,
// decimal unix-millisecond timestamp).
func CanonicalPayload(partnerID, timestampMs int64) string {
	return fmt.Sprintf("%d|%d", partnerID, timestampMs)
}

// Sign computes HMAC-SHA256 over the canonical payload with the partner
// secret as key and returns the lower-case hex digest.
func Sign(partnerID, timestampMs int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(CanonicalPayload(partnerID, timestampMs)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the expected signature and compares it to the candidate
// in constant time. It returns false (never an error) on any mismatch,
// including length mismatch.
func Verify(candidate string, partnerID, timestampMs int64, secret string) bool {
	expected := Sign(partnerID, timestampMs, secret)
	return hmac.Equal([]byte(expected), []byte(candidate))
}

// NewSecret generates a fresh partner signing secret: 32 random bytes,
// hex-encoded. Generated once at registration; never rotated.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
