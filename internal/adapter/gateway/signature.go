package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signature header names. Different provider client versions spell the
// header differently; both must be accepted on inbound requests.
const (
	SignatureHeader    = "X-Ivy-Signature"
	SignatureHeaderAlt = "X_IVY_SIGNATURE"
)

// Sign computes the hex HMAC-SHA256 of body under secret. The body must be
// the raw bytes as transmitted: re-serializing a decoded object changes
// whitespace and slash escaping and breaks verification on the other side.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether presented is a valid signature of body under
// secret. Comparison is constant-time. It never fails loudly; callers decide
// the HTTP response.
func Verify(body []byte, secret, presented string) bool {
	if presented == "" {
		return false
	}
	expected := Sign(body, secret)
	return hmac.Equal([]byte(expected), []byte(presented))
}
