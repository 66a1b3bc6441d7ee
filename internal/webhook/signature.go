package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// Sign returns the X-Hub-Signature-256 header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header is the HMAC-SHA256 signature of payload under secret.
// An empty secret or a header without the "sha256=" prefix never verifies.
func Verify(payload []byte, secret, header string) bool {
	if secret == "" || !strings.HasPrefix(header, signaturePrefix) {
		return false
	}

	// Constant-time comparison
	return hmac.Equal([]byte(header), []byte(Sign(payload, secret)))
}
