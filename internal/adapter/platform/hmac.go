package platform

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SHA256SignaturePrefix is the header value prefix both GitHub and
// Gitea use for their HMAC-SHA256 webhook signature ("sha256=<hex>").
const SHA256SignaturePrefix = "sha256="

// VerifyHMACSHA256 validates a "sha256=<hex>" webhook signature header
// against body using secret, in constant time. Verification is
// considered disabled (and the call succeeds) when secret is empty.
func VerifyHMACSHA256(secret []byte, headerValue string, body []byte) bool {
	if len(secret) == 0 {
		return true
	}
	if !strings.HasPrefix(headerValue, SHA256SignaturePrefix) {
		return false
	}

	sigBytes, err := hex.DecodeString(strings.TrimPrefix(headerValue, SHA256SignaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	return hmac.Equal(sigBytes, expected)
}
