package yoco

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// VerifySignature checks the webhook signature header against an HMAC-SHA256
// of the payload. The payload must be the raw request body exactly as
// received; re-serializing parsed JSON changes the bytes and breaks the MAC.
// Accepts an optional "sha256=" prefix on the header.
func VerifySignature(payload []byte, signatureHeader, secret string) bool {
	if signatureHeader == "" || secret == "" {
		return false
	}
	received := strings.TrimPrefix(signatureHeader, "sha256=")
	got, err := hex.DecodeString(received)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}
