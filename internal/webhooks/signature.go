package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Dispatch event payloads (job.assigned, run.completed, ...) are signed
// with HMAC-SHA256 over the raw body using the subscription's shared
// secret. The hex digest travels in the SignatureHeader next to
// X-Event-Type so receivers can authenticate before parsing.

const SignatureHeader = "X-Signature"

// SignHMAC returns the lowercase hex HMAC-SHA256 digest of body.
func SignHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMAC reports whether provided is a valid signature for body.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	b, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), b)
}
