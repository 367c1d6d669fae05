package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// Sign returns the lowercase hex HMAC-SHA256 of payload keyed by secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaders returns the headers attached to a signed request sent at
// the given time. It returns nil when secret is empty.
func SignatureHeaders(secret string, payload []byte, at time.Time) map[string]string {
	if secret == "" {
		return nil
	}
	return map[string]string{
		HeaderSignature: Sign(secret, payload),
		HeaderTimestamp: strconv.FormatInt(at.UnixMilli(), 10),
	}
}

// Verify checks signature against the expected HMAC of payload in constant
// time.
func Verify(secret string, payload []byte, signature string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	if signature == "" {
		return ErrMissingSignature
	}
	expected := Sign(secret, payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}
