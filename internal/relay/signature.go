package relay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/formgate/formgate/internal/payment/domain"
)

// Header carries the hex HMAC-SHA256 of the raw request body on both
// directions of the relay exchange.
const Header = "X-Proxy-Signature"

// Sign computes the hex HMAC-SHA256 of body under the pre-shared secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature over the exact received body and compares
// in constant time. A missing secret is a deployment defect and rejects
// everything.
func Verify(secret string, body []byte, signature string) error {
	if strings.TrimSpace(secret) == "" {
		return domain.ErrUnauthenticated
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return domain.ErrUnauthenticated
	}
	expected := Sign(secret, body)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return domain.ErrUnauthenticated
	}
	return nil
}
