package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"log/slog"

	"github.com/Priya8975/hookrelay/internal/domain"
)

// Signer computes the X-Signature header value for a payload.
type Signer struct {
	fallback func() string
	logger   *slog.Logger
}

// NewSigner returns a signer that uses fallback() when a subscription has
// no secret of its own. fallback may be nil.
func NewSigner(fallback func() string, logger *slog.Logger) *Signer {
	return &Signer{fallback: fallback, logger: logger}
}

// Sign returns base64(HMAC-SHA256(secret, body)) and true, or "" and false
// when neither the subscription nor the process has a secret.
func (s *Signer) Sign(body []byte, sub domain.Subscription) (string, bool) {
	secret := ""
	if sub.HasSecret() {
		secret = *sub.Secret
	} else if s.fallback != nil {
		secret = s.fallback()
	}

	if secret == "" {
		s.logger.Warn("no signing secret available, sending unsigned webhook",
			"subscription_id", sub.ID,
		)
		return "", false
	}
	return ComputeSignature(body, secret), true
}

// ComputeSignature is the signature algorithm shared with receivers.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received X-Signature value in constant time.
func VerifySignature(body []byte, secret, signature string) bool {
	expected, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
