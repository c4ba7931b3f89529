package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// SignatureHeader carries the hex HMAC-SHA1 of the raw request body, keyed
// with the webhook secret.
const SignatureHeader = "X-Spark-Signature"

// WebhookAuth verifies that webhook deliveries come from the platform.
type WebhookAuth struct {
	secret []byte
	logger zerolog.Logger
}

// NewWebhookAuth creates the middleware. An empty secret disables the check.
func NewWebhookAuth(secret string, logger zerolog.Logger) *WebhookAuth {
	return &WebhookAuth{secret: []byte(secret), logger: logger}
}

// RequireSignature rejects requests whose body does not match the
// signature header.
func (m *WebhookAuth) RequireSignature(next http.Handler) http.Handler {
	if len(m.secret) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature := strings.ToLower(strings.TrimSpace(r.Header.Get(SignatureHeader)))
		if signature == "" {
			jsonError(w, http.StatusUnauthorized, "missing signature")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewBuffer(body)) // Reset for handler

		if !hmac.Equal([]byte(signature), []byte(Sign(m.secret, body))) {
			m.logger.Warn().
				Str("type", "security").
				Str("event", "invalid_signature").
				Str("ip", RealIP(r)).
				Str("endpoint", r.URL.Path).
				Msg("webhook signature mismatch")
			jsonError(w, http.StatusUnauthorized, "invalid signature")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Sign returns the hex HMAC-SHA1 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
