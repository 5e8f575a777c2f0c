package middleware

import (
	"net/http"
)

// Body limits. Webhook payloads carry whole call transcripts so they get
// far more headroom than ordinary API traffic.
const (
	// MaxJSONBodySize bounds JSON API requests (1 MiB).
	MaxJSONBodySize = 1 << 20

	// MaxWebhookBodySize bounds vendor webhook payloads (10 MiB).
	MaxWebhookBodySize = 10 << 20
)

// BodySizeLimiter rejects requests whose declared length exceeds maxBytes
// and caps chunked bodies at the same limit via MaxBytesReader.
func BodySizeLimiter(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil || r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if r.ContentLength > maxBytes {
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// BodySizeLimiterJSON limits ordinary JSON API bodies.
func BodySizeLimiterJSON() func(http.Handler) http.Handler {
	return BodySizeLimiter(MaxJSONBodySize)
}

// BodySizeLimiterWebhook limits webhook bodies.
func BodySizeLimiterWebhook() func(http.Handler) http.Handler {
	return BodySizeLimiter(MaxWebhookBodySize)
}
