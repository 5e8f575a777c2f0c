package vapi

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrBadPayload indicates the webhook body does not match the vendor schema.
var ErrBadPayload = errors.New("webhook payload does not match vendor schema")

// ParseWebhook parses a raw webhook body into an Event.
func ParseWebhook(body []byte) (*Event, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if envelope.Message == nil || envelope.Message.Type == "" {
		return nil, fmt.Errorf("%w: missing message", ErrBadPayload)
	}
	if envelope.Message.Call.ID == "" {
		return nil, fmt.Errorf("%w: missing call id", ErrBadPayload)
	}
	return envelope.Message, nil
}

// ValidateWebhook verifies webhook authenticity against a shared secret.
// Supports the HMAC-SHA256 signature header, a bearer token, and the
// custom secret header. With no secret configured, all requests pass.
func ValidateWebhook(r *http.Request, secret string) bool {
	if secret == "" {
		return true
	}

	if signature := r.Header.Get("X-Vapi-Signature"); signature != "" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return false
		}
		// Restore the body so the handler can still read it.
		r.Body = io.NopCloser(bytes.NewReader(body))

		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))
		return hmac.Equal([]byte(signature), []byte(expected))
	}

	if r.Header.Get("Authorization") == "Bearer "+secret {
		return true
	}
	return r.Header.Get("X-Vapi-Secret") == secret
}
