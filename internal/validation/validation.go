// Package validation validates API request bodies and vendor webhook
// payloads before they reach the cache or database.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ValidationError is a single field failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects failures across fields.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// HasErrors reports whether any check failed.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Error codes attached to validation failures.
const (
	CodeRequired      = "required"
	CodeInvalidFormat = "invalid_format"
	CodeTooLong       = "too_long"
	CodeInvalidValue  = "invalid_value"
	CodeMalicious     = "malicious_content"
)

// Validator accumulates field checks; call IsValid or Errors at the end.
type Validator struct {
	errors ValidationErrors
}

// New creates an empty Validator.
func New() *Validator {
	return &Validator{}
}

// Errors returns all accumulated failures.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// IsValid reports whether every check passed.
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// AddError records a failure for a field.
func (v *Validator) AddError(field, message, code string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message, Code: code})
}

// Required fails when the value is empty or whitespace.
func (v *Validator) Required(field, value string) bool {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required", CodeRequired)
		return false
	}
	return true
}

// MaxLength fails when the value exceeds maxLen runes.
func (v *Validator) MaxLength(field, value string, maxLen int) bool {
	if utf8.RuneCountInString(value) > maxLen {
		v.AddError(field, fmt.Sprintf("must be at most %d characters", maxLen), CodeTooLong)
		return false
	}
	return true
}

var phonePattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

// PhoneNumber checks E.164 shape after stripping common formatting.
// Empty values pass; pair with Required when the field is mandatory.
func (v *Validator) PhoneNumber(field, value string) bool {
	if value == "" {
		return true
	}
	cleaned := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(value)
	if !phonePattern.MatchString(cleaned) {
		v.AddError(field, "must be a valid phone number in E.164 format", CodeInvalidFormat)
		return false
	}
	return true
}

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// UUID checks UUID shape. Empty values pass.
func (v *Validator) UUID(field, value string) bool {
	if value == "" {
		return true
	}
	if !uuidPattern.MatchString(value) {
		v.AddError(field, "must be a valid UUID", CodeInvalidFormat)
		return false
	}
	return true
}

// OneOf fails when a non-empty value is not in the allowed set.
func (v *Validator) OneOf(field, value string, allowed []string) bool {
	if value == "" {
		return true
	}
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	v.AddError(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")), CodeInvalidValue)
	return false
}

// NoScriptTags rejects values carrying script tags or javascript: URIs.
// Transcripts and provider names end up rendered in client UIs.
func (v *Validator) NoScriptTags(field, value string) bool {
	lower := strings.ToLower(value)
	if strings.Contains(lower, "<script") || strings.Contains(lower, "javascript:") {
		v.AddError(field, "contains potentially malicious content", CodeMalicious)
		return false
	}
	return true
}

// SafeString rejects control characters other than newlines and tabs.
func (v *Validator) SafeString(field, value string) bool {
	for _, r := range value {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			v.AddError(field, "contains invalid control characters", CodeMalicious)
			return false
		}
	}
	return true
}

// SanitizePhoneNumber strips formatting from a phone number, keeping
// only digits and a leading plus.
func SanitizePhoneNumber(phone string) string {
	hasPlus := strings.HasPrefix(phone, "+")
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	result := digits.String()
	if hasPlus && result != "" {
		return "+" + result
	}
	return result
}

// maxTranscriptLength bounds stored transcripts at 1 MB of text.
const maxTranscriptLength = 1000000

// CallEventValidator validates vendor call events before they enter
// the result cache.
type CallEventValidator struct {
	*Validator
}

// NewCallEventValidator creates a call event validator.
func NewCallEventValidator() *CallEventValidator {
	return &CallEventValidator{Validator: New()}
}

// ValidateCallID checks the vendor call ID.
func (v *CallEventValidator) ValidateCallID(callID string) {
	v.Required("call_id", callID)
	v.MaxLength("call_id", callID, 256)
	v.SafeString("call_id", callID)
}

// ValidateStatus checks a call status against the vendor in-flight
// states plus the normalized terminal set.
func (v *CallEventValidator) ValidateStatus(status string) {
	allowed := []string{
		"queued", "ringing", "in_progress", "in-progress", "ended",
		"completed",
		"no_answer", "no-answer",
		"voicemail", "busy",
		"failed", "timeout", "error",
		"",
	}
	v.OneOf("status", strings.ToLower(status), allowed)
}

// ValidateProviderName checks the provider name attached to a call.
func (v *CallEventValidator) ValidateProviderName(name string) {
	if name == "" {
		return
	}
	v.MaxLength("provider_name", name, 256)
	v.SafeString("provider_name", name)
	v.NoScriptTags("provider_name", name)
}

// ValidateTranscript checks transcript content.
func (v *CallEventValidator) ValidateTranscript(transcript string) {
	v.MaxLength("transcript", transcript, maxTranscriptLength)
	v.SafeString("transcript", transcript)
	v.NoScriptTags("transcript", transcript)
}
