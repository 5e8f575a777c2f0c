package validation

import (
	"strings"
	"testing"
)

func TestRequired(t *testing.T) {
	v := New()
	if v.Required("title", "find a plumber") != true {
		t.Error("non-empty value should pass")
	}
	if v.Required("location", "   ") {
		t.Error("whitespace should fail")
	}
	if v.IsValid() {
		t.Error("validator should carry the failure")
	}
	if got := v.Errors()[0].Code; got != CodeRequired {
		t.Errorf("code = %q, want %q", got, CodeRequired)
	}
}

func TestMaxLength(t *testing.T) {
	v := New()
	if !v.MaxLength("title", "short", 10) {
		t.Error("short value should pass")
	}
	// Rune count, not byte count.
	if !v.MaxLength("title", strings.Repeat("é", 10), 10) {
		t.Error("10 runes should fit a 10-rune limit")
	}
	if v.MaxLength("title", strings.Repeat("x", 11), 10) {
		t.Error("11 characters should fail a 10-rune limit")
	}
}

func TestPhoneNumber(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"+18645551234", true},
		{"(864) 555-1234", true},
		{"864.555.1234", true},
		{"", true}, // empty passes, pair with Required
		{"0123", false},
		{"not a phone", false},
		{"+1 864 555 1234 ext 9", false},
	}
	for _, tt := range tests {
		v := New()
		if got := v.PhoneNumber("phone", tt.value); got != tt.ok {
			t.Errorf("PhoneNumber(%q) = %v, want %v", tt.value, got, tt.ok)
		}
	}
}

func TestUUID(t *testing.T) {
	v := New()
	if !v.UUID("id", "a2aceee1-9b7d-4a64-9eb0-aaf6a3b3c9de") {
		t.Error("well-formed uuid should pass")
	}
	if v.UUID("id", "not-a-uuid") {
		t.Error("malformed uuid should fail")
	}
	if !v.UUID("id", "") {
		t.Error("empty uuid should pass")
	}
}

func TestOneOf(t *testing.T) {
	v := New()
	if !v.OneOf("urgency", "today", []string{"today", "this_week", "flexible"}) {
		t.Error("listed value should pass")
	}
	if v.OneOf("urgency", "yesterday", []string{"today", "this_week", "flexible"}) {
		t.Error("unlisted value should fail")
	}
}

func TestNoScriptTags(t *testing.T) {
	v := New()
	if !v.NoScriptTags("name", "Joe's Plumbing & Heating") {
		t.Error("plain name should pass")
	}
	if v.NoScriptTags("name", "<SCRIPT>alert(1)</SCRIPT>") {
		t.Error("script tag should fail regardless of case")
	}
	if v.NoScriptTags("name", "javascript:alert(1)") {
		t.Error("javascript uri should fail")
	}
}

func TestSafeString(t *testing.T) {
	v := New()
	if !v.SafeString("transcript", "line one\nline two\ttabbed") {
		t.Error("newlines and tabs should pass")
	}
	if v.SafeString("transcript", "hidden\x00byte") {
		t.Error("null byte should fail")
	}
}

func TestSanitizePhoneNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+1 (864) 555-1234", "+18645551234"},
		{"864.555.1234", "8645551234"},
		{"+", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizePhoneNumber(tt.in); got != tt.want {
			t.Errorf("SanitizePhoneNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCallEventValidator_AcceptsCleanEvent(t *testing.T) {
	v := NewCallEventValidator()
	v.ValidateCallID("call-abc123")
	v.ValidateStatus("completed")
	v.ValidateProviderName("Joe's Plumbing")
	v.ValidateTranscript("AI: Hello, do you handle leaky faucets?\nProvider: We do.")

	if errs := v.Errors(); errs.HasErrors() {
		t.Errorf("clean event should pass, got %v", errs)
	}
}

func TestCallEventValidator_RejectsBadFields(t *testing.T) {
	v := NewCallEventValidator()
	v.ValidateCallID("")
	v.ValidateStatus("exploded")
	v.ValidateProviderName("<script>bad</script>")

	errs := v.Errors()
	if len(errs) != 3 {
		t.Fatalf("errors = %d, want 3: %v", len(errs), errs)
	}
}

func TestCallEventValidator_StatusCaseInsensitive(t *testing.T) {
	v := NewCallEventValidator()
	v.ValidateStatus("COMPLETED")
	if v.Errors().HasErrors() {
		t.Error("status comparison should be case-insensitive")
	}
}

func TestCallEventValidator_TranscriptTooLong(t *testing.T) {
	v := NewCallEventValidator()
	v.ValidateTranscript(strings.Repeat("a", maxTranscriptLength+1))
	if !v.Errors().HasErrors() {
		t.Error("oversized transcript should fail")
	}
}
