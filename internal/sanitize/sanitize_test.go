package sanitize

import (
	"errors"
	"strings"
	"testing"
)

func TestPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+18645551234", "+18*******34"},
		{"8645551234", "864*****34"},
		{"+44", "****"},
		{"", "****"},
	}
	for _, tc := range cases {
		if got := Phone(tc.in); got != tc.want {
			t.Errorf("Phone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSecret(t *testing.T) {
	if got := Secret("vapi_sk_1234567890abcdef"); got != "vapi...cdef" {
		t.Errorf("Secret() = %q", got)
	}
	if got := Secret("short"); got != "[REDACTED]" {
		t.Errorf("Secret(short) = %q, want fully redacted", got)
	}
}

func TestString_MasksPhones(t *testing.T) {
	got := String("dialing +18645551234 now")
	if strings.Contains(got, "18645551234") {
		t.Errorf("phone survived: %q", got)
	}
	if !strings.Contains(got, "34") {
		t.Errorf("trailing digits should survive for correlation: %q", got)
	}
}

func TestString_MasksBearerTokens(t *testing.T) {
	got := String("request failed: Authorization: Bearer abc123.def456")
	if strings.Contains(got, "abc123") {
		t.Errorf("token survived: %q", got)
	}
	if !strings.Contains(got, "Bearer [REDACTED]") {
		t.Errorf("want redaction marker, got %q", got)
	}
}

func TestString_MasksKeyValues(t *testing.T) {
	got := String(`api_key="sk_live_abcdefghij123456"`)
	if strings.Contains(got, "sk_live_abcdefghij123456") {
		t.Errorf("key survived: %q", got)
	}
	if !strings.Contains(got, "api_key") {
		t.Errorf("field name should survive: %q", got)
	}
}

func TestString_LeavesCleanTextAlone(t *testing.T) {
	in := "call ended after 3 minutes with outcome positive"
	if got := String(in); got != in {
		t.Errorf("clean text altered: %q", got)
	}
}

func TestError(t *testing.T) {
	if got := Error(nil); got != "" {
		t.Errorf("Error(nil) = %q, want empty", got)
	}
	got := Error(errors.New("vendor rejected +18645551234"))
	if strings.Contains(got, "18645551234") {
		t.Errorf("phone survived in error: %q", got)
	}
}

func TestPartialMask(t *testing.T) {
	if got := PartialMask("call-abc123-xyz", 4, 3); got != "call********xyz" {
		t.Errorf("PartialMask() = %q", got)
	}
	if got := PartialMask("tiny", 4, 4); got != "****" {
		t.Errorf("short input should be fully masked, got %q", got)
	}
}
