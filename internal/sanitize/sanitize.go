// Package sanitize masks the sensitive values this service handles most:
// customer and provider phone numbers, vendor API keys, and auth tokens.
// Log sites call these helpers so raw PII never lands in log storage.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	phonePattern  = regexp.MustCompile(`\+?[1-9]\d{6,14}`)
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[\w.-]+`)
	keyPattern    = regexp.MustCompile(`(?i)(api[_-]?key|secret|token|password)[=:\s"']*([\w-]{16,})`)
)

// Phone masks a phone number, keeping the country prefix and the last
// two digits so operators can still correlate calls.
func Phone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:3] + strings.Repeat("*", len(phone)-5) + phone[len(phone)-2:]
}

// Secret shortens a credential to its first and last four characters.
func Secret(key string) string {
	if len(key) <= 8 {
		return "[REDACTED]"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// String scrubs free text (error messages, request dumps) of phone
// numbers, bearer tokens, and key=value credentials.
func String(input string) string {
	out := phonePattern.ReplaceAllStringFunc(input, Phone)
	out = bearerPattern.ReplaceAllString(out, "Bearer [REDACTED]")
	out = keyPattern.ReplaceAllStringFunc(out, func(match string) string {
		parts := keyPattern.FindStringSubmatch(match)
		if len(parts) >= 3 {
			return strings.TrimSuffix(match, parts[2]) + "[REDACTED]"
		}
		return "[REDACTED]"
	})
	return out
}

// Error scrubs an error message; nil yields the empty string.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// PartialMask keeps the first and last N characters of a value.
func PartialMask(s string, keepStart, keepEnd int) string {
	if len(s) <= keepStart+keepEnd {
		return strings.Repeat("*", len(s))
	}
	return s[:keepStart] + strings.Repeat("*", len(s)-keepStart-keepEnd) + s[len(s)-keepEnd:]
}
