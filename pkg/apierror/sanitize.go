package apierror

import (
	"regexp"
	"strings"
)

const genericMessage = "An unexpected error occurred. Please try again."

// maxMessageLength caps messages shown to users.
const maxMessageLength = 200

// sensitiveMarkers flag messages that leak internals.
var sensitiveMarkers = []string{
	"stack trace",
	"traceback",
	"goroutine ",
	"panic:",
	"exception",
	"sql:",
	"sqlstate",
	"syntax error at or near",
	"duplicate key value",
	"violates",
	"internal server",
	"connection refused",
	"dial tcp",
	"no such host",
}

var (
	filePathPattern = regexp.MustCompile(`(?:[A-Za-z]:\\|/)(?:[\w.-]+[/\\])+[\w.-]+\.(?:go|js|ts|py|java|rb|php)\b`)
	ipPattern       = regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}(?::\d+)?\b`)

	// Statement-shaped SQL only; "select a plan" is not a query.
	sqlPattern = regexp.MustCompile(`(?i)\b(?:select\s+.+?\s+from\s+\S|insert\s+into\s+\S|update\s+\S+\s+set\s+\S|delete\s+from\s+\S)`)

	// Secrets with a value attached, bearer credentials and JWTs.
	credentialPattern = regexp.MustCompile(`(?i)\b(?:password|passwd|secret|api[_ -]?key|(?:access|refresh|auth|session)?[_-]?token)\s*[:=]\s*\S+|\bbearer\s+[\w.~+/-]+=*|\beyJ[\w-]+\.[\w-]+\.[\w-]+`)
)

// Sanitize returns msg if it looks safe to show a user and a generic
// message otherwise. Overlong messages are truncated.
func Sanitize(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" || IsSensitive(msg) {
		return genericMessage
	}
	if len([]rune(msg)) > maxMessageLength {
		msg = string([]rune(msg)[:maxMessageLength-1]) + "…"
	}
	return msg
}

// IsSensitive reports whether msg contains internal details.
func IsSensitive(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return filePathPattern.MatchString(msg) ||
		ipPattern.MatchString(msg) ||
		sqlPattern.MatchString(msg) ||
		credentialPattern.MatchString(msg)
}

// GenericMessage is what Sanitize substitutes for unsafe messages.
func GenericMessage() string { return genericMessage }
