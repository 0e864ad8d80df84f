package atproto

import (
	"regexp"
	"strings"
)

// Domain-style handle syntax: at least two labels, the last not starting
// with a digit
var handleRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

const maxHandleLength = 253

// SanitizeHandle trims whitespace, a leading @ and trailing dots or
// slashes, and lowercases the result
func SanitizeHandle(handle string) string {
	h := strings.TrimSpace(handle)
	h = strings.TrimPrefix(h, "@")
	h = strings.TrimRight(h, "/.")
	return strings.ToLower(h)
}

// IsValidHandle reports whether handle is syntactically a valid handle
func IsValidHandle(handle string) bool {
	if handle == "" || len(handle) > maxHandleLength {
		return false
	}
	return handleRegex.MatchString(handle)
}
